package logger

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// WithContext extracts request context for logging
func WithContext(c *gin.Context) Fields {
	fields := Fields{
		"request_id": c.GetString("request_id"),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	}

	if userID, exists := c.Get("user_id"); exists {
		fields["user_id"] = userID
	}

	return fields
}

// Info logs an informational message with structured fields
func Info(msg string, fields Fields) {
	log.Printf("[INFO] %s %v", msg, formatFields(fields))

	// Send to Sentry as breadcrumb
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "info",
			Category: "log",
			Message:  msg,
			Data:     convertFieldsToMap(fields),
			Level:    sentry.LevelInfo,
		})
	}
}

// Error logs an error message with structured fields and sends to Sentry
func Error(msg string, err error, fields Fields) {
	log.Printf("[ERROR] %s: %v %v", msg, err, formatFields(fields))

	// Send to Sentry
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			// Add structured fields as context
			for key, value := range fields {
				scope.SetContext(key, map[string]interface{}{
					"value": value,
				})
			}

			// Set tags for better filtering in Sentry
			if requestID, ok := fields["request_id"].(string); ok {
				scope.SetTag("request_id", requestID)
			}
			if backend, ok := fields["backend"].(string); ok {
				scope.SetTag("backend", backend)
			}

			hub.CaptureException(err)
		})
	}
}

// Warn logs a warning message with structured fields
func Warn(msg string, fields Fields) {
	log.Printf("[WARN] %s %v", msg, formatFields(fields))

	// Send to Sentry as breadcrumb
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "warning",
			Category: "log",
			Message:  msg,
			Data:     convertFieldsToMap(fields),
			Level:    sentry.LevelWarning,
		})
	}
}

// Debug logs a debug message with structured fields
func Debug(msg string, fields Fields) {
	log.Printf("[DEBUG] %s %v", msg, formatFields(fields))

	// Send to Sentry as breadcrumb (only in development/debug mode)
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "debug",
			Category: "log",
			Message:  msg,
			Data:     convertFieldsToMap(fields),
			Level:    sentry.LevelDebug,
		})
	}
}

// LogAPIRequest logs a finished request at a level chosen by its status code
// and leaves an http breadcrumb in Sentry
func LogAPIRequest(c *gin.Context, duration time.Duration, statusCode int, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}

	fields["duration_ms"] = duration.Milliseconds()
	fields["status_code"] = statusCode
	fields["request_id"] = c.GetString("request_id")
	fields["method"] = c.Request.Method
	fields["path"] = c.Request.URL.Path
	fields["client_ip"] = c.ClientIP()

	level := sentry.LevelInfo
	switch {
	case statusCode >= http.StatusInternalServerError:
		level = sentry.LevelError
		Error("Request failed with server error", fmt.Errorf("status %d", statusCode), fields)
	case statusCode >= http.StatusBadRequest:
		level = sentry.LevelWarning
		Warn("Request failed with client error", fields)
	default:
		Info("Request completed", fields)
	}

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:     "http",
		Category: "api",
		Message:  fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path),
		Data:     convertFieldsToMap(fields),
		Level:    level,
	})
}

// LogMelodyGeneration logs one finished generation and records it as a Sentry span
func LogMelodyGeneration(ctx context.Context, backend string, duration time.Duration, stats GenerationStats, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}

	fields["backend"] = backend
	fields["duration_ms"] = duration.Milliseconds()
	fields["steps"] = stats.Steps
	fields["generated"] = stats.Generated
	fields["stop_reason"] = stats.StopReason
	fields["events"] = stats.Events
	if stats.InputTokens > 0 || stats.OutputTokens > 0 {
		fields["input_tokens"] = stats.InputTokens
		fields["output_tokens"] = stats.OutputTokens
	}

	Info("Melody generation completed", fields)

	// Track performance in Sentry
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		span := sentry.StartSpan(ctx, "melody.generate")
		span.Description = backend
		span.SetData("steps", stats.Steps)
		span.SetData("stop_reason", stats.StopReason)
		span.Finish()
	}
}

// GenerationStats summarizes a generation for logging
type GenerationStats struct {
	Steps        int
	Generated    int
	StopReason   string
	Events       int
	InputTokens  int64
	OutputTokens int64
}

// formatFields converts Fields to a readable string
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := "{"
	first := true
	for _, k := range keys {
		v := fields[k]
		if !first {
			result += ", "
		}
		result += k + "="
		switch val := v.(type) {
		case string:
			result += val
		case int, int64, float64:
			result += formatValue(val)
		default:
			result += formatValue(v)
		}
		first = false
	}
	result += "}"
	return result
}

// LogToSentry sends msg to Sentry as a message event on the hub bound to ctx,
// falling back to the current hub. Fields become contexts; request_id and
// backend also become tags.
func LogToSentry(ctx context.Context, level sentry.Level, msg string, fields Fields) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		for key, value := range fields {
			scope.SetContext(key, map[string]interface{}{
				"value": value,
			})
		}
		if requestID, ok := fields["request_id"].(string); ok {
			scope.SetTag("request_id", requestID)
		}
		if backend, ok := fields["backend"].(string); ok {
			scope.SetTag("backend", backend)
		}
		hub.CaptureMessage(msg)
	})
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.2f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func convertFieldsToMap(fields Fields) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range fields {
		result[k] = v
	}
	return result
}
