package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/services"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

type MelodyHandler struct {
	svc *services.MelodyService
}

func NewMelodyHandler(svc *services.MelodyService) *MelodyHandler {
	return &MelodyHandler{svc: svc}
}

// StreamEvent represents a server-sent event during streaming generation
type StreamEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Step    int         `json:"step,omitempty"`
	Symbol  string      `json:"symbol,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Vocabulary lists the symbols the service understands
func (h *MelodyHandler) Vocabulary(c *gin.Context) {
	vocab := h.svc.Vocabulary()
	symbols := make([]string, 0, vocab.Size())
	for _, s := range vocab.Symbols() {
		symbols = append(symbols, string(s))
	}

	c.JSON(http.StatusOK, gin.H{
		"symbols": symbols,
		"special": gin.H{
			"rest":     string(melody.Rest),
			"hold":     string(melody.Hold),
			"boundary": string(melody.Boundary),
		},
		"mapping": vocab.Mapping(),
	})
}

// Generate continues a seed and returns the melody with its events
func (h *MelodyHandler) Generate(c *gin.Context) {
	req, ok := bindGenerationRequest(c)
	if !ok {
		return
	}

	userID, _ := middleware.GetUserIDFromGateway(c)
	gen, err := h.svc.Generate(c.Request.Context(), userID, req, nil)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gen.Response)
}

// GenerateStream streams every generated symbol as a server-sent event,
// followed by the full result
func (h *MelodyHandler) GenerateStream(c *gin.Context) {
	req, ok := bindGenerationRequest(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserIDFromGateway(c)

	// Set up SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Writer.Flush()

	onStep := func(step int, symbol melody.Symbol) error {
		return writeEvent(c, StreamEvent{Type: eventTypeStep, Step: step, Symbol: string(symbol)})
	}

	gen, err := h.svc.Generate(c.Request.Context(), userID, req, onStep)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("Streaming generation failed", logger.Fields{
				"request_id": c.GetString("request_id"),
				"error":      err.Error(),
			})
		}
		_ = writeEvent(c, StreamEvent{Type: eventTypeError, Message: err.Error()})
		return
	}

	_ = writeEvent(c, StreamEvent{Type: eventTypeResult, Data: gen.Response})
	_ = writeEvent(c, StreamEvent{Type: eventTypeDone, Message: "Generation complete"})
}

// GenerateMIDI continues a seed and returns the melody as a Standard MIDI File
func (h *MelodyHandler) GenerateMIDI(c *gin.Context) {
	req, ok := bindGenerationRequest(c)
	if !ok {
		return
	}

	userID, _ := middleware.GetUserIDFromGateway(c)
	gen, err := h.svc.Generate(c.Request.Context(), userID, req, nil)
	if err != nil {
		writeError(c, err)
		return
	}

	data, err := h.svc.RenderMIDI(gen.Events, gen.Params.TempoBPM)
	if err != nil {
		writeError(c, err)
		return
	}

	name := "melody.mid"
	if gen.Response.ID != "" {
		c.Header("X-Melody-ID", gen.Response.ID)
		name = gen.Response.ID + ".mid"
	}
	c.Header("X-Stop-Reason", gen.Response.StopReason)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentTypeMIDI, data)
}

// Get returns a persisted melody
func (h *MelodyHandler) Get(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetMIDI returns a persisted melody as a Standard MIDI File
func (h *MelodyHandler) GetMIDI(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	data, err := h.svc.RecordMIDI(record)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.ID+".mid"))
	c.Data(http.StatusOK, contentTypeMIDI, data)
}

// List returns the caller's recent melodies
func (h *MelodyHandler) List(c *gin.Context) {
	limit := defaultHistoryPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxHistoryPageSize)
	}

	userID, _ := middleware.GetUserIDFromGateway(c)
	records, err := h.svc.List(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"melodies": records,
		"count":    len(records),
	})
}

func bindGenerationRequest(c *gin.Context) (*models.GenerationRequest, bool) {
	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

func writeEvent(c *gin.Context, event StreamEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", eventJSON); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// writeError maps domain errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	var (
		invalid   *melody.InvalidParameterError
		unknown   *melody.UnknownSymbolError
		malformed *melody.MalformedSymbolError
	)

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "parameter": invalid.Name})
	case errors.As(err, &unknown):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "symbol": string(unknown.Symbol), "position": unknown.Position})
	case errors.As(err, &malformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "symbol": string(malformed.Symbol), "position": malformed.Position})
	case errors.Is(err, services.ErrPredictorUnavailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Melody not found"})
	case errors.Is(err, services.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Generation timed out"})
	case errors.Is(err, melody.ErrPredictor):
		fields := logger.Fields{
			"request_id": c.GetString("request_id"),
			"error":      err.Error(),
		}
		logger.Warn("Predictor failed", fields)
		logger.LogToSentry(c.Request.Context(), sentry.LevelWarning, "Predictor failed", fields)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "Predictor failed",
			"request_id": c.GetString("request_id"),
		})
	default:
		// Decoding errors land here: the model and vocabulary disagree
		fields := logger.WithContext(c)
		logger.Error("Melody request failed", err, fields)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Generation failed",
			"request_id": c.GetString("request_id"),
		})
	}
}
