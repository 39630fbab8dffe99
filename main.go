package main

import (
	"context"
	"log"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/api"
	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/database"
	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/metrics"
	"github.com/Conceptual-Machines/melody-api/internal/observability"
	"github.com/Conceptual-Machines/melody-api/internal/predictor"
	"github.com/Conceptual-Machines/melody-api/internal/services"
	"github.com/Conceptual-Machines/melody-api/pkg/embedded"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "melody-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
			Debug:            cfg.Environment != environmentProduction,
			BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				// Filter out sensitive data
				if event.Request != nil {
					event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
				}
				return event
			},
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			// Flush on shutdown
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	vocab, err := loadVocabulary(cfg.MappingPath)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to load vocabulary: ", err)
	}
	log.Printf("🎼 Vocabulary loaded (%d symbols)", vocab.Size())

	factory, err := predictor.NewFactory(vocab, cfg.OpenAIAPIKey, cfg.GeminiAPIKey, cfg.ModelPath)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to load transition model: ", err)
	}

	// Persistence is optional; without it the history endpoints return 503
	var (
		db    *gorm.DB
		store services.Store
	)
	if cfg.HasDatabase() {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			sentry.CaptureException(err)
			log.Fatal("Failed to connect to database:", err)
		}

		if err := database.Migrate(db); err != nil {
			sentry.CaptureException(err)
			log.Fatal("Failed to run migrations:", err)
		}
		store = services.NewMelodyStore(db)
	} else {
		log.Println("⚠️  DATABASE_URL not set, melody history disabled")
	}

	ctx := context.Background()
	cloudwatch, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		log.Printf("Failed to initialize CloudWatch metrics: %v", err)
	}
	langfuse := observability.InitializeLangfuse(ctx, cfg)

	svc := services.NewMelodyService(vocab, factory, store, services.DefaultsFromConfig(cfg)).
		WithMetrics(cloudwatch, metrics.NewSentryMetrics()).
		WithLangfuse(langfuse)

	// Set Gin mode
	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := api.SetupRouter(db, cfg, svc, cloudwatch, GetVersion())

	log.Printf("🚀 Starting server on port %s (predictor: %s)", cfg.Port, cfg.PredictorBackend)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}

// loadVocabulary reads the mapping file at path, or the embedded mapping when path is empty
func loadVocabulary(path string) (*melody.Vocabulary, error) {
	if path == "" {
		return melody.ParseVocabulary(embedded.MappingJSON)
	}
	return melody.LoadVocabulary(path)
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization": true,
		"cookie":        true,
		"x-api-key":     true,
	}

	for k, v := range headers {
		if sensitiveKeys[k] {
			filtered[k] = "[REDACTED]"
		} else {
			filtered[k] = v
		}
	}
	return filtered
}
