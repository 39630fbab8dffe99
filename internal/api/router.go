package api

import (
	"github.com/Conceptual-Machines/melody-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/metrics"
	"github.com/Conceptual-Machines/melody-api/internal/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter wires the routes. db may be nil when persistence is disabled.
func SetupRouter(
	db *gorm.DB, cfg *config.Config, svc *services.MelodyService, cloudwatch *metrics.Client, version string,
) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(cloudwatch))

	// CORS middleware
	router.Use(apimiddleware.CORS())

	// Health check
	healthHandler := handlers.NewHealthHandler(db)
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoint
	metricsHandler := handlers.NewMetricsHandler(version, cfg.PredictorBackend, svc.HasHistory())
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	melodyHandler := handlers.NewMelodyHandler(svc)

	// Protected API routes v1
	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(cfg))
	{
		v1.GET("/vocabulary", melodyHandler.Vocabulary)

		v1.POST("/melodies", melodyHandler.Generate)
		v1.POST("/melodies/stream", melodyHandler.GenerateStream)
		v1.POST("/melodies/midi", melodyHandler.GenerateMIDI)

		// History (requires DATABASE_URL)
		v1.GET("/melodies", melodyHandler.List)
		v1.GET("/melodies/:id", melodyHandler.Get)
		v1.GET("/melodies/:id/midi", melodyHandler.GetMIDI)
	}

	return router
}

func authMiddleware(cfg *config.Config) gin.HandlerFunc {
	if cfg.IsGatewayMode() {
		return apimiddleware.GatewayAuth()
	}
	if cfg.AuthMode == config.AuthModeJWT {
		return middleware.JWTAuth(cfg)
	}
	return apimiddleware.NoAuth()
}
