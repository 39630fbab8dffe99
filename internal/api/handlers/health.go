package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const healthPingTimeout = 2 * time.Second

type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a health handler. db may be nil when persistence is disabled.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck returns the health status of the API
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	dbStatus := "disabled"
	status := http.StatusOK

	if h.db != nil {
		dbStatus = "connected"
		sqlDB, err := h.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			dbStatus = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	healthStatus := "healthy"
	if status != http.StatusOK {
		healthStatus = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   healthStatus,
		"database": dbStatus,
	})
}
