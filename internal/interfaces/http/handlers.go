package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	health HealthChecker
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		health: health,
		logger: logger,
	}
}

// HealthResponse represents the liveness response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HealthCheck reports that the process is serving
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyCheck reports 200 only when the container is started and every
// component is healthy
func (h *Handlers) ReadyCheck(c *gin.Context) {
	if !h.health.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := h.health.Health(ctx)
	if !status.Overall {
		h.logger.Error("Readiness check failed", "components", status.Components)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "health": status})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ready": true, "health": status})
}
