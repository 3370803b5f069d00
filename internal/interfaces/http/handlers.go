package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe reports the state of the running service
type Probe interface {
	// Ready is true once every component has started
	Ready() bool
	Health(ctx context.Context) *HealthStatus
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	probe  Probe
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(probe Probe, logger Logger) *Handlers {
	return &Handlers{
		probe:  probe,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Health    *HealthStatus `json:"health"`
}

// IsAlive handles GET /isalive
func (h *Handlers) IsAlive(c *gin.Context) {
	c.String(http.StatusOK, "ALIVE")
}

// IsReady handles GET /isready
func (h *Handlers) IsReady(c *gin.Context) {
	if !h.probe.Ready() {
		c.String(http.StatusServiceUnavailable, "NOT READY")
		return
	}
	if status := h.probe.Health(c.Request.Context()); !status.Overall {
		c.String(http.StatusServiceUnavailable, "NOT READY")
		return
	}
	c.String(http.StatusOK, "READY")
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := h.probe.Health(c.Request.Context())

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Health:    status,
	}
	code := http.StatusOK
	if !status.Overall {
		response.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		h.logger.Error("Health check failed", "components", status.Components)
	}

	c.JSON(code, Response{
		Success: status.Overall,
		Data:    response,
	})
}
