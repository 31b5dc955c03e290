package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	mode   string
	checks map[string]Check
}

// NewHealthHandler creates a health handler reporting the reasoning mode
// and the result of each named check.
func NewHealthHandler(mode string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{mode: mode, checks: checks}
}

// Health returns the health status of the service. A failing check marks
// the service degraded but the response is still 200.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"reasoning_mode": h.mode,
		"components":     components,
	})
}
