package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/logger"
	"github.com/timmy/portdesk/internal/service"
)

// IncidentJobs is the slice of the job ledger the handler needs.
type IncidentJobs interface {
	Submit(ctx context.Context, text string) (*domain.IncidentJob, error)
	Get(ctx context.Context, runID string) (*domain.IncidentJob, error)
	List(ctx context.Context, limit int) ([]*domain.IncidentJob, error)
}

// IncidentHandler serves the asynchronous incident analysis endpoints.
type IncidentHandler struct {
	jobs IncidentJobs
}

func NewIncidentHandler(jobs IncidentJobs) *IncidentHandler {
	return &IncidentHandler{jobs: jobs}
}

// SubmitRequest is the body of POST /api/v1/incidents.
type SubmitRequest struct {
	IncidentText string `json:"incident_text"`
}

// Submit handles POST /api/v1/incidents. The job is accepted and analysed
// in the background.
func (h *IncidentHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), req.IncidentText)
	if err != nil {
		if errors.Is(err, service.ErrEmptyIncident) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.CtxError(c.Request.Context(), "submit incident: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue incident: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":     job.RunID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
	})
}

// Get handles GET /api/v1/incidents/:run_id.
func (h *IncidentHandler) Get(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// List handles GET /api/v1/incidents?limit=N.
func (h *IncidentHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	jobs, err := h.jobs.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}
