package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/admission"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/progress"
)

type JobGetter interface {
	Get(ctx context.Context, id string) (*domain.SyncJob, error)
}

// Handler exposes the two thin endpoints of the engine: submit a sync and
// query its progress. Authentication happens upstream; the user ID arrives
// in a header set by the gateway.
type Handler struct {
	admission   *admission.Controller
	jobs        JobGetter
	broadcaster *progress.Broadcaster
	logger      *slog.Logger
}

func NewHandler(
	ctrl *admission.Controller,
	jobs JobGetter,
	broadcaster *progress.Broadcaster,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		admission:   ctrl,
		jobs:        jobs,
		broadcaster: broadcaster,
		logger:      logger.With("component", "server"),
	}
}

func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	v1.POST("/sync", h.submitSync)
	v1.GET("/sync/status", h.syncStatus)
}

type syncRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Scope     string `json:"scope"`
	Priority  int    `json:"priority"`
}

func (h *Handler) submitSync(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-User-ID header"})
		return
	}

	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Scope == "" {
		req.Scope = string(domain.ScopeFull)
	}
	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.admission.Submit(c.Request.Context(), admission.SubmitRequest{
		AccountID: req.AccountID,
		UserID:    userID,
		Scope:     scope,
		Priority:  req.Priority,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     job.ID,
		"status_url": "/api/v1/sync/status?job_id=" + job.ID,
	})
}

func (h *Handler) writeSubmitError(c *gin.Context, err error) {
	var rateErr *domain.RateLimitedError
	switch {
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrAccountInactive):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &rateErr):
		c.Header("Retry-After", fmt.Sprint(int(rateErr.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("submit failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) syncStatus(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing job_id"})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("status lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := gin.H{
		"job_id": job.ID,
		"status": job.Status,
	}
	if job.Error != nil {
		resp["error"] = *job.Error
	}
	if ev, ok := h.broadcaster.Last(jobID); ok {
		resp["stage"] = ev.Stage
		resp["stage_status"] = ev.Status
		resp["counts"] = ev.Counts
		resp["percentage"] = ev.Percentage
		if ev.ETAMillis > 0 {
			resp["eta_ms"] = ev.ETAMillis
		}
		if ev.Error != "" {
			resp["error"] = ev.Error
		}
	} else {
		resp["stage"] = domain.StageInit
		resp["percentage"] = 0
	}

	c.JSON(http.StatusOK, resp)
}
