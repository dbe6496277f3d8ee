package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uniguide/corrections-api/internal/models"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
	"github.com/uniguide/corrections-api/pkg/response"
)

type batchJobService interface {
	GetJob(ctx context.Context, id string) (*models.BatchJob, error)
	ListJobs(ctx context.Context, filter models.BatchJobFilter) ([]models.BatchJob, error)
	RequeueJob(ctx context.Context, jobID string, actorID string) (*models.BatchJob, error)
	QueueStats(ctx context.Context) (*models.QueueStats, error)
}

// BatchJobHandler exposes operator endpoints for the apply queue.
type BatchJobHandler struct {
	service batchJobService
}

// NewBatchJobHandler constructs the handler.
func NewBatchJobHandler(service batchJobService) *BatchJobHandler {
	return &BatchJobHandler{service: service}
}

// List godoc
// @Summary List batch jobs
// @Tags BatchJobs
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param correctionId query string false "Correction ID"
// @Param entityId query string false "Entity ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /batch-jobs [get]
func (h *BatchJobHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch job service not configured"))
		return
	}
	filter := models.BatchJobFilter{
		CorrectionID: strings.TrimSpace(c.Query("correctionId")),
		EntityID:     strings.TrimSpace(c.Query("entityId")),
		Limit:        intQuery(c, "limit", 50),
		Offset:       intQuery(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.BatchJobStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.BatchJobStatus(part))
		}
		filter.Status = statuses
	}
	jobs, err := h.service.ListJobs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Get godoc
// @Summary Get batch job detail
// @Tags BatchJobs
// @Produce json
// @Param id path string true "Batch job ID"
// @Success 200 {object} response.Envelope
// @Router /batch-jobs/{id} [get]
func (h *BatchJobHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch job service not configured"))
		return
	}
	job, err := h.service.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Requeue godoc
// @Summary Requeue a failed batch job
// @Tags BatchJobs
// @Produce json
// @Param id path string true "Batch job ID"
// @Success 200 {object} response.Envelope
// @Router /batch-jobs/{id}/requeue [post]
func (h *BatchJobHandler) Requeue(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch job service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.service.RequeueJob(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// QueueStats godoc
// @Summary Queue status counts and dispatch depth
// @Tags BatchJobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/stats [get]
func (h *BatchJobHandler) QueueStats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch job service not configured"))
		return
	}
	stats, err := h.service.QueueStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
