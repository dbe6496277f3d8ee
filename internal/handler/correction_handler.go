package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uniguide/corrections-api/internal/dto"
	"github.com/uniguide/corrections-api/internal/models"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
	"github.com/uniguide/corrections-api/pkg/response"
)

type correctionService interface {
	Submit(ctx context.Context, req dto.SubmitCorrectionRequest, submitterID string) (*models.CorrectionRecord, error)
	List(ctx context.Context, query dto.CorrectionQuery, actor *models.JWTClaims) ([]models.CorrectionRecord, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.CorrectionRecord, error)
	StartReview(ctx context.Context, id string, reviewerID string) (*models.CorrectionRecord, error)
	Approve(ctx context.Context, id string, req dto.ApproveCorrectionRequest, reviewerID string) (*models.CorrectionRecord, error)
	Reject(ctx context.Context, id string, req dto.RejectCorrectionRequest, reviewerID string) (*models.CorrectionRecord, error)
	GenerateMutation(ctx context.Context, id string, actor *models.JWTClaims) (*dto.CompiledMutationResponse, error)
	MarkApplied(ctx context.Context, id string, actorID string) (*models.CorrectionRecord, error)
}

// CorrectionHandler exposes REST endpoints for the correction workflow.
type CorrectionHandler struct {
	service correctionService
}

// NewCorrectionHandler constructs the handler.
func NewCorrectionHandler(service correctionService) *CorrectionHandler {
	return &CorrectionHandler{service: service}
}

// Submit godoc
// @Summary Submit a field correction
// @Tags Corrections
// @Accept json
// @Produce json
// @Param payload body dto.SubmitCorrectionRequest true "Correction payload"
// @Success 201 {object} response.Envelope
// @Router /corrections [post]
func (h *CorrectionHandler) Submit(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	var req dto.SubmitCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid correction payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.service.Submit(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List corrections
// @Tags Corrections
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param entityType query string false "Entity type"
// @Param priority query string false "Priority"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /corrections [get]
func (h *CorrectionHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.CorrectionQuery{
		EntityType: strings.TrimSpace(c.Query("entityType")),
	}
	if raw := c.Query("priority"); raw != "" {
		query.Priority = models.CorrectionPriority(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.CorrectionStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.CorrectionStatus(part))
		}
		query.Status = statuses
	}
	query.Limit = intQuery(c, "limit", 50)
	query.Offset = intQuery(c, "offset", 0)

	records, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Get correction detail
// @Tags Corrections
// @Produce json
// @Param id path string true "Correction ID"
// @Success 200 {object} response.Envelope
// @Router /corrections/{id} [get]
func (h *CorrectionHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// StartReview godoc
// @Summary Claim a pending correction for review
// @Tags Corrections
// @Produce json
// @Param id path string true "Correction ID"
// @Success 200 {object} response.Envelope
// @Router /corrections/{id}/review [post]
func (h *CorrectionHandler) StartReview(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.service.StartReview(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Approve godoc
// @Summary Approve a correction
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Correction ID"
// @Param payload body dto.ApproveCorrectionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Router /corrections/{id}/approve [post]
func (h *CorrectionHandler) Approve(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApproveCorrectionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
			return
		}
	}
	record, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Reject godoc
// @Summary Reject a correction
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Correction ID"
// @Param payload body dto.RejectCorrectionRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /corrections/{id}/reject [post]
func (h *CorrectionHandler) Reject(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	record, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Mutation godoc
// @Summary Inspect the compiled mutation for a correction
// @Tags Corrections
// @Produce json
// @Param id path string true "Correction ID"
// @Success 200 {object} response.Envelope
// @Router /corrections/{id}/mutation [get]
func (h *CorrectionHandler) Mutation(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	mutation, err := h.service.GenerateMutation(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mutation, nil)
}

// MarkApplied godoc
// @Summary Mark a correction as applied out of band
// @Tags Corrections
// @Produce json
// @Param id path string true "Correction ID"
// @Success 200 {object} response.Envelope
// @Router /corrections/{id}/applied [post]
func (h *CorrectionHandler) MarkApplied(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "correction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.service.MarkApplied(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
