package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	"github.com/campushub/events-api/internal/repository"
	appErrors "github.com/campushub/events-api/pkg/errors"
	"github.com/campushub/events-api/pkg/response"
)

type approvalService interface {
	Decide(ctx context.Context, eventID, reviewerID string, role models.UserRole, req dto.DecisionRequest) (*repository.DecisionResult, error)
	ListByEvent(ctx context.Context, eventID string, includeArchived bool) ([]models.ApprovalRecord, error)
	ListPending(ctx context.Context, role models.UserRole, page, pageSize int) ([]models.EventDetail, *models.Pagination, error)
}

// ApprovalHandler exposes the review queue and decision endpoints.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// ListPending godoc
// @Summary List events awaiting the caller's review
// @Tags Approvals
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	events, pagination, err := h.service.ListPending(c.Request.Context(), claims.Role, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Decide godoc
// @Summary Record a review decision for an event
// @Tags Approvals
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /approvals/{eventId} [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Decide(c.Request.Context(), c.Param("eventId"), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary List the approval trail of an event
// @Tags Approvals
// @Produce json
// @Param id path string true "Event ID"
// @Param include_archived query bool false "Include archived records from earlier submissions"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/approvals [get]
func (h *ApprovalHandler) History(c *gin.Context) {
	includeArchived, _ := strconv.ParseBool(c.Query("include_archived"))
	records, err := h.service.ListByEvent(c.Request.Context(), c.Param("id"), includeArchived)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
