package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
	"github.com/campushub/events-api/pkg/response"
)

type eventService interface {
	Create(ctx context.Context, organizerID string, req dto.CreateEventRequest) (*models.Event, error)
	Get(ctx context.Context, id string) (*models.EventDetail, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, *models.Pagination, error)
	Update(ctx context.Context, eventID, userID string, role models.UserRole, req dto.UpdateEventRequest) (*models.Event, error)
	Cancel(ctx context.Context, eventID, userID string, role models.UserRole) error
}

type submitService interface {
	Submit(ctx context.Context, eventID, userID string, role models.UserRole) (*models.ApprovalRecord, error)
}

// EventHandler exposes REST endpoints for event management.
type EventHandler struct {
	service   eventService
	approvals submitService
}

// NewEventHandler constructs the handler.
func NewEventHandler(service eventService, approvals submitService) *EventHandler {
	return &EventHandler{service: service, approvals: approvals}
}

// Create godoc
// @Summary Create an event draft
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid event payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	event, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// List godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param status query string false "Event status"
// @Param organizer_id query string false "Organizer ID"
// @Param search query string false "Title or location search"
// @Param upcoming query bool false "Only events that have not ended"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	filter := models.EventFilter{
		OrganizerID: strings.TrimSpace(c.Query("organizer_id")),
		Search:      strings.TrimSpace(c.Query("search")),
		SortBy:      c.DefaultQuery("sort_by", "start_date"),
		SortOrder:   c.DefaultQuery("sort_order", "asc"),
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = models.EventStatus(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if raw := c.Query("upcoming"); raw != "" {
		filter.Upcoming, _ = strconv.ParseBool(raw)
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	// unauthenticated and student traffic only sees approved events
	claims := claimsFromContext(c)
	if claims == nil || claims.Role == models.RoleStudent {
		filter.Status = models.EventStatusApproved
	}

	events, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get event detail
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	claims := claimsFromContext(c)
	if detail.Status != models.EventStatusApproved {
		if claims == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "event not found"))
			return
		}
		if claims.Role == models.RoleStudent {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "event not found"))
			return
		}
		if claims.Role == models.RoleOrganizer && detail.OrganizerID != claims.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "event not found"))
			return
		}
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update an editable event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid event payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	event, err := h.service.Update(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Cancel godoc
// @Summary Cancel an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 204 "No Content"
// @Failure 409 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *EventHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit an event for review
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/submit [post]
func (h *EventHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.approvals.Submit(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
