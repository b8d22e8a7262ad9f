package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
	"github.com/campushub/events-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, eventID, userID string) (*models.Registration, error)
	Get(ctx context.Context, eventID, targetUserID, callerID string, role models.UserRole) (*models.RegistrationDetail, error)
	List(ctx context.Context, filter models.RegistrationFilter, callerID string, role models.UserRole) ([]models.RegistrationDetail, *models.Pagination, error)
	Availability(ctx context.Context, eventID string) (active, capacity int, err error)
	Cancel(ctx context.Context, eventID, targetUserID, callerID string, role models.UserRole) (*models.Registration, error)
}

// RegistrationHandler exposes enrollment endpoints.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(service registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// Register godoc
// @Summary Register for an event
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	registration, err := h.service.Register(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registration)
}

// List godoc
// @Summary List registrations
// @Tags Registrations
// @Produce json
// @Param event_id query string false "Event ID"
// @Param status query string false "Registration status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.RegistrationFilter{
		EventID:   strings.TrimSpace(c.Query("event_id")),
		SortBy:    c.DefaultQuery("sort_by", "registered_at"),
		SortOrder: c.DefaultQuery("sort_order", "asc"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.RegistrationStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown registration status"))
			return
		}
		filter.Status = status
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	registrations, pagination, err := h.service.List(c.Request.Context(), filter, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, pagination)
}

// Get godoc
// @Summary Get a registration for an event
// @Description Returns the caller's registration by default; organizers and
// @Description admins may target another attendee with user_id.
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Param user_id query string false "Target user (staff only)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), strings.TrimSpace(c.Query("user_id")), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Availability godoc
// @Summary Report remaining capacity for an event
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/availability [get]
func (h *RegistrationHandler) Availability(c *gin.Context) {
	active, capacity, err := h.service.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"active":    active,
		"capacity":  capacity,
		"remaining": capacity - active,
	}, nil)
}

// Cancel godoc
// @Summary Cancel a registration for an event
// @Description Cancels the caller's registration by default; organizers and
// @Description admins may target another attendee with user_id.
// @Tags Registrations
// @Produce json
// @Param id path string true "Event ID"
// @Param user_id query string false "Target user (staff only)"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	registration, err := h.service.Cancel(c.Request.Context(), c.Param("id"), strings.TrimSpace(c.Query("user_id")), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}
