package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
	"github.com/campushub/events-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, eventID, scannerID string, role models.UserRole, req dto.MarkAttendanceRequest) (*dto.AttendanceResult, error)
	Validate(ctx context.Context, eventID, token string) *dto.TokenValidationResult
	Roster(ctx context.Context, eventID, callerID string, role models.UserRole, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error)
	ExportRoster(ctx context.Context, eventID, callerID string, role models.UserRole, format string) ([]byte, string, error)
}

// AttendanceHandler exposes check-in endpoints for event staff.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Mark godoc
// @Summary Mark attendance from a scanned QR token
// @Description A token that was already consumed still returns 200 with
// @Description already_attended set, so scanner retries read as success.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.MarkAttendanceRequest true "Scanned token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid attendance payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Mark(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if result.AlreadyAttended {
		meta = map[string]interface{}{"already_attended": true}
	}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// Validate godoc
// @Summary Dry-run a token scan without marking attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.MarkAttendanceRequest true "Token to validate"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/attendance/validate [post]
func (h *AttendanceHandler) Validate(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid validation payload"))
		return
	}
	result := h.service.Validate(c.Request.Context(), c.Param("id"), req.Raw())
	response.JSON(c, http.StatusOK, result, nil)
}

// Roster godoc
// @Summary List an event's registrations with attendance state
// @Tags Attendance
// @Produce json
// @Param id path string true "Event ID"
// @Param status query string false "Registration status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/attendance [get]
func (h *AttendanceHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.RegistrationFilter{
		SortBy:    c.DefaultQuery("sort_by", "user_name"),
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

	rows, pagination, err := h.service.Roster(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Export godoc
// @Summary Export an event roster as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param id path string true "Event ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} byte
// @Router /events/{id}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	payload, contentType, err := h.service.ExportRoster(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("attendance-%s.%s", c.Param("id"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
