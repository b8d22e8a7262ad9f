package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
	"github.com/campushub/events-api/pkg/export"
	"github.com/campushub/events-api/pkg/qrtoken"
)

type attendanceStore interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	MarkAttended(ctx context.Context, id string, at time.Time) (*models.Registration, error)
}

type tokenVerifier interface {
	Decode(raw string) (*qrtoken.Payload, error)
}

type rosterRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type rosterPDFRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// AttendanceService implements check-in at the event door. A scan verifies the
// token, binds it to the scanner's event, and flips the registration through a
// guarded update so repeated scans of the same code stay idempotent.
type AttendanceService struct {
	repo   attendanceStore
	events registrationEventReader
	codec  tokenVerifier
	audit  auditLogger
	notify notifier
	csv    rosterRenderer
	pdf    rosterPDFRenderer
	logger *zap.Logger
}

// NewAttendanceService constructs the service.
func NewAttendanceService(repo attendanceStore, events registrationEventReader, codec tokenVerifier, audit auditLogger, notify notifier, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:   repo,
		events: events,
		codec:  codec,
		audit:  audit,
		notify: notify,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// Mark processes a scanned token at the door of eventID. A token that was
// already consumed is not an error: the result carries already_attended and
// the timestamp of the original scan, so a flaky scanner retry reads as a
// success at the kiosk.
func (s *AttendanceService) Mark(ctx context.Context, eventID, scannerID string, role models.UserRole, req dto.MarkAttendanceRequest) (*dto.AttendanceResult, error) {
	raw := req.Raw()
	if raw == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a scanned token is required")
	}

	if _, err := s.loadScopedEvent(ctx, eventID, scannerID, role); err != nil {
		return nil, err
	}

	registration, detail, err := s.resolveToken(ctx, eventID, raw)
	if err != nil {
		return nil, err
	}
	if req.RegistrationID != "" && req.RegistrationID != registration.ID {
		return nil, appErrors.Clone(appErrors.ErrIntegrityCheckFailed, "token does not match the scanned registration")
	}

	switch registration.Status {
	case models.RegistrationStatusCancelled:
		return nil, appErrors.Clone(appErrors.ErrRegistrationCancelled, "")
	case models.RegistrationStatusAttended:
		return attendedResult(registration, detail, true), nil
	}

	now := time.Now().UTC()
	updated, err := s.repo.MarkAttended(ctx, registration.ID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// lost the guarded update to a concurrent scan or cancel
			return s.resolveRace(ctx, eventID, registration.ID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	s.recordAudit(ctx, scannerID, updated.ID)
	if s.notify != nil {
		s.notify.Notify(ctx, Notification{
			Type:    NotificationAttendanceMarked,
			EventID: eventID,
			UserID:  updated.UserID,
			Message: "attendance recorded",
		})
	}
	return attendedResult(updated, detail, false), nil
}

// Validate dry-runs a scan without mutating anything, for scanner self-test
// and pre-flight checks at the door.
func (s *AttendanceService) Validate(ctx context.Context, eventID, token string) *dto.TokenValidationResult {
	registration, _, err := s.resolveToken(ctx, eventID, token)
	if err != nil {
		return &dto.TokenValidationResult{Valid: false, Reason: appErrors.FromError(err).Code}
	}
	result := &dto.TokenValidationResult{
		Valid:          registration.Status == models.RegistrationStatusRegistered,
		RegistrationID: registration.ID,
		EventID:        registration.EventID,
		UserID:         registration.UserID,
		Status:         registration.Status,
	}
	if !result.Valid {
		result.Reason = string(registration.Status)
	}
	return result
}

// Roster lists an event's registrations for the attendance view. Rows carry
// each attendee's token, so access follows the same organizer-or-admin scope
// as marking.
func (s *AttendanceService) Roster(ctx context.Context, eventID, callerID string, role models.UserRole, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	if _, err := s.loadScopedEvent(ctx, eventID, callerID, role); err != nil {
		return nil, nil, err
	}
	filter.EventID = eventID
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ExportRoster renders the full roster for an event as CSV or PDF bytes.
func (s *AttendanceService) ExportRoster(ctx context.Context, eventID, callerID string, role models.UserRole, format string) ([]byte, string, error) {
	event, err := s.loadScopedEvent(ctx, eventID, callerID, role)
	if err != nil {
		return nil, "", err
	}

	var rows []models.RegistrationDetail
	for page := 1; ; page++ {
		batch, _, err := s.repo.List(ctx, models.RegistrationFilter{EventID: eventID, Page: page, PageSize: 100, SortBy: "user_name"})
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
		}
		rows = append(rows, batch...)
		if len(batch) < 100 {
			break
		}
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "Email", "Status", "Registered At", "Attended At"},
	}
	for _, row := range rows {
		attendedAt := ""
		if row.AttendedAt != nil {
			attendedAt = row.AttendedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":          row.UserName,
			"Email":         row.UserEmail,
			"Status":        string(row.Status),
			"Registered At": row.RegisteredAt.UTC().Format(time.RFC3339),
			"Attended At":   attendedAt,
		})
	}

	switch format {
	case "pdf":
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Attendance - %s", event.Title))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// loadScopedEvent loads an event and enforces that the caller is its
// organizer or an admin.
func (s *AttendanceService) loadScopedEvent(ctx context.Context, eventID, callerID string, role models.UserRole) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if role != models.RoleAdmin && event.OrganizerID != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event attendance is limited to its organizer or an admin")
	}
	return event, nil
}

// resolveToken verifies a token and binds it to the scanner's event. The
// registration row, not the token payload, is the source of truth for status.
func (s *AttendanceService) resolveToken(ctx context.Context, eventID, token string) (*models.Registration, *models.RegistrationDetail, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		return nil, nil, err
	}

	registration, err := s.repo.FindByID(ctx, payload.RegistrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}

	// the payload must agree with the stored row and the scanner's event
	if registration.EventID != payload.EventID || registration.UserID != payload.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrIntegrityCheckFailed, "token does not match its registration")
	}
	if eventID != "" && registration.EventID != eventID {
		return nil, nil, appErrors.Clone(appErrors.ErrEventMismatch, "")
	}

	detail, err := s.repo.FindDetailByID(ctx, registration.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to load registration detail", zap.Error(err))
	}
	return registration, detail, nil
}

// resolveRace re-reads a registration after a lost guarded update. A
// concurrent scan that won is still an idempotent success.
func (s *AttendanceService) resolveRace(ctx context.Context, eventID, registrationID string) (*dto.AttendanceResult, error) {
	current, err := s.repo.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload registration")
	}
	switch current.Status {
	case models.RegistrationStatusAttended:
		return attendedResult(current, nil, true), nil
	case models.RegistrationStatusCancelled:
		return nil, appErrors.Clone(appErrors.ErrRegistrationCancelled, "")
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration state changed during scan")
	}
}

func attendedResult(registration *models.Registration, detail *models.RegistrationDetail, already bool) *dto.AttendanceResult {
	result := &dto.AttendanceResult{
		RegistrationID:  registration.ID,
		EventID:         registration.EventID,
		UserID:          registration.UserID,
		Status:          models.RegistrationStatusAttended,
		AlreadyAttended: already,
	}
	if registration.AttendedAt != nil {
		result.AttendedAt = *registration.AttendedAt
	}
	if detail != nil {
		result.UserName = detail.UserName
	}
	return result
}

func (s *AttendanceService) recordAudit(ctx context.Context, scannerID, registrationID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &scannerID,
		Action:     models.AuditActionAttendanceMark,
		Resource:   "registration",
		ResourceID: &registrationID,
	}); err != nil {
		s.logger.Warn("failed to record attendance audit log", zap.Error(err))
	}
}
