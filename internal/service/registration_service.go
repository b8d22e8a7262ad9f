package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
	"github.com/campushub/events-api/pkg/qrtoken"
)

type registrationStore interface {
	Create(ctx context.Context, registration *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindLatestByEventAndUser(ctx context.Context, eventID, userID string) (*models.Registration, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	CountActive(ctx context.Context, eventID string) (int, error)
	Cancel(ctx context.Context, id string, at time.Time) (*models.Registration, error)
}

type registrationEventReader interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

type tokenIssuer interface {
	Encode(payload qrtoken.Payload) (string, error)
}

// RegistrationService handles student enrollment. Capacity and event state
// checks happen inside the repository transaction; this layer issues the
// signed token up front so a registration row is never stored without one.
type RegistrationService struct {
	repo   registrationStore
	events registrationEventReader
	codec  tokenIssuer
	audit  auditLogger
	notify notifier
	logger *zap.Logger
}

// NewRegistrationService constructs the service.
func NewRegistrationService(repo registrationStore, events registrationEventReader, codec tokenIssuer, audit auditLogger, notify notifier, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:   repo,
		events: events,
		codec:  codec,
		audit:  audit,
		notify: notify,
		logger: logger,
	}
}

// Register enrolls a user for an event. The registration ID and its signed
// token are minted before the insert; the token never changes afterwards.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	nonce, err := qrtoken.NewNonce()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token nonce")
	}

	registration := &models.Registration{
		ID:           uuid.NewString(),
		EventID:      eventID,
		UserID:       userID,
		RegisteredAt: time.Now().UTC(),
	}
	token, err := s.codec.Encode(qrtoken.Payload{
		RegistrationID: registration.ID,
		EventID:        eventID,
		UserID:         userID,
		IssuedAt:       registration.RegisteredAt.Unix(),
		Nonce:          nonce,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue registration token")
	}
	registration.Token = token

	if err := s.repo.Create(ctx, registration); err != nil {
		if appErr := knownRegistrationError(err); appErr != nil {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	s.recordAudit(ctx, userID, models.AuditActionRegistrationCreate, registration.ID)
	if s.notify != nil {
		s.notify.Notify(ctx, Notification{
			Type:    NotificationRegistrationMade,
			EventID: eventID,
			UserID:  userID,
			Message: "registration confirmed",
		})
	}
	return registration, nil
}

// Get returns the target user's registration for an event with event and
// attendee context. Students may only read their own registration; an empty
// target defaults to the caller.
func (s *RegistrationService) Get(ctx context.Context, eventID, targetUserID, callerID string, role models.UserRole) (*models.RegistrationDetail, error) {
	registration, err := s.resolveTarget(ctx, eventID, targetUserID, callerID, role)
	if err != nil {
		return nil, err
	}
	detail, err := s.repo.FindDetailByID(ctx, registration.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return detail, nil
}

// List returns registrations for the caller's scope. Students are pinned to
// their own rows regardless of the requested filter.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter, callerID string, role models.UserRole) ([]models.RegistrationDetail, *models.Pagination, error) {
	if role == models.RoleStudent {
		filter.UserID = callerID
	}
	registrations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return registrations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Availability reports how many seats remain for an event.
func (s *RegistrationService) Availability(ctx context.Context, eventID string) (active, capacity int, err error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	active, err = s.repo.CountActive(ctx, eventID)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	return active, event.MaxParticipants, nil
}

// Cancel releases the target user's seat for an event. Cancelling twice or
// cancelling after attendance surfaces the terminal state instead of silently
// rewriting it, and a registration for an event that already ended stays on
// the books.
func (s *RegistrationService) Cancel(ctx context.Context, eventID, targetUserID, callerID string, role models.UserRole) (*models.Registration, error) {
	existing, err := s.resolveTarget(ctx, eventID, targetUserID, callerID, role)
	if err != nil {
		return nil, err
	}
	switch existing.Status {
	case models.RegistrationStatusCancelled:
		return nil, appErrors.Clone(appErrors.ErrAlreadyCancelled, "")
	case models.RegistrationStatusAttended:
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance has already been marked")
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if !event.EndDate.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrEventEnded, "event has already ended; registration cannot be cancelled")
	}

	registration, err := s.repo.Cancel(ctx, existing.ID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.terminalCancelError(ctx, existing.ID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}

	s.recordAudit(ctx, callerID, models.AuditActionRegistrationCancel, registration.ID)
	return registration, nil
}

// resolveTarget finds the registration a caller is addressing by event.
// Callers may always address their own; another user's registration is
// reachable only by an admin or by the organizer of that event.
func (s *RegistrationService) resolveTarget(ctx context.Context, eventID, targetUserID, callerID string, role models.UserRole) (*models.Registration, error) {
	if targetUserID == "" {
		targetUserID = callerID
	}
	if targetUserID != callerID && role != models.RoleAdmin {
		if role == models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "registration belongs to another user")
		}
		event, err := s.events.FindByID(ctx, eventID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
		}
		if event.OrganizerID != callerID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "registration belongs to an event you do not organize")
		}
	}
	registration, err := s.repo.FindLatestByEventAndUser(ctx, eventID, targetUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return registration, nil
}

// terminalCancelError re-reads a registration whose cancel lost the guarded
// update to name the terminal state the caller collided with.
func (s *RegistrationService) terminalCancelError(ctx context.Context, id string) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload registration")
	}
	switch current.Status {
	case models.RegistrationStatusCancelled:
		return appErrors.Clone(appErrors.ErrAlreadyCancelled, "")
	case models.RegistrationStatusAttended:
		return appErrors.Clone(appErrors.ErrConflict, "attendance has already been marked")
	default:
		return appErrors.Clone(appErrors.ErrConflict, "registration cannot be cancelled")
	}
}

func knownRegistrationError(err error) *appErrors.Error {
	for _, candidate := range []*appErrors.Error{
		appErrors.ErrEventNotApproved,
		appErrors.ErrEventEnded,
		appErrors.ErrCapacityExceeded,
		appErrors.ErrConflict,
		appErrors.ErrNotFound,
	} {
		if appErrors.Is(err, candidate) {
			return appErrors.FromError(err)
		}
	}
	return nil
}

func (s *RegistrationService) recordAudit(ctx context.Context, userID string, action string, registrationID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "registration",
		ResourceID: &registrationID,
	}); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.Error(err))
	}
}
