package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	"github.com/campushub/events-api/internal/repository"
	appErrors "github.com/campushub/events-api/pkg/errors"
)

type approvalStore interface {
	ListByEvent(ctx context.Context, eventID string, includeArchived bool) ([]models.ApprovalRecord, error)
	Submit(ctx context.Context, eventID string, from models.EventStatus) (*models.ApprovalRecord, error)
	Decide(ctx context.Context, params repository.DecisionParams) (*repository.DecisionResult, error)
}

type approvalEventStore interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error)
}

type notifier interface {
	Notify(ctx context.Context, notification Notification)
}

// ApprovalService drives the review workflow: submission into faculty review
// and the two-stage decision sequence. All state changes go through the
// repository's guarded transactions; this layer maps the outcomes onto the
// API error taxonomy and handles the side effects.
type ApprovalService struct {
	repo      approvalStore
	events    approvalEventStore
	cache     eventCache
	audit     auditLogger
	notify    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(repo approvalStore, events approvalEventStore, cache eventCache, audit auditLogger, notify notifier, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApprovalService{
		repo:      repo,
		events:    events,
		cache:     cache,
		audit:     audit,
		notify:    notify,
		validator: validate,
		logger:    logger,
	}
}

// Submit moves a DRAFT or REJECTED event into faculty review. Resubmitting a
// rejected event archives its previous approval records.
func (s *ApprovalService) Submit(ctx context.Context, eventID, userID string, role models.UserRole) (*models.ApprovalRecord, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if role != models.RoleAdmin && event.OrganizerID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event belongs to another organizer")
	}
	if event.Cancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cancelled event cannot be submitted")
	}
	if event.Status != models.EventStatusDraft && event.Status != models.EventStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("event in %s cannot be submitted", event.Status))
	}

	record, err := s.repo.Submit(ctx, eventID, event.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// a concurrent submit or decision moved the event first
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "event is no longer submittable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit event")
	}

	s.recordAudit(ctx, userID, models.AuditActionEventSubmit, eventID, record)
	s.invalidate(ctx, eventID)
	if s.notify != nil {
		s.notify.Notify(ctx, Notification{
			Type:       NotificationEventSubmitted,
			EventID:    eventID,
			EventTitle: event.Title,
			Message:    fmt.Sprintf("%q was submitted for faculty review", event.Title),
		})
	}
	return record, nil
}

// Decide records a reviewer decision for the stage matching the reviewer's
// role. Rejections require a comment. The first decision on a pending record
// wins; everything after maps to the already-decided conflict.
func (s *ApprovalService) Decide(ctx context.Context, eventID, reviewerID string, role models.UserRole, req dto.DecisionRequest) (*repository.DecisionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	decision := models.ApprovalStatus(req.Decision)
	comment := strings.TrimSpace(req.Comment)
	if decision == models.ApprovalStatusRejected && comment == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection requires a comment")
	}

	var level models.ApprovalLevel
	switch role {
	case models.RoleFaculty:
		level = models.ApprovalLevelFaculty
	case models.RoleAdmin:
		level = models.ApprovalLevelAdmin
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot review events")
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if event.Cancelled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "event has been cancelled")
	}
	if err := checkStage(event.Status, level); err != nil {
		return nil, err
	}

	params := repository.DecisionParams{
		EventID:    eventID,
		Level:      level,
		Decision:   decision,
		ReviewerID: reviewerID,
		DecidedAt:  time.Now().UTC(),
	}
	if comment != "" {
		params.Comment = &comment
	}

	result, err := s.repo.Decide(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.lostDecisionError(ctx, eventID, level)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	s.recordAudit(ctx, reviewerID, models.AuditActionApprovalDecision, eventID, result.Record)
	s.invalidate(ctx, eventID)
	if s.notify != nil {
		s.notify.Notify(ctx, Notification{
			Type:       NotificationEventDecided,
			EventID:    eventID,
			EventTitle: event.Title,
			UserID:     event.OrganizerID,
			Message:    fmt.Sprintf("%q moved to %s", event.Title, result.EventStatus),
		})
	}
	return result, nil
}

// ListByEvent returns the approval trail for an event.
func (s *ApprovalService) ListByEvent(ctx context.Context, eventID string, includeArchived bool) ([]models.ApprovalRecord, error) {
	records, err := s.repo.ListByEvent(ctx, eventID, includeArchived)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approval records")
	}
	return records, nil
}

// ListPending returns the review queue for a reviewer role: faculty see
// events awaiting faculty review, admins see events awaiting admin review.
func (s *ApprovalService) ListPending(ctx context.Context, role models.UserRole, page, pageSize int) ([]models.EventDetail, *models.Pagination, error) {
	var status models.EventStatus
	switch role {
	case models.RoleFaculty:
		status = models.EventStatusFacultyPending
	case models.RoleAdmin:
		status = models.EventStatusAdminPending
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role has no review queue")
	}

	events, total, err := s.events.List(ctx, models.EventFilter{
		Status:    status,
		Page:      page,
		PageSize:  pageSize,
		SortBy:    "created_at",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending events")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return events, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// lostDecisionError re-reads the live approval records after a guarded
// decision found no matching PENDING row, to name the state the reviewer lost
// to. A concurrent same-level decision reads as AlreadyDecided; a concurrent
// resubmission that archived the targeted record does not.
func (s *ApprovalService) lostDecisionError(ctx context.Context, eventID string, level models.ApprovalLevel) error {
	records, err := s.repo.ListByEvent(ctx, eventID, false)
	if err != nil {
		return appErrors.Clone(appErrors.ErrAlreadyDecided, "this review stage has already been decided")
	}
	for _, rec := range records {
		if rec.Level != level {
			continue
		}
		if rec.Status != models.ApprovalStatusPending {
			return appErrors.Clone(appErrors.ErrAlreadyDecided, "this review stage has already been decided")
		}
		return appErrors.Clone(appErrors.ErrConflict, "decision raced with a concurrent update; retry")
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, "event is no longer at this review stage")
}

// checkStage maps the event status onto the error a reviewer at the given
// level should see before the guarded update even runs.
func checkStage(status models.EventStatus, level models.ApprovalLevel) error {
	switch level {
	case models.ApprovalLevelFaculty:
		switch status {
		case models.EventStatusFacultyPending:
			return nil
		case models.EventStatusDraft, models.EventStatusRejected:
			return appErrors.Clone(appErrors.ErrInvalidTransition, "event has not been submitted for review")
		default:
			return appErrors.Clone(appErrors.ErrAlreadyDecided, "faculty stage has already been decided")
		}
	case models.ApprovalLevelAdmin:
		switch status {
		case models.EventStatusAdminPending:
			return nil
		case models.EventStatusFacultyPending:
			return appErrors.Clone(appErrors.ErrOutOfOrder, "faculty review has not completed")
		case models.EventStatusDraft, models.EventStatusRejected:
			return appErrors.Clone(appErrors.ErrInvalidTransition, "event has not been submitted for review")
		default:
			return appErrors.Clone(appErrors.ErrAlreadyDecided, "admin stage has already been decided")
		}
	}
	return appErrors.Clone(appErrors.ErrInternal, "unknown approval level")
}

func (s *ApprovalService) recordAudit(ctx context.Context, userID string, action string, eventID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	var newValues []byte
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			newValues = raw
		}
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "event",
		ResourceID: &eventID,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record approval audit log", zap.Error(err))
	}
}

func (s *ApprovalService) invalidate(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf(eventDetailCacheKey, eventID)); err != nil {
		s.logger.Warn("failed to invalidate event detail cache", zap.Error(err))
	}
	if err := s.cache.DeleteByPattern(ctx, eventListCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate event list cache", zap.Error(err))
	}
}
