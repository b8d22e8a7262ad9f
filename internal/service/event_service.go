package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
)

type eventStore interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	FindDetailByID(ctx context.Context, id string) (*models.EventDetail, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error)
	Update(ctx context.Context, event *models.Event) error
	SetCancelled(ctx context.Context, id string) error
}

type approvalReader interface {
	ListByEvent(ctx context.Context, eventID string, includeArchived bool) ([]models.ApprovalRecord, error)
}

type eventCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

const (
	eventDetailCacheKey  = "events:detail:%s"
	eventListCachePrefix = "events:list:"
)

// EventService orchestrates event CRUD for organizers and public listings.
// Approval submission and decisions live in ApprovalService.
type EventService struct {
	repo      eventStore
	approvals approvalReader
	cache     eventCache
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewEventService constructs the service.
func NewEventService(repo eventStore, approvals approvalReader, cache eventCache, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &EventService{
		repo:      repo,
		approvals: approvals,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// Create stores a new event in DRAFT for the calling organizer.
func (s *EventService) Create(ctx context.Context, organizerID string, req dto.CreateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event := &models.Event{
		Title:           req.Title,
		Description:     req.Description,
		Location:        req.Location,
		OrganizerID:     organizerID,
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		MaxParticipants: req.MaxParticipants,
		Status:          models.EventStatusDraft,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.recordAudit(ctx, organizerID, models.AuditActionEventCreate, event.ID, event)
	s.invalidateListings(ctx)
	return event, nil
}

// Get returns an event with organizer and approval context. Detail payloads
// are cached; any write path for the event invalidates the entry.
func (s *EventService) Get(ctx context.Context, id string) (*models.EventDetail, error) {
	key := fmt.Sprintf(eventDetailCacheKey, id)
	if s.cache != nil {
		var cached models.EventDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("event detail cache read failed", zap.Error(err))
		}
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	approvals, err := s.approvals.ListByEvent(ctx, id, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval records")
	}
	detail.Approvals = approvals

	if derived := models.DeriveEventStatus(approvals); derived != detail.Status {
		s.logger.Error("stored event status disagrees with approval records",
			zap.String("eventId", id),
			zap.String("stored", string(detail.Status)),
			zap.String("derived", string(derived)))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, detail, s.cacheTTL); err != nil {
			s.logger.Warn("event detail cache write failed", zap.Error(err))
		}
	}
	return detail, nil
}

// List returns filtered events with pagination metadata.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, *models.Pagination, error) {
	key := listCacheKey(filter)
	type listPayload struct {
		Events     []models.EventDetail `json:"events"`
		Pagination models.Pagination    `json:"pagination"`
	}
	if s.cache != nil {
		var cached listPayload
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Events, &cached.Pagination, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("event list cache read failed", zap.Error(err))
		}
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := models.Pagination{Page: page, PageSize: size, TotalCount: total}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, listPayload{Events: events, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("event list cache write failed", zap.Error(err))
		}
	}
	return events, &pagination, nil
}

// Update applies organizer edits while the event is still editable.
func (s *EventService) Update(ctx context.Context, eventID, userID string, role models.UserRole, req dto.UpdateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event, err := s.loadOwned(ctx, eventID, userID, role)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusDraft && event.Status != models.EventStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("event in %s cannot be edited", event.Status))
	}

	// capacity is locked once any reviewer has decided, even across resubmits
	if req.MaxParticipants != event.MaxParticipants {
		records, err := s.approvals.ListByEvent(ctx, eventID, true)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval records")
		}
		for _, rec := range records {
			if rec.Status != models.ApprovalStatusPending {
				return nil, appErrors.Clone(appErrors.ErrValidation, "max participants cannot change after a review decision")
			}
		}
	}

	event.Title = req.Title
	event.Description = req.Description
	event.Location = req.Location
	event.StartDate = req.StartDate.UTC()
	event.EndDate = req.EndDate.UTC()
	event.MaxParticipants = req.MaxParticipants

	if err := s.repo.Update(ctx, event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// a submit slipped in between the read and the write
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "event is no longer editable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}

	s.recordAudit(ctx, userID, models.AuditActionEventUpdate, event.ID, event)
	s.invalidateEvent(ctx, event.ID)
	return event, nil
}

// Cancel soft-invalidates an event. The approval trail stays untouched.
func (s *EventService) Cancel(ctx context.Context, eventID, userID string, role models.UserRole) error {
	event, err := s.loadOwned(ctx, eventID, userID, role)
	if err != nil {
		return err
	}
	if event.Cancelled {
		return appErrors.Clone(appErrors.ErrConflict, "event is already cancelled")
	}

	if err := s.repo.SetCancelled(ctx, eventID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel event")
	}

	s.recordAudit(ctx, userID, models.AuditActionEventCancel, eventID, nil)
	s.invalidateEvent(ctx, eventID)
	return nil
}

func (s *EventService) loadOwned(ctx context.Context, eventID, userID string, role models.UserRole) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if role != models.RoleAdmin && event.OrganizerID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event belongs to another organizer")
	}
	return event, nil
}

func (s *EventService) recordAudit(ctx context.Context, userID string, action string, eventID string, payload interface{}) {
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
		s.logger.Warn("failed to record event audit log", zap.Error(err))
	}
}

func (s *EventService) invalidateEvent(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf(eventDetailCacheKey, eventID)); err != nil {
		s.logger.Warn("failed to invalidate event detail cache", zap.Error(err))
	}
	s.invalidateListings(ctx)
}

func (s *EventService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, eventListCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate event list cache", zap.Error(err))
	}
}

func listCacheKey(filter models.EventFilter) string {
	return fmt.Sprintf("%s%s:%s:%s:%t:%d:%d:%s:%s",
		eventListCachePrefix,
		filter.Status, filter.OrganizerID, filter.Search, filter.Upcoming,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}
