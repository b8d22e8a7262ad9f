package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	"github.com/campushub/events-api/internal/repository"
	appErrors "github.com/campushub/events-api/pkg/errors"
)

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type notifyStub struct {
	sent []Notification
}

func (n *notifyStub) Notify(_ context.Context, notification Notification) {
	n.sent = append(n.sent, notification)
}

type eventStoreStub struct {
	events map[string]*models.Event
}

func newEventStoreStub(events ...*models.Event) *eventStoreStub {
	stub := &eventStoreStub{events: make(map[string]*models.Event)}
	for _, e := range events {
		stub.events[e.ID] = e
	}
	return stub
}

func (s *eventStoreStub) FindByID(_ context.Context, id string) (*models.Event, error) {
	if event, ok := s.events[id]; ok {
		copy := *event
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *eventStoreStub) List(_ context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	var result []models.EventDetail
	for _, e := range s.events {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		result = append(result, models.EventDetail{Event: *e})
	}
	return result, len(result), nil
}

type approvalRepoStub struct {
	records    map[string][]models.ApprovalRecord
	events     *eventStoreStub
	decideErr  error
	lastParams repository.DecisionParams
}

func newApprovalRepoStub(events *eventStoreStub) *approvalRepoStub {
	return &approvalRepoStub{records: make(map[string][]models.ApprovalRecord), events: events}
}

func (s *approvalRepoStub) ListByEvent(_ context.Context, eventID string, includeArchived bool) ([]models.ApprovalRecord, error) {
	var result []models.ApprovalRecord
	for _, rec := range s.records[eventID] {
		if !includeArchived && rec.Archived {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func (s *approvalRepoStub) Submit(_ context.Context, eventID string, from models.EventStatus) (*models.ApprovalRecord, error) {
	event, ok := s.events.events[eventID]
	if !ok || event.Status != from {
		return nil, sql.ErrNoRows
	}
	event.Status = models.EventStatusFacultyPending
	if from == models.EventStatusRejected {
		for i := range s.records[eventID] {
			s.records[eventID][i].Archived = true
		}
	}
	record := models.ApprovalRecord{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Level:     models.ApprovalLevelFaculty,
		Status:    models.ApprovalStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.records[eventID] = append(s.records[eventID], record)
	return &record, nil
}

func (s *approvalRepoStub) Decide(_ context.Context, params repository.DecisionParams) (*repository.DecisionResult, error) {
	s.lastParams = params
	if s.decideErr != nil {
		return nil, s.decideErr
	}
	event := s.events.events[params.EventID]

	var decided *models.ApprovalRecord
	for i := range s.records[params.EventID] {
		rec := &s.records[params.EventID][i]
		if rec.Level == params.Level && rec.Status == models.ApprovalStatusPending && !rec.Archived {
			rec.Status = params.Decision
			rec.ReviewerID = &params.ReviewerID
			rec.Comment = params.Comment
			rec.DecidedAt = &params.DecidedAt
			decided = rec
			break
		}
	}
	if decided == nil {
		return nil, sql.ErrNoRows
	}

	result := &repository.DecisionResult{Record: decided}
	switch {
	case params.Level == models.ApprovalLevelFaculty && params.Decision == models.ApprovalStatusApproved:
		event.Status = models.EventStatusAdminPending
		next := models.ApprovalRecord{
			ID:        uuid.NewString(),
			EventID:   params.EventID,
			Level:     models.ApprovalLevelAdmin,
			Status:    models.ApprovalStatusPending,
			CreatedAt: params.DecidedAt,
		}
		s.records[params.EventID] = append(s.records[params.EventID], next)
		result.NextRecord = &next
	case params.Decision == models.ApprovalStatusRejected:
		event.Status = models.EventStatusRejected
	default:
		event.Status = models.EventStatusApproved
	}
	result.EventStatus = event.Status
	return result, nil
}

func draftEvent(id, organizerID string) *models.Event {
	return &models.Event{
		ID:              id,
		Title:           "Robotics Demo",
		OrganizerID:     organizerID,
		StartDate:       time.Now().Add(24 * time.Hour),
		EndDate:         time.Now().Add(26 * time.Hour),
		MaxParticipants: 50,
		Status:          models.EventStatusDraft,
	}
}

func newApprovalFixture(events ...*models.Event) (*ApprovalService, *approvalRepoStub, *auditStub, *notifyStub) {
	store := newEventStoreStub(events...)
	repo := newApprovalRepoStub(store)
	audit := &auditStub{}
	notify := &notifyStub{}
	svc := NewApprovalService(repo, store, nil, audit, notify, nil, nil)
	return svc, repo, audit, notify
}

func TestApprovalServiceSubmitOpensFacultyReview(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	svc, repo, audit, notify := newApprovalFixture(event)

	record, err := svc.Submit(context.Background(), "evt-1", "org-1", models.RoleOrganizer)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalLevelFaculty, record.Level)
	require.Equal(t, models.ApprovalStatusPending, record.Status)
	require.Equal(t, models.EventStatusFacultyPending, repo.events.events["evt-1"].Status)
	require.Len(t, audit.logs, 1)
	require.Len(t, notify.sent, 1)
}

func TestApprovalServiceSubmitRejectsForeignOrganizer(t *testing.T) {
	svc, _, _, _ := newApprovalFixture(draftEvent("evt-1", "org-1"))

	_, err := svc.Submit(context.Background(), "evt-1", "org-2", models.RoleOrganizer)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestApprovalServiceSubmitInvalidFromApproved(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusApproved
	svc, _, _, _ := newApprovalFixture(event)

	_, err := svc.Submit(context.Background(), "evt-1", "org-1", models.RoleOrganizer)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestApprovalServiceSubmitCancelledEvent(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Cancelled = true
	svc, _, _, _ := newApprovalFixture(event)

	_, err := svc.Submit(context.Background(), "evt-1", "org-1", models.RoleOrganizer)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestApprovalServiceResubmitArchivesTrail(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	svc, repo, _, _ := newApprovalFixture(event)

	_, err := svc.Submit(context.Background(), "evt-1", "org-1", models.RoleOrganizer)
	require.NoError(t, err)

	comment := "no budget"
	_, err = svc.Decide(context.Background(), "evt-1", "fac-1", models.RoleFaculty, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusRejected),
		Comment:  comment,
	})
	require.NoError(t, err)
	require.Equal(t, models.EventStatusRejected, repo.events.events["evt-1"].Status)

	_, err = svc.Submit(context.Background(), "evt-1", "org-1", models.RoleOrganizer)
	require.NoError(t, err)

	live, err := svc.ListByEvent(context.Background(), "evt-1", false)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, models.ApprovalStatusPending, live[0].Status)

	full, err := svc.ListByEvent(context.Background(), "evt-1", true)
	require.NoError(t, err)
	require.Len(t, full, 2)
}

func TestApprovalServiceFacultyApprovalOpensAdminStage(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusFacultyPending
	svc, repo, _, notify := newApprovalFixture(event)
	repo.records["evt-1"] = []models.ApprovalRecord{{
		ID: "rec-1", EventID: "evt-1",
		Level:  models.ApprovalLevelFaculty,
		Status: models.ApprovalStatusPending,
	}}

	result, err := svc.Decide(context.Background(), "evt-1", "fac-1", models.RoleFaculty, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusApproved),
	})
	require.NoError(t, err)
	require.Equal(t, models.EventStatusAdminPending, result.EventStatus)
	require.NotNil(t, result.NextRecord)
	require.Equal(t, models.ApprovalLevelAdmin, result.NextRecord.Level)
	require.Len(t, notify.sent, 1)
}

func TestApprovalServiceRejectionRequiresComment(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusFacultyPending
	svc, _, _, _ := newApprovalFixture(event)

	_, err := svc.Decide(context.Background(), "evt-1", "fac-1", models.RoleFaculty, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusRejected),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestApprovalServiceAdminBeforeFacultyIsOutOfOrder(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusFacultyPending
	svc, _, _, _ := newApprovalFixture(event)

	_, err := svc.Decide(context.Background(), "evt-1", "adm-1", models.RoleAdmin, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusApproved),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrOutOfOrder))
}

func TestApprovalServiceSecondDecisionAlreadyDecided(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusFacultyPending
	svc, repo, _, _ := newApprovalFixture(event)
	repo.decideErr = sql.ErrNoRows
	reviewer := "fac-2"
	repo.records["evt-1"] = []models.ApprovalRecord{{
		ID: "rec-1", EventID: "evt-1",
		Level:      models.ApprovalLevelFaculty,
		Status:     models.ApprovalStatusApproved,
		ReviewerID: &reviewer,
	}}

	_, err := svc.Decide(context.Background(), "evt-1", "fac-1", models.RoleFaculty, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusApproved),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyDecided))
}

func TestApprovalServiceDecisionLostToResubmitIsNotAlreadyDecided(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusFacultyPending
	svc, repo, _, _ := newApprovalFixture(event)
	repo.decideErr = sql.ErrNoRows
	repo.records["evt-1"] = []models.ApprovalRecord{{
		ID: "rec-1", EventID: "evt-1",
		Level:    models.ApprovalLevelFaculty,
		Status:   models.ApprovalStatusPending,
		Archived: true,
	}}

	_, err := svc.Decide(context.Background(), "evt-1", "fac-1", models.RoleFaculty, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusApproved),
	})
	require.False(t, appErrors.Is(err, appErrors.ErrAlreadyDecided))
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestApprovalServiceAdminApprovalFinalizes(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusAdminPending
	svc, repo, _, _ := newApprovalFixture(event)
	repo.records["evt-1"] = []models.ApprovalRecord{
		{ID: "rec-1", EventID: "evt-1", Level: models.ApprovalLevelFaculty, Status: models.ApprovalStatusApproved},
		{ID: "rec-2", EventID: "evt-1", Level: models.ApprovalLevelAdmin, Status: models.ApprovalStatusPending},
	}

	result, err := svc.Decide(context.Background(), "evt-1", "adm-1", models.RoleAdmin, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusApproved),
	})
	require.NoError(t, err)
	require.Equal(t, models.EventStatusApproved, result.EventStatus)
	require.Nil(t, result.NextRecord)

	records, err := svc.ListByEvent(context.Background(), "evt-1", false)
	require.NoError(t, err)
	require.Equal(t, models.EventStatusApproved, models.DeriveEventStatus(records))
}

func TestApprovalServiceStudentCannotReview(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusFacultyPending
	svc, _, _, _ := newApprovalFixture(event)

	_, err := svc.Decide(context.Background(), "evt-1", "stu-1", models.RoleStudent, dto.DecisionRequest{
		Decision: string(models.ApprovalStatusApproved),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestApprovalServiceListPendingByRole(t *testing.T) {
	faculty := draftEvent("evt-1", "org-1")
	faculty.Status = models.EventStatusFacultyPending
	admin := draftEvent("evt-2", "org-1")
	admin.Status = models.EventStatusAdminPending
	svc, _, _, _ := newApprovalFixture(faculty, admin)

	queue, pagination, err := svc.ListPending(context.Background(), models.RoleFaculty, 1, 20)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "evt-1", queue[0].ID)
	require.Equal(t, 1, pagination.TotalCount)

	queue, _, err = svc.ListPending(context.Background(), models.RoleAdmin, 1, 20)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "evt-2", queue[0].ID)
}
