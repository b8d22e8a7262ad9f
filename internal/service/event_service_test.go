package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
)

type eventRepoStub struct {
	events map[string]*models.Event
}

func newEventRepoStub(events ...*models.Event) *eventRepoStub {
	stub := &eventRepoStub{events: make(map[string]*models.Event)}
	for _, e := range events {
		stub.events[e.ID] = e
	}
	return stub
}

func (s *eventRepoStub) Create(_ context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = "evt-generated"
	}
	copy := *event
	s.events[event.ID] = &copy
	return nil
}

func (s *eventRepoStub) FindByID(_ context.Context, id string) (*models.Event, error) {
	if event, ok := s.events[id]; ok {
		copy := *event
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *eventRepoStub) FindDetailByID(_ context.Context, id string) (*models.EventDetail, error) {
	if event, ok := s.events[id]; ok {
		return &models.EventDetail{Event: *event, OrganizerName: "Organizer"}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *eventRepoStub) List(_ context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	var result []models.EventDetail
	for _, e := range s.events {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		result = append(result, models.EventDetail{Event: *e})
	}
	return result, len(result), nil
}

func (s *eventRepoStub) Update(_ context.Context, event *models.Event) error {
	stored, ok := s.events[event.ID]
	if !ok || (stored.Status != models.EventStatusDraft && stored.Status != models.EventStatusRejected) {
		return sql.ErrNoRows
	}
	copy := *event
	copy.Status = stored.Status
	s.events[event.ID] = &copy
	return nil
}

func (s *eventRepoStub) SetCancelled(_ context.Context, id string) error {
	if event, ok := s.events[id]; ok {
		event.Cancelled = true
	}
	return nil
}

type approvalReaderStub struct {
	records map[string][]models.ApprovalRecord
}

func (s *approvalReaderStub) ListByEvent(_ context.Context, eventID string, _ bool) ([]models.ApprovalRecord, error) {
	return s.records[eventID], nil
}

func validEventRequest() dto.CreateEventRequest {
	return dto.CreateEventRequest{
		Title:           "Open Lab Day",
		Description:     "Campus-wide lab tour",
		Location:        "Building C",
		StartDate:       time.Now().Add(48 * time.Hour),
		EndDate:         time.Now().Add(52 * time.Hour),
		MaxParticipants: 30,
	}
}

func newEventFixture(events ...*models.Event) (*EventService, *eventRepoStub, *auditStub) {
	repo := newEventRepoStub(events...)
	audit := &auditStub{}
	approvals := &approvalReaderStub{records: make(map[string][]models.ApprovalRecord)}
	svc := NewEventService(repo, approvals, nil, audit, nil, nil, time.Minute)
	return svc, repo, audit
}

func TestEventServiceCreateStartsAsDraft(t *testing.T) {
	svc, repo, audit := newEventFixture()

	event, err := svc.Create(context.Background(), "org-1", validEventRequest())
	require.NoError(t, err)
	require.Equal(t, models.EventStatusDraft, event.Status)
	require.Equal(t, "org-1", event.OrganizerID)
	require.Contains(t, repo.events, event.ID)
	require.Len(t, audit.logs, 1)
}

func TestEventServiceCreateValidatesPayload(t *testing.T) {
	svc, _, _ := newEventFixture()

	req := validEventRequest()
	req.EndDate = req.StartDate.Add(-time.Hour)
	_, err := svc.Create(context.Background(), "org-1", req)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestEventServiceUpdateOnlyEditableStates(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusApproved
	svc, _, _ := newEventFixture(event)

	req := dto.UpdateEventRequest(validEventRequest())
	_, err := svc.Update(context.Background(), "evt-1", "org-1", models.RoleOrganizer, req)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestEventServiceUpdateForeignOrganizerForbidden(t *testing.T) {
	svc, _, _ := newEventFixture(draftEvent("evt-1", "org-1"))

	req := dto.UpdateEventRequest(validEventRequest())
	_, err := svc.Update(context.Background(), "evt-1", "org-2", models.RoleOrganizer, req)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestEventServiceUpdateRejectedEventAllowed(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusRejected
	svc, repo, _ := newEventFixture(event)

	req := dto.UpdateEventRequest(validEventRequest())
	updated, err := svc.Update(context.Background(), "evt-1", "org-1", models.RoleOrganizer, req)
	require.NoError(t, err)
	require.Equal(t, req.Title, updated.Title)
	require.Equal(t, models.EventStatusRejected, repo.events["evt-1"].Status)
}

func TestEventServiceCapacityLockedAfterDecision(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusRejected
	repo := newEventRepoStub(event)
	reviewer := "fac-1"
	approvals := &approvalReaderStub{records: map[string][]models.ApprovalRecord{
		"evt-1": {{
			ID:         "rec-1",
			EventID:    "evt-1",
			Level:      models.ApprovalLevelFaculty,
			Status:     models.ApprovalStatusRejected,
			ReviewerID: &reviewer,
			Archived:   true,
		}},
	}}
	svc := NewEventService(repo, approvals, nil, &auditStub{}, nil, nil, time.Minute)

	req := dto.UpdateEventRequest(validEventRequest())
	req.MaxParticipants = event.MaxParticipants + 10
	_, err := svc.Update(context.Background(), "evt-1", "org-1", models.RoleOrganizer, req)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	req.MaxParticipants = event.MaxParticipants
	_, err = svc.Update(context.Background(), "evt-1", "org-1", models.RoleOrganizer, req)
	require.NoError(t, err)
}

func TestEventServiceCancelIsTerminal(t *testing.T) {
	svc, repo, _ := newEventFixture(draftEvent("evt-1", "org-1"))

	require.NoError(t, svc.Cancel(context.Background(), "evt-1", "org-1", models.RoleOrganizer))
	require.True(t, repo.events["evt-1"].Cancelled)

	err := svc.Cancel(context.Background(), "evt-1", "org-1", models.RoleOrganizer)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestEventServiceGetAttachesApprovals(t *testing.T) {
	event := draftEvent("evt-1", "org-1")
	event.Status = models.EventStatusFacultyPending
	repo := newEventRepoStub(event)
	approvals := &approvalReaderStub{records: map[string][]models.ApprovalRecord{
		"evt-1": {{ID: "rec-1", EventID: "evt-1", Level: models.ApprovalLevelFaculty, Status: models.ApprovalStatusPending}},
	}}
	svc := NewEventService(repo, approvals, nil, &auditStub{}, nil, nil, time.Minute)

	detail, err := svc.Get(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, detail.Approvals, 1)
	require.Equal(t, models.EventStatusFacultyPending, models.DeriveEventStatus(detail.Approvals))
}
