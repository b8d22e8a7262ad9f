package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushub/events-api/internal/dto"
	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
	"github.com/campushub/events-api/pkg/qrtoken"
)

type registrationStoreStub struct {
	registrations map[string]*models.Registration
	details       map[string]*models.RegistrationDetail
	created       []*models.Registration
	createErr     error
}

func newRegistrationStoreStub() *registrationStoreStub {
	return &registrationStoreStub{
		registrations: make(map[string]*models.Registration),
		details:       make(map[string]*models.RegistrationDetail),
	}
}

func (s *registrationStoreStub) Create(_ context.Context, registration *models.Registration) error {
	if s.createErr != nil {
		return s.createErr
	}
	registration.Status = models.RegistrationStatusRegistered
	copy := *registration
	s.registrations[registration.ID] = &copy
	s.created = append(s.created, &copy)
	return nil
}

func (s *registrationStoreStub) FindByID(_ context.Context, id string) (*models.Registration, error) {
	if reg, ok := s.registrations[id]; ok {
		copy := *reg
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *registrationStoreStub) FindLatestByEventAndUser(_ context.Context, eventID, userID string) (*models.Registration, error) {
	var latest *models.Registration
	for _, reg := range s.registrations {
		if reg.EventID != eventID || reg.UserID != userID {
			continue
		}
		if latest == nil || reg.RegisteredAt.After(latest.RegisteredAt) {
			latest = reg
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copy := *latest
	return &copy, nil
}

func (s *registrationStoreStub) FindDetailByID(_ context.Context, id string) (*models.RegistrationDetail, error) {
	if detail, ok := s.details[id]; ok {
		copy := *detail
		return &copy, nil
	}
	if reg, ok := s.registrations[id]; ok {
		return &models.RegistrationDetail{Registration: *reg}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *registrationStoreStub) List(_ context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	var result []models.RegistrationDetail
	for _, reg := range s.registrations {
		if filter.EventID != "" && reg.EventID != filter.EventID {
			continue
		}
		if filter.UserID != "" && reg.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && reg.Status != filter.Status {
			continue
		}
		result = append(result, models.RegistrationDetail{Registration: *reg})
	}
	if filter.Page > 1 {
		return nil, len(result), nil
	}
	return result, len(result), nil
}

func (s *registrationStoreStub) CountActive(_ context.Context, eventID string) (int, error) {
	count := 0
	for _, reg := range s.registrations {
		if reg.EventID == eventID && (reg.Status == models.RegistrationStatusRegistered || reg.Status == models.RegistrationStatusAttended) {
			count++
		}
	}
	return count, nil
}

func (s *registrationStoreStub) MarkAttended(_ context.Context, id string, at time.Time) (*models.Registration, error) {
	reg, ok := s.registrations[id]
	if !ok || reg.Status != models.RegistrationStatusRegistered {
		return nil, sql.ErrNoRows
	}
	reg.Status = models.RegistrationStatusAttended
	reg.AttendedAt = &at
	copy := *reg
	return &copy, nil
}

func (s *registrationStoreStub) Cancel(_ context.Context, id string, at time.Time) (*models.Registration, error) {
	reg, ok := s.registrations[id]
	if !ok || reg.Status != models.RegistrationStatusRegistered {
		return nil, sql.ErrNoRows
	}
	reg.Status = models.RegistrationStatusCancelled
	reg.CancelledAt = &at
	copy := *reg
	return &copy, nil
}

func seedRegistration(t *testing.T, store *registrationStoreStub, codec *qrtoken.Codec, id, eventID, userID string) string {
	t.Helper()
	nonce, err := qrtoken.NewNonce()
	require.NoError(t, err)
	token, err := codec.Encode(qrtoken.Payload{
		RegistrationID: id,
		EventID:        eventID,
		UserID:         userID,
		IssuedAt:       time.Now().Unix(),
		Nonce:          nonce,
	})
	require.NoError(t, err)
	store.registrations[id] = &models.Registration{
		ID:           id,
		EventID:      eventID,
		UserID:       userID,
		Status:       models.RegistrationStatusRegistered,
		Token:        token,
		RegisteredAt: time.Now().UTC(),
	}
	return token
}

func newAttendanceFixture(t *testing.T) (*AttendanceService, *registrationStoreStub, *qrtoken.Codec, *auditStub) {
	t.Helper()
	store := newRegistrationStoreStub()
	events := newEventStoreStub(
		&models.Event{
			ID:              "evt-1",
			Title:           "Career Fair",
			OrganizerID:     "org-1",
			Status:          models.EventStatusApproved,
			EndDate:         time.Now().Add(4 * time.Hour),
			MaxParticipants: 100,
		},
		&models.Event{
			ID:              "evt-2",
			Title:           "Alumni Meetup",
			OrganizerID:     "org-1",
			Status:          models.EventStatusApproved,
			EndDate:         time.Now().Add(4 * time.Hour),
			MaxParticipants: 100,
		},
	)
	codec := qrtoken.NewCodec("attendance-test-secret")
	audit := &auditStub{}
	svc := NewAttendanceService(store, events, codec, audit, &notifyStub{}, nil)
	return svc, store, codec, audit
}

func TestAttendanceServiceMarkHappyPath(t *testing.T) {
	svc, store, codec, audit := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	result, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token})
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusAttended, result.Status)
	require.False(t, result.AlreadyAttended)
	require.False(t, result.AttendedAt.IsZero())
	require.Len(t, audit.logs, 1)
}

func TestAttendanceServiceDuplicateScanIsIdempotent(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	first, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token})
	require.NoError(t, err)

	second, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token})
	require.NoError(t, err)
	require.True(t, second.AlreadyAttended)
	require.Equal(t, first.AttendedAt, second.AttendedAt)
}

func TestAttendanceServiceCancelledRegistrationRejected(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")
	store.registrations["reg-1"].Status = models.RegistrationStatusCancelled

	_, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token})
	require.True(t, appErrors.Is(err, appErrors.ErrRegistrationCancelled))
}

func TestAttendanceServiceWrongEventIsMismatch(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	_, err := svc.Mark(context.Background(), "evt-2", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token})
	require.True(t, appErrors.Is(err, appErrors.ErrEventMismatch))
}

func TestAttendanceServiceTamperedTokenFailsClosed(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("0", len(parts[2]))

	_, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: tampered})
	require.True(t, appErrors.Is(err, appErrors.ErrIntegrityCheckFailed))

	// registration untouched
	reg, findErr := store.FindByID(context.Background(), "reg-1")
	require.NoError(t, findErr)
	require.Equal(t, models.RegistrationStatusRegistered, reg.Status)
}

func TestAttendanceServiceGarbageTokenIsMalformed(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture(t)

	_, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: "not-a-token"})
	require.True(t, appErrors.Is(err, appErrors.ErrMalformedToken))
}

func TestAttendanceServiceUnknownRegistration(t *testing.T) {
	svc, _, codec, _ := newAttendanceFixture(t)
	nonce, err := qrtoken.NewNonce()
	require.NoError(t, err)
	token, err := codec.Encode(qrtoken.Payload{
		RegistrationID: "reg-ghost",
		EventID:        "evt-1",
		UserID:         "stu-1",
		Nonce:          nonce,
	})
	require.NoError(t, err)

	_, err = svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token})
	require.True(t, appErrors.Is(err, appErrors.ErrRegistrationNotFound))
}

func TestAttendanceServiceForeignOrganizerForbidden(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	_, err := svc.Mark(context.Background(), "evt-1", "org-2", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	result, err := svc.Mark(context.Background(), "evt-1", "admin-1", models.RoleAdmin, dto.MarkAttendanceRequest{Token: token})
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusAttended, result.Status)
}

func TestAttendanceServiceAcceptsQRDataField(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	result, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{QRData: token, RegistrationID: "reg-1"})
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusAttended, result.Status)
}

func TestAttendanceServiceRegistrationIDMismatch(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	_, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{Token: token, RegistrationID: "reg-2"})
	require.True(t, appErrors.Is(err, appErrors.ErrIntegrityCheckFailed))
}

func TestAttendanceServiceEmptyScanRejected(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture(t)

	_, err := svc.Mark(context.Background(), "evt-1", "org-1", models.RoleOrganizer, dto.MarkAttendanceRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAttendanceServiceValidateDoesNotMutate(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	token := seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	result := svc.Validate(context.Background(), "evt-1", token)
	require.True(t, result.Valid)
	require.Equal(t, "reg-1", result.RegistrationID)

	reg, err := store.FindByID(context.Background(), "reg-1")
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusRegistered, reg.Status)

	bad := svc.Validate(context.Background(), "evt-1", "garbage")
	require.False(t, bad.Valid)
	require.Equal(t, appErrors.ErrMalformedToken.Code, bad.Reason)
}

func TestAttendanceServiceExportRosterCSV(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	payload, contentType, err := svc.ExportRoster(context.Background(), "evt-1", "org-1", models.RoleOrganizer, "csv")
	require.NoError(t, err)
	require.Equal(t, "text/csv", contentType)
	require.Contains(t, string(payload), "Name,Email,Status")
}

func TestAttendanceServiceRosterScopedToOrganizer(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	_, _, err := svc.Roster(context.Background(), "evt-1", "org-2", models.RoleOrganizer, models.RegistrationFilter{})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, _, err = svc.Roster(context.Background(), "evt-1", "fac-1", models.RoleFaculty, models.RegistrationFilter{})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	rows, pagination, err := svc.Roster(context.Background(), "evt-1", "org-1", models.RoleOrganizer, models.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, pagination.TotalCount)

	rows, _, err = svc.Roster(context.Background(), "evt-1", "adm-1", models.RoleAdmin, models.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestAttendanceServiceExportRosterScopedToOrganizer(t *testing.T) {
	svc, store, codec, _ := newAttendanceFixture(t)
	seedRegistration(t, store, codec, "reg-1", "evt-1", "stu-1")

	_, _, err := svc.ExportRoster(context.Background(), "evt-1", "org-2", models.RoleOrganizer, "csv")
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
