package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
)

func lockedEventRows(status models.EventStatus, endDate time.Time, maxParticipants int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"status", "end_date", "max_participants", "cancelled"}).
		AddRow(status, endDate, maxParticipants, false)
}

func TestRegistrationRepositoryCreateHappyPath(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRegistrationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, end_date, max_participants, cancelled FROM events WHERE id = $1 FOR UPDATE")).
		WithArgs("evt-1").
		WillReturnRows(lockedEventRows(models.EventStatusApproved, time.Now().Add(time.Hour), 100))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND user_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status IN")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	registration := &models.Registration{EventID: "evt-1", UserID: "stu-1", Token: "v1.payload.sig"}
	require.NoError(t, repo.Create(context.Background(), registration))
	require.NotEmpty(t, registration.ID)
	require.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateRejectsUnapprovedEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRegistrationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("evt-1").
		WillReturnRows(lockedEventRows(models.EventStatusAdminPending, time.Now().Add(time.Hour), 100))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Registration{EventID: "evt-1", UserID: "stu-1"})
	require.True(t, appErrors.Is(err, appErrors.ErrEventNotApproved))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateRejectsEndedEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRegistrationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("evt-1").
		WillReturnRows(lockedEventRows(models.EventStatusApproved, time.Now().Add(-time.Minute), 100))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Registration{EventID: "evt-1", UserID: "stu-1"})
	require.True(t, appErrors.Is(err, appErrors.ErrEventEnded))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateEnforcesCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRegistrationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("evt-1").
		WillReturnRows(lockedEventRows(models.EventStatusApproved, time.Now().Add(time.Hour), 50))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND user_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status IN")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(50))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Registration{EventID: "evt-1", UserID: "stu-1"})
	require.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateRejectsDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRegistrationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("evt-1").
		WillReturnRows(lockedEventRows(models.EventStatusApproved, time.Now().Add(time.Hour), 100))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND user_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Registration{EventID: "evt-1", UserID: "stu-1"})
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryMarkAttendedIsCompareAndSet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRegistrationRepository(db)
	attendedAt := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_id", "user_id", "status", "token", "registered_at", "attended_at", "cancelled_at"}).
		AddRow("reg-1", "evt-1", "stu-1", "ATTENDED", "v1.payload.sig", attendedAt.Add(-time.Hour), attendedAt, nil)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE registrations SET status")).
		WithArgs("reg-1", models.RegistrationStatusAttended, attendedAt, models.RegistrationStatusRegistered).
		WillReturnRows(rows)

	registration, err := repo.MarkAttended(context.Background(), "reg-1", attendedAt)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusAttended, registration.Status)
	require.NotNil(t, registration.AttendedAt)

	// second scan finds no REGISTERED row to update
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE registrations SET status")).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.MarkAttended(context.Background(), "reg-1", attendedAt)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCancelGuardsTerminalStates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRegistrationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE registrations SET status")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Cancel(context.Background(), "reg-1", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
