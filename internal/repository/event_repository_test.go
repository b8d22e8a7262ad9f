package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campushub/events-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func eventRows(id string, status models.EventStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "title", "description", "location", "organizer_id", "start_date", "end_date", "max_participants", "status", "cancelled", "created_at", "updated_at"}).
		AddRow(id, "Tech Talk", "Monthly talk", "Auditorium", "org-1", now.Add(24*time.Hour), now.Add(26*time.Hour), 100, status, false, now, now)
}

func TestEventRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.Event{
		Title:           "Tech Talk",
		Description:     "Monthly talk",
		Location:        "Auditorium",
		OrganizerID:     "org-1",
		StartDate:       time.Now().Add(24 * time.Hour),
		EndDate:         time.Now().Add(26 * time.Hour),
		MaxParticipants: 100,
	}
	require.NoError(t, repo.Create(context.Background(), event))
	require.NotEmpty(t, event.ID)
	require.Equal(t, models.EventStatusDraft, event.Status)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description")).
		WithArgs(event.ID).
		WillReturnRows(eventRows(event.ID, models.EventStatusDraft))

	found, err := repo.FindByID(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, event.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "description", "location", "organizer_id", "start_date", "end_date", "max_participants", "status", "cancelled", "created_at", "updated_at", "organizer_name"}).
		AddRow("evt-1", "Tech Talk", "Monthly talk", "Auditorium", "org-1", now, now.Add(2*time.Hour), 100, "APPROVED", false, now, now, "Alex Chen")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.id, e.title")).
		WithArgs("APPROVED").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("APPROVED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.List(context.Background(), models.EventFilter{Status: models.EventStatusApproved})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, events, 1)
	require.Equal(t, "Alex Chen", events[0].OrganizerName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryUpdateGuardsEditableStates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET title")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Event{ID: "evt-1", Title: "Renamed"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
