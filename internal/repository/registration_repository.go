package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushub/events-api/internal/models"
	appErrors "github.com/campushub/events-api/pkg/errors"
)

// RegistrationRepository persists registrations. Creation locks the event row
// so the capacity check and the insert are atomic; attendance and cancellation
// use guarded updates so concurrent writers resolve to exactly one winner.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, event_id, user_id, status, token, registered_at, attended_at, cancelled_at`

// Create registers a user for an event inside a single transaction. The event
// row is locked with FOR UPDATE so the active count read stays valid until the
// insert commits; two racing registrations for the last seat serialize on the
// lock and the loser gets ErrCapacityExceeded.
func (r *RegistrationRepository) Create(ctx context.Context, registration *models.Registration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var event struct {
		Status          models.EventStatus `db:"status"`
		EndDate         time.Time          `db:"end_date"`
		MaxParticipants int                `db:"max_participants"`
		Cancelled       bool               `db:"cancelled"`
	}
	if err := tx.GetContext(ctx, &event,
		`SELECT status, end_date, max_participants, cancelled FROM events WHERE id = $1 FOR UPDATE`,
		registration.EventID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	now := time.Now().UTC()
	if event.Cancelled || event.Status != models.EventStatusApproved {
		return appErrors.ErrEventNotApproved
	}
	if !event.EndDate.After(now) {
		return appErrors.ErrEventEnded
	}

	var existing int
	if err := tx.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND user_id = $2 AND status IN ($3, $4)`,
		registration.EventID, registration.UserID,
		models.RegistrationStatusRegistered, models.RegistrationStatusAttended); err != nil {
		return fmt.Errorf("check duplicate registration: %w", err)
	}
	if existing > 0 {
		return appErrors.ErrConflict
	}

	var active int
	if err := tx.GetContext(ctx, &active,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status IN ($2, $3)`,
		registration.EventID,
		models.RegistrationStatusRegistered, models.RegistrationStatusAttended); err != nil {
		return fmt.Errorf("count active registrations: %w", err)
	}
	if active >= event.MaxParticipants {
		return appErrors.ErrCapacityExceeded
	}

	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	if registration.RegisteredAt.IsZero() {
		registration.RegisteredAt = now
	}
	registration.Status = models.RegistrationStatusRegistered

	const insert = `INSERT INTO registrations (id, event_id, user_id, status, token, registered_at, attended_at, cancelled_at)
        VALUES (:id, :event_id, :user_id, :status, :token, :registered_at, :attended_at, :cancelled_at)`
	if _, err := tx.NamedExecContext(ctx, insert, registration); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration tx: %w", err)
	}
	return nil
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1`, registrationColumns)
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, err
	}
	return &registration, nil
}

// FindLatestByEventAndUser returns the user's most recent registration for an
// event regardless of its status. Callers use the status to tell an active
// seat from a cancelled or attended one.
func (r *RegistrationRepository) FindLatestByEventAndUser(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations
        WHERE event_id = $1 AND user_id = $2
        ORDER BY registered_at DESC LIMIT 1`, registrationColumns)
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, eventID, userID); err != nil {
		return nil, err
	}
	return &registration, nil
}

// FindDetailByID returns a registration with event and attendee context.
func (r *RegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	const query = `SELECT r.id, r.event_id, r.user_id, r.status, r.token, r.registered_at, r.attended_at, r.cancelled_at,
        e.title AS event_title, e.end_date AS event_end_date,
        u.full_name AS user_name, u.email AS user_email
        FROM registrations r
        JOIN events e ON e.id = r.event_id
        JOIN users u ON u.id = r.user_id
        WHERE r.id = $1`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns registrations matching the filter with event and user context.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations r
        JOIN events e ON e.id = r.event_id
        JOIN users u ON u.id = r.user_id`
	var conditions []string
	var args []interface{}

	if filter.EventID != "" {
		conditions = append(conditions, fmt.Sprintf("r.event_id = $%d", len(args)+1))
		args = append(args, filter.EventID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"registered_at": "r.registered_at",
		"attended_at":   "r.attended_at",
		"user_name":     "u.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.registered_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.event_id, r.user_id, r.status, r.token, r.registered_at, r.attended_at, r.cancelled_at,
        e.title AS event_title, e.end_date AS event_end_date,
        u.full_name AS user_name, u.email AS user_email
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// CountActive returns the number of seats held for an event.
func (r *RegistrationRepository) CountActive(ctx context.Context, eventID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status IN ($2, $3)`,
		eventID, models.RegistrationStatusRegistered, models.RegistrationStatusAttended); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// MarkAttended transitions REGISTERED to ATTENDED with a compare-and-set. The
// guard on the current status makes duplicate scans lose the race instead of
// overwriting attended_at; callers see sql.ErrNoRows and re-read the row to
// tell apart an already-attended registration from a cancelled one.
func (r *RegistrationRepository) MarkAttended(ctx context.Context, id string, at time.Time) (*models.Registration, error) {
	query := fmt.Sprintf(`UPDATE registrations SET status = $2, attended_at = $3
        WHERE id = $1 AND status = $4
        RETURNING %s`, registrationColumns)
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query,
		id, models.RegistrationStatusAttended, at, models.RegistrationStatusRegistered); err != nil {
		return nil, err
	}
	return &registration, nil
}

// Cancel transitions REGISTERED to CANCELLED with a compare-and-set. A second
// cancel, or a cancel racing an attendance scan, observes sql.ErrNoRows.
func (r *RegistrationRepository) Cancel(ctx context.Context, id string, at time.Time) (*models.Registration, error) {
	query := fmt.Sprintf(`UPDATE registrations SET status = $2, cancelled_at = $3
        WHERE id = $1 AND status = $4
        RETURNING %s`, registrationColumns)
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query,
		id, models.RegistrationStatusCancelled, at, models.RegistrationStatusRegistered); err != nil {
		return nil, err
	}
	return &registration, nil
}
