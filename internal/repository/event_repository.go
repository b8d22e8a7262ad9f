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
)

// EventRepository handles persistence of events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, description, location, organizer_id, start_date, end_date, max_participants, status, cancelled, created_at, updated_at`

// Create persists a new event in DRAFT state.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = models.EventStatusDraft
	}
	const query = `INSERT INTO events (id, title, description, location, organizer_id, start_date, end_date, max_participants, status, cancelled, created_at, updated_at)
        VALUES (:id, :title, :description, :location, :organizer_id, :start_date, :end_date, :max_participants, :status, :cancelled, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// FindByID returns an event by its ID.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// FindDetailByID returns an event with organizer context.
func (r *EventRepository) FindDetailByID(ctx context.Context, id string) (*models.EventDetail, error) {
	const query = `SELECT e.id, e.title, e.description, e.location, e.organizer_id, e.start_date, e.end_date,
        e.max_participants, e.status, e.cancelled, e.created_at, e.updated_at,
        u.full_name AS organizer_name
        FROM events e
        LEFT JOIN users u ON u.id = e.organizer_id
        WHERE e.id = $1`
	var detail models.EventDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns events filtered by the provided criteria.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	base := `FROM events e LEFT JOIN users u ON u.id = e.organizer_id`
	conditions := []string{"e.cancelled = FALSE"}
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.OrganizerID != "" {
		conditions = append(conditions, fmt.Sprintf("e.organizer_id = $%d", len(args)+1))
		args = append(args, filter.OrganizerID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(e.title) LIKE $%d OR LOWER(e.location) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Upcoming {
		conditions = append(conditions, fmt.Sprintf("e.end_date > $%d", len(args)+1))
		args = append(args, time.Now().UTC())
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"start_date": "e.start_date",
		"created_at": "e.created_at",
		"title":      "e.title",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.start_date"
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

	query := fmt.Sprintf(`SELECT e.id, e.title, e.description, e.location, e.organizer_id, e.start_date, e.end_date,
        e.max_participants, e.status, e.cancelled, e.created_at, e.updated_at,
        u.full_name AS organizer_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var events []models.EventDetail
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// Update persists organizer edits. Callers must only invoke this while the
// event is editable (DRAFT or REJECTED); the WHERE guard keeps a racing
// submit from being silently overwritten.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, description = :description, location = :location,
        start_date = :start_date, end_date = :end_date, max_participants = :max_participants, updated_at = :updated_at
        WHERE id = :id AND status IN ('DRAFT', 'REJECTED')`
	result, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check event update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetCancelled soft-invalidates an event, preserving its approval trail.
func (r *EventRepository) SetCancelled(ctx context.Context, id string) error {
	const query = `UPDATE events SET cancelled = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("cancel event: %w", err)
	}
	return nil
}
