package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushub/events-api/internal/models"
)

// ApprovalRepository persists approval records and performs the event status
// transitions they imply. Record updates and the matching event status change
// always happen in one transaction so the stored status can never drift from
// the approval sequence.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, event_id, level, status, reviewer_id, comment, decided_at, archived, created_at`

// ListByEvent returns approval records for an event in review order.
func (r *ApprovalRepository) ListByEvent(ctx context.Context, eventID string, includeArchived bool) ([]models.ApprovalRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_records WHERE event_id = $1`, approvalColumns)
	if !includeArchived {
		query += " AND archived = FALSE"
	}
	query += " ORDER BY created_at ASC"

	var records []models.ApprovalRecord
	if err := r.db.SelectContext(ctx, &records, query, eventID); err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}

// FindPending returns the live PENDING record for a level, if any.
func (r *ApprovalRepository) FindPending(ctx context.Context, eventID string, level models.ApprovalLevel) (*models.ApprovalRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_records WHERE event_id = $1 AND level = $2 AND status = $3 AND archived = FALSE LIMIT 1`, approvalColumns)
	var record models.ApprovalRecord
	if err := r.db.GetContext(ctx, &record, query, eventID, level, models.ApprovalStatusPending); err != nil {
		return nil, err
	}
	return &record, nil
}

// Submit moves an event into faculty review and opens the FACULTY record.
// The status update is guarded on the expected source state so a concurrent
// submit (or a decision racing an edit) loses cleanly with sql.ErrNoRows.
// When resubmitting a rejected event the previous records are archived,
// never deleted, preserving the audit trail.
func (r *ApprovalRepository) Submit(ctx context.Context, eventID string, from models.EventStatus) (*models.ApprovalRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE events SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2 AND cancelled = FALSE`,
		eventID, from, models.EventStatusFacultyPending, now)
	if err != nil {
		return nil, fmt.Errorf("advance event to faculty review: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check submit rows: %w", err)
	}
	if rows == 0 {
		return nil, sql.ErrNoRows
	}

	if from == models.EventStatusRejected {
		if _, err := tx.ExecContext(ctx,
			`UPDATE approval_records SET archived = TRUE WHERE event_id = $1 AND archived = FALSE`,
			eventID); err != nil {
			return nil, fmt.Errorf("archive previous approval records: %w", err)
		}
	}

	record := &models.ApprovalRecord{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Level:     models.ApprovalLevelFaculty,
		Status:    models.ApprovalStatusPending,
		CreatedAt: now,
	}
	if err := insertApprovalRecord(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit tx: %w", err)
	}
	return record, nil
}

// DecisionParams groups the inputs of a reviewer decision.
type DecisionParams struct {
	EventID    string
	Level      models.ApprovalLevel
	Decision   models.ApprovalStatus
	ReviewerID string
	Comment    *string
	DecidedAt  time.Time
}

// DecisionResult reports the outcome of a decision transaction.
type DecisionResult struct {
	Record      *models.ApprovalRecord
	NextRecord  *models.ApprovalRecord
	EventStatus models.EventStatus
}

// Decide records a reviewer decision with a compare-and-set on the PENDING
// record: the first writer wins, a concurrent second decision observes
// sql.ErrNoRows. On faculty approval the ADMIN record is opened in the same
// transaction; the event status always moves together with the record.
func (r *ApprovalRepository) Decide(ctx context.Context, params DecisionParams) (*DecisionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin decision tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if params.DecidedAt.IsZero() {
		params.DecidedAt = time.Now().UTC()
	}

	record := &models.ApprovalRecord{
		EventID:    params.EventID,
		Level:      params.Level,
		Status:     params.Decision,
		ReviewerID: &params.ReviewerID,
		Comment:    params.Comment,
		DecidedAt:  &params.DecidedAt,
	}
	row := tx.QueryRowContext(ctx,
		`UPDATE approval_records SET status = $3, reviewer_id = $4, comment = $5, decided_at = $6
         WHERE event_id = $1 AND level = $2 AND status = $7 AND archived = FALSE
         RETURNING id, created_at`,
		params.EventID, params.Level, params.Decision, params.ReviewerID, params.Comment, params.DecidedAt,
		models.ApprovalStatusPending)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("decide approval record: %w", err)
	}

	var fromStatus, toStatus models.EventStatus
	switch params.Level {
	case models.ApprovalLevelFaculty:
		fromStatus = models.EventStatusFacultyPending
		if params.Decision == models.ApprovalStatusApproved {
			toStatus = models.EventStatusAdminPending
		} else {
			toStatus = models.EventStatusRejected
		}
	case models.ApprovalLevelAdmin:
		fromStatus = models.EventStatusAdminPending
		if params.Decision == models.ApprovalStatusApproved {
			toStatus = models.EventStatusApproved
		} else {
			toStatus = models.EventStatusRejected
		}
	default:
		return nil, fmt.Errorf("unknown approval level: %s", params.Level)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE events SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		params.EventID, fromStatus, toStatus, params.DecidedAt)
	if err != nil {
		return nil, fmt.Errorf("advance event status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check event status rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("event %s status does not match its approval records", params.EventID)
	}

	decision := &DecisionResult{Record: record, EventStatus: toStatus}

	if params.Level == models.ApprovalLevelFaculty && params.Decision == models.ApprovalStatusApproved {
		next := &models.ApprovalRecord{
			ID:        uuid.NewString(),
			EventID:   params.EventID,
			Level:     models.ApprovalLevelAdmin,
			Status:    models.ApprovalStatusPending,
			CreatedAt: params.DecidedAt,
		}
		if err := insertApprovalRecord(ctx, tx, next); err != nil {
			return nil, err
		}
		decision.NextRecord = next
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decision tx: %w", err)
	}
	return decision, nil
}

func insertApprovalRecord(ctx context.Context, tx *sqlx.Tx, record *models.ApprovalRecord) error {
	const query = `INSERT INTO approval_records (id, event_id, level, status, reviewer_id, comment, decided_at, archived, created_at)
        VALUES (:id, :event_id, :level, :status, :reviewer_id, :comment, :decided_at, :archived, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert approval record: %w", err)
	}
	return nil
}
