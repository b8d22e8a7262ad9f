package models

import "time"

// EventStatus enumerates the lifecycle states of an event.
type EventStatus string

const (
	EventStatusDraft          EventStatus = "DRAFT"
	EventStatusFacultyPending EventStatus = "FACULTY_PENDING"
	EventStatusAdminPending   EventStatus = "ADMIN_PENDING"
	EventStatusApproved       EventStatus = "APPROVED"
	EventStatusRejected       EventStatus = "REJECTED"
)

// ApprovalLevel identifies a review stage. Faculty review always precedes
// the admin review.
type ApprovalLevel string

const (
	ApprovalLevelFaculty ApprovalLevel = "FACULTY"
	ApprovalLevelAdmin   ApprovalLevel = "ADMIN"
)

// ApprovalStatus captures the decision state of a single review record.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Event represents a campus event moving through the approval workflow.
type Event struct {
	ID              string      `db:"id" json:"id"`
	Title           string      `db:"title" json:"title"`
	Description     string      `db:"description" json:"description"`
	Location        string      `db:"location" json:"location"`
	OrganizerID     string      `db:"organizer_id" json:"organizer_id"`
	StartDate       time.Time   `db:"start_date" json:"start_date"`
	EndDate         time.Time   `db:"end_date" json:"end_date"`
	MaxParticipants int         `db:"max_participants" json:"max_participants"`
	Status          EventStatus `db:"status" json:"status"`
	Cancelled       bool        `db:"cancelled" json:"cancelled"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// ApprovalRecord is one review stage decision attached to an event.
// A record transitions PENDING to a final decision exactly once.
type ApprovalRecord struct {
	ID         string         `db:"id" json:"id"`
	EventID    string         `db:"event_id" json:"event_id"`
	Level      ApprovalLevel  `db:"level" json:"level"`
	Status     ApprovalStatus `db:"status" json:"status"`
	ReviewerID *string        `db:"reviewer_id" json:"reviewer_id,omitempty"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	DecidedAt  *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	Archived   bool           `db:"archived" json:"archived"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// EventDetail bundles an event with its organizer name and live approval
// records for API responses.
type EventDetail struct {
	Event
	OrganizerName string           `db:"organizer_name" json:"organizer_name"`
	Approvals     []ApprovalRecord `db:"-" json:"approvals,omitempty"`
}

// EventFilter captures listing criteria.
type EventFilter struct {
	Status      EventStatus
	OrganizerID string
	Search      string
	Upcoming    bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// DeriveEventStatus replays the live (non-archived) approval sequence and
// returns the event status it implies. The stored status column must always
// agree with this value; it exists only to make listing queries cheap.
func DeriveEventStatus(approvals []ApprovalRecord) EventStatus {
	if len(approvals) == 0 {
		return EventStatusDraft
	}

	var faculty, admin *ApprovalRecord
	for i := range approvals {
		rec := &approvals[i]
		if rec.Archived {
			continue
		}
		switch rec.Level {
		case ApprovalLevelFaculty:
			faculty = rec
		case ApprovalLevelAdmin:
			admin = rec
		}
	}

	if faculty == nil {
		return EventStatusDraft
	}
	switch faculty.Status {
	case ApprovalStatusPending:
		return EventStatusFacultyPending
	case ApprovalStatusRejected:
		return EventStatusRejected
	}

	// faculty approved; the admin record is created in the same transaction
	if admin == nil {
		return EventStatusAdminPending
	}
	switch admin.Status {
	case ApprovalStatusPending:
		return EventStatusAdminPending
	case ApprovalStatusRejected:
		return EventStatusRejected
	}
	return EventStatusApproved
}
