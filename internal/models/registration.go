package models

import "time"

// RegistrationStatus enumerates registration states. ATTENDED is terminal and
// only reachable through the attendance marking protocol.
type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "REGISTERED"
	RegistrationStatusAttended   RegistrationStatus = "ATTENDED"
	RegistrationStatusCancelled  RegistrationStatus = "CANCELLED"
	RegistrationStatusWaitlist   RegistrationStatus = "WAITLIST"
)

// Valid reports whether s is one of the declared registration states.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusRegistered, RegistrationStatusAttended,
		RegistrationStatusCancelled, RegistrationStatusWaitlist:
		return true
	}
	return false
}

// Registration is a student's enrollment in an approved event. The token is
// minted once at creation and never regenerated.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	EventID      string             `db:"event_id" json:"event_id"`
	UserID       string             `db:"user_id" json:"user_id"`
	Status       RegistrationStatus `db:"status" json:"status"`
	Token        string             `db:"token" json:"token"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
	AttendedAt   *time.Time         `db:"attended_at" json:"attended_at,omitempty"`
	CancelledAt  *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// RegistrationDetail joins registration rows with event and user context.
type RegistrationDetail struct {
	Registration
	EventTitle   string    `db:"event_title" json:"event_title"`
	EventEndDate time.Time `db:"event_end_date" json:"event_end_date"`
	UserName     string    `db:"user_name" json:"user_name"`
	UserEmail    string    `db:"user_email" json:"user_email"`
}

// RegistrationFilter captures listing criteria.
type RegistrationFilter struct {
	EventID   string
	UserID    string
	Status    RegistrationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
