package dto

import (
	"time"

	"github.com/campushub/events-api/internal/models"
)

// MarkAttendanceRequest carries a scanned QR token. Scanner clients send the
// raw scan as qr_data with the registration ID they expect; token is accepted
// as an equivalent field name.
type MarkAttendanceRequest struct {
	Token          string `json:"token"`
	QRData         string `json:"qr_data"`
	RegistrationID string `json:"registration_id"`
}

// Raw returns the scanned token regardless of which field carried it.
func (r MarkAttendanceRequest) Raw() string {
	if r.Token != "" {
		return r.Token
	}
	return r.QRData
}

// AttendanceResult reports the outcome of a scan. AlreadyAttended is set when
// the registration was marked by an earlier scan; AttendedAt then carries the
// original timestamp, not the time of this scan.
type AttendanceResult struct {
	RegistrationID  string                    `json:"registration_id"`
	EventID         string                    `json:"event_id"`
	UserID          string                    `json:"user_id"`
	UserName        string                    `json:"user_name,omitempty"`
	Status          models.RegistrationStatus `json:"status"`
	AttendedAt      time.Time                 `json:"attended_at"`
	AlreadyAttended bool                      `json:"already_attended"`
}

// TokenValidationResult is the dry-run counterpart of a scan: it reports
// whether a token would be accepted without mutating any registration.
type TokenValidationResult struct {
	Valid          bool                      `json:"valid"`
	RegistrationID string                    `json:"registration_id,omitempty"`
	EventID        string                    `json:"event_id,omitempty"`
	UserID         string                    `json:"user_id,omitempty"`
	Status         models.RegistrationStatus `json:"status,omitempty"`
	Reason         string                    `json:"reason,omitempty"`
}
