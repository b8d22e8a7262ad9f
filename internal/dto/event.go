package dto

import "time"

// CreateEventRequest is the payload for creating a draft event.
type CreateEventRequest struct {
	Title           string    `json:"title" validate:"required,min=3,max=200"`
	Description     string    `json:"description" validate:"max=5000"`
	Location        string    `json:"location" validate:"required,max=200"`
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	MaxParticipants int       `json:"max_participants" validate:"required,min=1"`
}

// UpdateEventRequest is the payload for editing a DRAFT or REJECTED event.
type UpdateEventRequest struct {
	Title           string    `json:"title" validate:"required,min=3,max=200"`
	Description     string    `json:"description" validate:"max=5000"`
	Location        string    `json:"location" validate:"required,max=200"`
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	MaxParticipants int       `json:"max_participants" validate:"required,min=1"`
}
