package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors shared across services.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusUnprocessableEntity, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Approval workflow errors.
var (
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "event is not in a state that allows this transition")
	ErrAlreadyDecided    = New("ALREADY_DECIDED", http.StatusConflict, "approval has already been decided")
	ErrOutOfOrder        = New("OUT_OF_ORDER", http.StatusConflict, "faculty review must be resolved before an admin decision")
)

// Registration lifecycle errors.
var (
	ErrEventNotApproved = New("EVENT_NOT_APPROVED", http.StatusConflict, "event is not approved for registration")
	ErrEventEnded       = New("EVENT_ENDED", http.StatusConflict, "event has already ended")
	ErrCapacityExceeded = New("CAPACITY_EXCEEDED", http.StatusConflict, "event has reached its participant limit")
	ErrAlreadyCancelled = New("ALREADY_CANCELLED", http.StatusConflict, "registration is already cancelled")
)

// Attendance protocol errors.
var (
	ErrMalformedToken        = New("MALFORMED_TOKEN", http.StatusBadRequest, "token could not be parsed")
	ErrIntegrityCheckFailed  = New("INTEGRITY_CHECK_FAILED", http.StatusBadRequest, "token signature does not match")
	ErrRegistrationNotFound  = New("REGISTRATION_NOT_FOUND", http.StatusNotFound, "registration not found")
	ErrEventMismatch         = New("EVENT_MISMATCH", http.StatusConflict, "token was issued for a different event")
	ErrAlreadyAttended       = New("ALREADY_ATTENDED", http.StatusConflict, "attendance already recorded")
	ErrRegistrationCancelled = New("REGISTRATION_CANCELLED", http.StatusConflict, "registration has been cancelled")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
