package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a laureate, loan or payment id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a status change the transition table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrHistoryLocked is returned when a schedule regeneration is attempted after money has moved.
	ErrHistoryLocked = errors.New("payment schedule is locked: completed payments exist")
)

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
