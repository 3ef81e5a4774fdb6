package episodes

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrEpisodeNotFound = errors.New("episode not found")
	ErrNotOwner        = errors.New("episode belongs to another user")
	ErrNotReady        = errors.New("episode is not ready")
	ErrNotGenerating   = errors.New("episode is no longer generating")
	ErrInvalidInput    = errors.New("invalid input")
)

// NotFoundError represents an error when an episode is not found
type NotFoundError struct {
	ID uint
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("episode %d not found", e.ID)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrEpisodeNotFound
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(id uint) error {
	return NotFoundError{ID: id}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEpisodeNotFound)
}
