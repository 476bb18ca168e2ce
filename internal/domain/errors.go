package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNonDuplicateMerge indicates that a merge was requested between
	// publications a human has confirmed are not duplicates.
	ErrNonDuplicateMerge = errors.New("non-duplicate merge")

	// ErrGroupingInProgress indicates that a duplicate grouping scan is
	// already running.
	ErrGroupingInProgress = errors.New("grouping already in progress")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NonDuplicateMergeError is raised when a merge set contains two publications
// that are co-members of the same non-duplicate group. It is always raised
// before any mutation, so the caller can safely re-present the group to a
// human for manual resolution.
type NonDuplicateMergeError struct {
	PublicationID uuid.UUID
	ConflictsWith uuid.UUID
}

// Error implements the error interface.
func (e *NonDuplicateMergeError) Error() string {
	return fmt.Sprintf("publications %s and %s are confirmed non-duplicates and cannot be merged",
		e.PublicationID, e.ConflictsWith)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NonDuplicateMergeError) Unwrap() error {
	return ErrNonDuplicateMerge
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
