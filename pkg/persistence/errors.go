// Package persistence defines the storage contracts and standardized error
// types shared by all store implementations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates an automation definition was not found.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrProcessNotFound indicates an approval process definition was not found.
	ErrProcessNotFound = errors.New("approval process not found")

	// ErrRecordNotFound indicates a business record was not found.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRequestNotFound indicates an approval request was not found.
	ErrRequestNotFound = errors.New("approval request not found")

	// ErrStepNotFound indicates no step instance matches the given identifier.
	ErrStepNotFound = errors.New("approval step not found")

	// ErrReportNotFound indicates an execution report was not found.
	ErrReportNotFound = errors.New("execution report not found")

	// ErrTransitionConflict indicates a conditional transition lost an
	// optimistic-concurrency race: the row's current state did not match the
	// expected state.
	ErrTransitionConflict = errors.New("transition conflict")

	// ErrDuplicateRecord indicates a unique constraint on dedupe fields
	// rejected a concurrent identical insert.
	ErrDuplicateRecord = errors.New("duplicate record")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g. "TransitionStep", "SaveRecord")
	Entity string // Entity kind
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrProcessNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrReportNotFound)
}

// IsConflict reports whether err is an optimistic-concurrency loss.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTransitionConflict) || errors.Is(err, ErrDuplicateRecord)
}
