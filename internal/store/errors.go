package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStaleWrite is returned by version-checked writes when the row was
	// changed by someone else since it was read. Callers re-read and retry.
	ErrStaleWrite = errors.New("stale write: row version changed")

	// Entity-specific "not found" errors

	ErrCardStateNotFound          = fmt.Errorf("%w: card state", ErrNotFound)
	ErrAssignmentNotFound         = fmt.Errorf("%w: algorithm assignment", ErrNotFound)
	ErrQuestionNotFound           = fmt.Errorf("%w: question", ErrNotFound)
	ErrQuestionStatisticsNotFound = fmt.Errorf("%w: question statistics", ErrNotFound)
	ErrAttemptNotFound            = fmt.Errorf("%w: attempt", ErrNotFound)
	ErrLexicalItemNotFound        = fmt.Errorf("%w: lexical item", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrAttemptExists is returned when an attempt id was already recorded.
	// Clients retrying with the same id hit this instead of double counting.
	ErrAttemptExists = fmt.Errorf("%w: attempt", ErrDuplicate)

	// ErrQuestionFingerprintExists is returned when an identical question
	// is already stored.
	ErrQuestionFingerprintExists = fmt.Errorf("%w: question fingerprint", ErrDuplicate)

	ErrCardStateExists = fmt.Errorf("%w: card state", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "card_state", "question")
	Operation string // The operation that failed (e.g., "create", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
