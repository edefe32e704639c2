package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped with fmt.Errorf and %w
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrNoCardsDue indicates the learner has no card due today after the
	// session exclusions were applied.
	// API layer should map this to HTTP 204 No Content.
	ErrNoCardsDue = errors.New("no cards due for verification")

	// ErrConsentRequired indicates a migration was requested without the
	// learner's consent.
	// API layer should map this to HTTP 400 Bad Request.
	ErrConsentRequired = errors.New("migration requires learner consent")

	// ErrNotEligible indicates the learner has not met the migration criteria.
	// API layer should map this to HTTP 409 Conflict.
	ErrNotEligible = errors.New("learner is not eligible for migration")

	// ErrAlreadyMigrated indicates the one-time migration has already happened.
	// API layer should map this to HTTP 409 Conflict.
	ErrAlreadyMigrated = errors.New("learner has already migrated")

	// ErrAlreadyAssigned indicates a manual assignment was requested for a
	// learner that already has one.
	// API layer should map this to HTTP 409 Conflict.
	ErrAlreadyAssigned = errors.New("learner already has an algorithm assignment")
)
