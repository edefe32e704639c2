package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// AttemptRequest describes one answered question.
type AttemptRequest struct {
	// AttemptID makes retries idempotent. A nil id is replaced with a new one.
	AttemptID           uuid.UUID             `json:"attempt_id"`
	LearnerID           uuid.UUID             `json:"learner_id"`
	QuestionID          uuid.UUID             `json:"question_id"`
	SelectedOptionIndex int                   `json:"selected_option_index"`
	ResponseTimeMs      int                   `json:"response_time_ms"`
	AbilityEstimate     float64               `json:"ability_estimate"`
	Context             domain.AttemptContext `json:"context"`
}

// AttemptResult is the committed outcome of an attempt.
type AttemptResult struct {
	Correct       bool                       `json:"correct"`
	Explanation   string                     `json:"explanation"`
	Card          *domain.CardState          `json:"card"`
	QuestionStats *domain.QuestionStatistics `json:"question_stats"`
	Attempt       *domain.AttemptRecord      `json:"attempt"`
}

// Service runs the verification loop for a learner: starting verification of
// an item and recording answers to its questions.
type Service interface {
	// StartVerification returns the learner's card for an item, creating it
	// on first exposure under the learner's assigned algorithm. The learner
	// is assigned an algorithm first if needed.
	//
	// A card whose payload belongs to a previous algorithm is converted and
	// saved before it is returned.
	StartVerification(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error)

	// RecordAttempt grades an answer and applies it atomically. In one
	// transaction it:
	//  1. locks the learner's assignment and the card for the question's item
	//  2. inserts the attempt record
	//  3. applies the attempt to the question statistics, recomputing them
	//     when enough attempts exist, and writes them with a version bump
	//  4. schedules the card with the learner's algorithm
	//  5. counts the attempt toward migration eligibility
	//
	// Events are emitted only after the transaction commits.
	//
	// Returns:
	//   - ErrAttemptAlreadyRecorded when the attempt id was used before
	//   - ErrQuestionNotFound when the question does not exist
	//   - ErrInvalidAttempt when the request fails validation
	RecordAttempt(ctx context.Context, req AttemptRequest) (*AttemptResult, error)
}

// Common error types for the verification service
var (
	// ErrAttemptAlreadyRecorded indicates a retry of an attempt that was
	// already committed.
	ErrAttemptAlreadyRecorded = errors.New("attempt already recorded")

	// ErrQuestionNotFound indicates the answered question does not exist.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrInvalidAttempt indicates the attempt request failed validation.
	ErrInvalidAttempt = errors.New("invalid attempt")
)

// ServiceError wraps errors from the verification service with additional context.
// This allows consumers to differentiate between different types of service errors
// using errors.As instead of string matching.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "start_verification", "record_attempt")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewRecordAttemptError returns a new ServiceError for the record_attempt operation.
func NewRecordAttemptError(message string, err error) *ServiceError {
	return &ServiceError{
		Operation: "record_attempt",
		Message:   message,
		Err:       err,
	}
}

// NewStartVerificationError returns a new ServiceError for the start_verification operation.
func NewStartVerificationError(message string, err error) *ServiceError {
	return &ServiceError{
		Operation: "start_verification",
		Message:   message,
		Err:       err,
	}
}
