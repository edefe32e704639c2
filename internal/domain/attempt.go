package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttemptContext describes where an attempt happened.
type AttemptContext string

// Attempt contexts
const (
	ContextVerification AttemptContext = "verification"
	ContextPractice     AttemptContext = "practice"
	ContextAssessment   AttemptContext = "assessment"
)

// Valid reports whether c is a known context.
func (c AttemptContext) Valid() bool {
	switch c {
	case ContextVerification, ContextPractice, ContextAssessment:
		return true
	}
	return false
}

// Attempt validation errors
var (
	ErrAttemptIDEmpty         = errors.New("attempt ID cannot be empty")
	ErrAttemptLearnerIDEmpty  = errors.New("attempt learner ID cannot be empty")
	ErrAttemptQuestionIDEmpty = errors.New("attempt question ID cannot be empty")
	ErrInvalidAttemptContext  = errors.New("invalid attempt context")
	ErrInvalidAbilityEstimate = errors.New("ability estimate must be between 0 and 1")
	ErrInvalidAttemptResponse = errors.New("response time cannot be negative")
	ErrInvalidSelectedOption  = errors.New("selected option index out of range")
)

// AttemptRecord is a write-once log entry for one answered question.
type AttemptRecord struct {
	ID                  uuid.UUID      `json:"id"`
	LearnerID           uuid.UUID      `json:"learner_id"`
	QuestionID          uuid.UUID      `json:"question_id"`
	TargetItemID        uuid.UUID      `json:"target_item_id"`
	Correct             bool           `json:"correct"`
	ResponseTimeMs      int            `json:"response_time_ms"`
	SelectedOptionIndex int            `json:"selected_option_index"`
	AbilityEstimate     float64        `json:"ability_estimate"`
	Context             AttemptContext `json:"context"`
	AlgorithmType       AlgorithmType  `json:"algorithm_type"`
	Rating              Rating         `json:"rating"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Validate checks the attempt fields.
func (a *AttemptRecord) Validate() error {
	if a.ID == uuid.Nil {
		return ErrAttemptIDEmpty
	}
	if a.LearnerID == uuid.Nil {
		return ErrAttemptLearnerIDEmpty
	}
	if a.QuestionID == uuid.Nil {
		return ErrAttemptQuestionIDEmpty
	}
	if !a.Context.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAttemptContext, a.Context)
	}
	if a.AbilityEstimate < 0 || a.AbilityEstimate > 1 {
		return ErrInvalidAbilityEstimate
	}
	if a.ResponseTimeMs < 0 {
		return ErrInvalidAttemptResponse
	}
	if a.SelectedOptionIndex < 0 {
		return ErrInvalidSelectedOption
	}
	if !a.AlgorithmType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlgorithmType, a.AlgorithmType)
	}
	if !a.Rating.Valid() {
		return ErrInvalidRating
	}
	return nil
}
