package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecentOutcomeWindow is the number of most recent review outcomes kept on a
// card for leech detection.
const RecentOutcomeWindow = 5

// Card state validation errors
var (
	ErrCardLearnerIDEmpty   = errors.New("card learner ID cannot be empty")
	ErrCardItemIDEmpty      = errors.New("card item ID cannot be empty")
	ErrInvalidInterval      = errors.New("interval must be at least 1 day")
	ErrInvalidReviewTotals  = errors.New("total correct must be between 0 and total reviews")
	ErrPayloadMismatch      = errors.New("card payload does not match its algorithm type")
	ErrInvalidMasteryLevel  = errors.New("invalid mastery level")
	ErrInvalidResponseTime  = errors.New("average response time cannot be negative")
	ErrTooManyRecentResults = errors.New("recent outcomes exceed the leech window")
)

// RuleBasedPayload is the SM-2 style state owned by the rule-based scheduler.
type RuleBasedPayload struct {
	EaseFactor         float64 `json:"ease_factor"`
	ConsecutiveCorrect int     `json:"consecutive_correct"`
}

// ModelBasedPayload is the memory-model state owned by the model-based scheduler.
// Stability is measured in days; Difficulty is normalized to 0..1.
type ModelBasedPayload struct {
	Stability              float64  `json:"stability"`
	Difficulty             float64  `json:"difficulty"`
	LastPredictedRetention *float64 `json:"last_predicted_retention,omitempty"`
}

// CardState is one learner's scheduling state for one lexical item.
// Exactly one of RuleBased or ModelBased is set, matching AlgorithmType.
type CardState struct {
	LearnerID             uuid.UUID          `json:"learner_id"`
	ItemID                uuid.UUID          `json:"item_id"`
	AlgorithmType         AlgorithmType      `json:"algorithm_type"`
	LastReviewDate        *time.Time         `json:"last_review_date,omitempty"`
	CurrentIntervalDays   int                `json:"current_interval_days"`
	DueAt                 time.Time          `json:"due_at"`
	TotalReviews          int                `json:"total_reviews"`
	TotalCorrect          int                `json:"total_correct"`
	AverageResponseTimeMs float64            `json:"average_response_time_ms"`
	MasteryLevel          MasteryLevel       `json:"mastery_level"`
	IsLeech               bool               `json:"is_leech"`
	RecentOutcomes        []bool             `json:"recent_outcomes"`
	RuleBased             *RuleBasedPayload  `json:"rule_based,omitempty"`
	ModelBased            *ModelBasedPayload `json:"model_based,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Validate checks the card state invariants.
func (c *CardState) Validate() error {
	if c.LearnerID == uuid.Nil {
		return ErrCardLearnerIDEmpty
	}
	if c.ItemID == uuid.Nil {
		return ErrCardItemIDEmpty
	}
	if c.CurrentIntervalDays < 1 {
		return ErrInvalidInterval
	}
	if c.TotalCorrect < 0 || c.TotalCorrect > c.TotalReviews {
		return ErrInvalidReviewTotals
	}
	if c.AverageResponseTimeMs < 0 {
		return ErrInvalidResponseTime
	}
	if len(c.RecentOutcomes) > RecentOutcomeWindow {
		return ErrTooManyRecentResults
	}

	switch c.MasteryLevel {
	case MasteryLearning, MasteryFamiliar, MasteryKnown, MasteryMastered:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMasteryLevel, c.MasteryLevel)
	}

	switch c.AlgorithmType {
	case AlgorithmRuleBased:
		if c.RuleBased == nil || c.ModelBased != nil {
			return ErrPayloadMismatch
		}
	case AlgorithmModelBased:
		if c.ModelBased == nil || c.RuleBased != nil {
			return ErrPayloadMismatch
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAlgorithmType, c.AlgorithmType)
	}

	return nil
}

// Clone returns a deep copy so schedulers can derive new states without
// aliasing the caller's payloads or outcome window.
func (c CardState) Clone() CardState {
	out := c
	if c.LastReviewDate != nil {
		t := *c.LastReviewDate
		out.LastReviewDate = &t
	}
	if c.RecentOutcomes != nil {
		out.RecentOutcomes = append([]bool(nil), c.RecentOutcomes...)
	}
	if c.RuleBased != nil {
		rb := *c.RuleBased
		out.RuleBased = &rb
	}
	if c.ModelBased != nil {
		mb := *c.ModelBased
		if c.ModelBased.LastPredictedRetention != nil {
			r := *c.ModelBased.LastPredictedRetention
			mb.LastPredictedRetention = &r
		}
		out.ModelBased = &mb
	}
	return out
}

// RecentFailures counts failed reviews in the outcome window.
func (c *CardState) RecentFailures() int {
	n := 0
	for _, passed := range c.RecentOutcomes {
		if !passed {
			n++
		}
	}
	return n
}

// IsDue reports whether the card is due on the calendar day of now (UTC).
func (c *CardState) IsDue(now time.Time) bool {
	return c.DueAt.Before(EndOfDay(now))
}

// EndOfDay returns the start of the next UTC calendar day.
func EndOfDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
