package srs

import (
	"math"

	"github.com/phrazzld/scry-verify/internal/domain"
)

// LeechFailureThreshold is the number of failures within the recent outcome
// window that marks a card as a leech.
const LeechFailureThreshold = 3

// Scheduler computes the next card state after one review.
//
// Implementations are pure: they read no clocks, hold no mutable state and
// never mutate the card they are given. elapsedDays is the time since the
// previous review (0 for a first review).
type Scheduler interface {
	// Type identifies the algorithm that owns the payload this scheduler reads.
	Type() domain.AlgorithmType

	// Schedule returns the card state after applying rating.
	Schedule(card domain.CardState, rating domain.Rating, elapsedDays float64) (domain.CardState, error)
}

// recordOutcome updates the bookkeeping both algorithms share: review totals,
// the recent outcome window and the leech overlay.
//
// The leech flag is recomputed on every review from the window alone, so it
// holds regardless of the card's interval or age and clears once enough
// recent reviews pass.
func recordOutcome(card *domain.CardState, rating domain.Rating) {
	card.TotalReviews++
	if rating.Passed() {
		card.TotalCorrect++
	}

	card.RecentOutcomes = append(card.RecentOutcomes, rating.Passed())
	if excess := len(card.RecentOutcomes) - domain.RecentOutcomeWindow; excess > 0 {
		card.RecentOutcomes = append([]bool(nil), card.RecentOutcomes[excess:]...)
	}

	card.IsLeech = card.RecentFailures() >= LeechFailureThreshold
}

// validateInput checks the inputs every scheduler requires.
func validateInput(card *domain.CardState, rating domain.Rating, want domain.AlgorithmType) error {
	if !rating.Valid() {
		return ErrInvalidRating
	}
	if card.AlgorithmType != want {
		return ErrPayloadMismatch
	}
	switch want {
	case domain.AlgorithmRuleBased:
		if card.RuleBased == nil {
			return ErrPayloadMismatch
		}
	case domain.AlgorithmModelBased:
		if card.ModelBased == nil {
			return ErrPayloadMismatch
		}
	}
	return nil
}

// clampInterval rounds a fractional interval and bounds it to [1, maxDays].
func clampInterval(days float64, maxDays int) int {
	if math.IsNaN(days) || days < 1 {
		return 1
	}
	if math.IsInf(days, 1) || days > float64(maxDays) {
		return maxDays
	}
	return int(math.Round(days))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
