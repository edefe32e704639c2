package srs

import (
	"github.com/phrazzld/scry-verify/internal/domain"
)

// RuleBasedScheduler is the ease-factor scheduler (an SM-2 variant).
type RuleBasedScheduler struct {
	params *RuleBasedParams
}

// NewRuleBasedScheduler creates a rule-based scheduler. A nil params uses the defaults.
func NewRuleBasedScheduler(params *RuleBasedParams) *RuleBasedScheduler {
	if params == nil {
		params = NewDefaultRuleBasedParams()
	}
	return &RuleBasedScheduler{params: params}
}

var _ Scheduler = (*RuleBasedScheduler)(nil)

// Type implements Scheduler.
func (s *RuleBasedScheduler) Type() domain.AlgorithmType {
	return domain.AlgorithmRuleBased
}

// Schedule implements Scheduler.
//
// Algorithm behavior:
//   - Again (0): consecutive correct resets to 0, the interval shrinks to 1 day
//     and the ease factor takes the failure penalty, floored at MinEaseFactor
//   - Hard (1): interval x 1.2, ease factor decreases
//   - Good (2): interval x ease factor, ease factor unchanged
//   - Easy (3) and Perfect (4): interval x modifier x ease factor, ease factor increases
//   - Correct answers always lengthen the interval by at least one day
//   - The prior ease factor drives the interval so that, for a fixed prior
//     state, a higher rating never yields a shorter interval
//
// elapsedDays is ignored; the rule-based model only looks at the stored interval.
func (s *RuleBasedScheduler) Schedule(
	card domain.CardState,
	rating domain.Rating,
	_ float64,
) (domain.CardState, error) {
	if err := validateInput(&card, rating, domain.AlgorithmRuleBased); err != nil {
		return domain.CardState{}, err
	}

	next := card.Clone()
	payload := next.RuleBased

	next.CurrentIntervalDays = calculateNewInterval(card.CurrentIntervalDays, payload.EaseFactor, rating, s.params)
	payload.EaseFactor = calculateNewEaseFactor(payload.EaseFactor, rating, s.params)

	if rating == domain.RatingAgain {
		payload.ConsecutiveCorrect = 0
	} else {
		payload.ConsecutiveCorrect++
	}

	recordOutcome(&next, rating)
	next.MasteryLevel = s.masteryFor(payload.ConsecutiveCorrect, next.CurrentIntervalDays)

	return next, nil
}

// calculateNewEaseFactor applies the per-rating adjustment and clamps the
// result to [MinEaseFactor, MaxEaseFactor].
func calculateNewEaseFactor(currentEF float64, rating domain.Rating, params *RuleBasedParams) float64 {
	return clamp(currentEF+params.EaseFactorAdjustment[rating], params.MinEaseFactor, params.MaxEaseFactor)
}

// calculateNewInterval determines the next interval in days.
//
// Hard uses its modifier alone. Good uses the ease factor. Easy and Perfect
// multiply their modifier by the ease factor. The result is clamped to
// [1, MaxIntervalDays].
func calculateNewInterval(
	currentInterval int,
	easeFactor float64,
	rating domain.Rating,
	params *RuleBasedParams,
) int {
	if rating == domain.RatingAgain {
		return 1
	}

	if currentInterval < 1 {
		currentInterval = 1
	}

	var modifier float64
	switch rating {
	case domain.RatingHard:
		modifier = params.IntervalModifier[domain.RatingHard]
	case domain.RatingGood:
		modifier = easeFactor
	default:
		modifier = params.IntervalModifier[rating] * easeFactor
	}

	interval := clampInterval(float64(currentInterval)*modifier, params.MaxIntervalDays)
	if interval <= currentInterval && currentInterval < params.MaxIntervalDays {
		interval = currentInterval + 1
	}
	return interval
}

// masteryFor derives the mastery level from the streak of correct answers.
func (s *RuleBasedScheduler) masteryFor(consecutiveCorrect, intervalDays int) domain.MasteryLevel {
	switch {
	case consecutiveCorrect >= s.params.MasteredStreak && intervalDays >= s.params.MasteredInterval:
		return domain.MasteryMastered
	case consecutiveCorrect >= s.params.KnownStreak:
		return domain.MasteryKnown
	case consecutiveCorrect >= s.params.FamiliarStreak:
		return domain.MasteryFamiliar
	default:
		return domain.MasteryLearning
	}
}
