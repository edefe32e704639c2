package srs

import (
	"math"

	"github.com/phrazzld/scry-verify/internal/domain"
)

// ModelBasedScheduler tracks a memory-strength model per card: stability is
// the number of days until predicted retention decays to the reference
// threshold, and difficulty (0..1) is the item's hardness for this learner.
type ModelBasedScheduler struct {
	params *ModelBasedParams
	factor float64
}

// NewModelBasedScheduler creates a model-based scheduler. A nil params uses the defaults.
func NewModelBasedScheduler(params *ModelBasedParams) *ModelBasedScheduler {
	if params == nil {
		params = NewDefaultModelBasedParams()
	}
	return &ModelBasedScheduler{
		params: params,
		// Chosen so that R(S, S) equals the reference retention.
		factor: math.Pow(params.ReferenceRetention, 1.0/params.Decay) - 1.0,
	}
}

var _ Scheduler = (*ModelBasedScheduler)(nil)

// Type implements Scheduler.
func (s *ModelBasedScheduler) Type() domain.AlgorithmType {
	return domain.AlgorithmModelBased
}

// Retention predicts the probability of recall after elapsedDays for a card
// with the given stability. It is strictly decreasing in elapsedDays.
func (s *ModelBasedScheduler) Retention(elapsedDays, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	if elapsedDays <= 0 {
		return 1
	}
	return math.Pow(1+s.factor*elapsedDays/stability, s.params.Decay)
}

// NextInterval solves the forgetting curve for the elapsed time at which
// retention falls to the desired retention.
func (s *ModelBasedScheduler) NextInterval(stability float64) int {
	days := stability / s.factor * (math.Pow(s.params.DesiredRetention, 1.0/s.params.Decay) - 1)
	return clampInterval(days, s.params.MaxIntervalDays)
}

// Schedule implements Scheduler.
//
// Algorithm behavior:
//   - First review (stability 0): stability and difficulty come from the
//     per-rating initial values
//   - Later reviews predict retention from elapsedDays first and store it
//   - Success grows stability, more for higher ratings and lower retention,
//     less for items that are already stable
//   - Failure drops stability sharply, never above MaxLapseRatio of its prior value
//   - Difficulty moves toward harder on failure and easier on high ratings,
//     with damping near the bounds and a small pull toward the initial value
func (s *ModelBasedScheduler) Schedule(
	card domain.CardState,
	rating domain.Rating,
	elapsedDays float64,
) (domain.CardState, error) {
	if err := validateInput(&card, rating, domain.AlgorithmModelBased); err != nil {
		return domain.CardState{}, err
	}

	next := card.Clone()
	payload := next.ModelBased

	if payload.Stability <= 0 {
		payload.Stability = s.params.InitialStability[rating]
		payload.Difficulty = s.initialDifficulty(rating)
		payload.LastPredictedRetention = nil
	} else {
		retention := s.Retention(math.Max(elapsedDays, 0), payload.Stability)
		payload.LastPredictedRetention = &retention

		if rating.Passed() {
			payload.Stability = s.recallStability(payload.Difficulty, payload.Stability, retention, rating)
		} else {
			payload.Stability = s.lapseStability(payload.Difficulty, payload.Stability, retention)
		}
		payload.Difficulty = s.nextDifficulty(payload.Difficulty, rating)
	}

	next.CurrentIntervalDays = s.NextInterval(payload.Stability)

	recordOutcome(&next, rating)
	next.MasteryLevel = s.masteryFor(payload.Stability, next.CurrentIntervalDays, rating)

	return next, nil
}

func (s *ModelBasedScheduler) initialDifficulty(rating domain.Rating) float64 {
	return clamp(s.params.InitialDifficulty-s.params.DifficultyStep*float64(rating-domain.RatingGood), 0, 1)
}

// recallStability applies the success update. Difficulty is mapped from 0..1
// onto a 1..10 ease term so easy items grow faster.
func (s *ModelBasedScheduler) recallStability(d, stability, retention float64, rating domain.Rating) float64 {
	p := s.params
	growth := math.Exp(p.GrowthWeight) *
		(10 - 9*d) *
		math.Pow(stability, -p.SaturationExponent) *
		(math.Exp((1-retention)*p.RetentionGain) - 1) *
		p.RatingBonus[rating]
	return math.Max(stability*(1+growth), p.MinStability)
}

// lapseStability applies the failure update.
func (s *ModelBasedScheduler) lapseStability(d, stability, retention float64) float64 {
	p := s.params
	lapse := p.LapseWeight *
		math.Pow(1+9*d, -p.LapseDifficultyExponent) *
		(math.Pow(stability+1, p.LapseStabilityExponent) - 1) *
		math.Exp((1-retention)*p.LapseRetentionGain)
	return math.Max(math.Min(lapse, stability*p.MaxLapseRatio), p.MinStability)
}

// nextDifficulty moves difficulty by one step per rating point away from Good.
// Increases are damped by the remaining headroom and decreases by the current
// value, so difficulty approaches its bounds asymptotically.
func (s *ModelBasedScheduler) nextDifficulty(d float64, rating domain.Rating) float64 {
	delta := -s.params.DifficultyStep * float64(rating-domain.RatingGood)
	if delta > 0 {
		delta *= 1 - d
	} else {
		delta *= d
	}
	next := d + delta
	next = s.params.MeanReversion*s.params.InitialDifficulty + (1-s.params.MeanReversion)*next
	return clamp(next, 0, 1)
}

func (s *ModelBasedScheduler) masteryFor(stability float64, intervalDays int, rating domain.Rating) domain.MasteryLevel {
	p := s.params
	switch {
	case !rating.Passed():
		return domain.MasteryLearning
	case stability >= p.MasteredStability && intervalDays >= p.MasteredInterval:
		return domain.MasteryMastered
	case stability >= p.KnownStability:
		return domain.MasteryKnown
	case stability >= p.FamiliarStability:
		return domain.MasteryFamiliar
	default:
		return domain.MasteryLearning
	}
}
