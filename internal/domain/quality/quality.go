// Package quality turns attempt logs into per-question psychometrics.
//
// Updates happen in two explicit phases. ApplyAttempt is the cheap per-attempt
// counter update that runs inside the attempt transaction. Recompute derives
// difficulty, discrimination, a quality score and the review flag from those
// counters; it runs inline once enough attempts exist and again from the
// batch sweep for rows marked NeedsRecalculation.
package quality

import (
	"errors"
	"math"
	"time"

	"github.com/phrazzld/scry-verify/internal/domain"
)

// ErrNilStatistics is returned when a nil statistics row is passed in.
var ErrNilStatistics = errors.New("question statistics cannot be nil")

// Params holds the recomputation thresholds.
type Params struct {
	MinAttempts            int     `mapstructure:"min_attempts"`
	TooDifficultBelow      float64 `mapstructure:"too_difficult_below"`
	TooEasyAbove           float64 `mapstructure:"too_easy_above"`
	LowDiscriminationBelow float64 `mapstructure:"low_discrimination_below"`
	DiscriminationWeight   float64 `mapstructure:"discrimination_weight"`
}

// NewDefaultParams returns the default thresholds.
func NewDefaultParams() Params {
	return Params{
		MinAttempts:            5,
		TooDifficultBelow:      0.2,
		TooEasyAbove:           0.9,
		LowDiscriminationBelow: 0.2,
		DiscriminationWeight:   0.5,
	}
}

// ApplyAttempt adds one attempt to the counters and marks the row for
// recomputation. selected is the relation label of the chosen option
// (domain.RelationTarget for the correct answer).
func ApplyAttempt(
	stats *domain.QuestionStatistics,
	attempt *domain.AttemptRecord,
	selected domain.RelationType,
	now time.Time,
) error {
	if stats == nil {
		return ErrNilStatistics
	}

	stats.TotalAttempts++
	if attempt.Correct {
		stats.CorrectAttempts++
		stats.AbilitySumCorrect += attempt.AbilityEstimate
		stats.AbilityCountCorrect++
	} else {
		stats.AbilitySumWrong += attempt.AbilityEstimate
		stats.AbilityCountWrong++
	}
	stats.TotalResponseTimeMs += int64(attempt.ResponseTimeMs)

	if selected != "" {
		if stats.DistractorSelectionCounts == nil {
			stats.DistractorSelectionCounts = map[domain.RelationType]int{}
		}
		stats.DistractorSelectionCounts[selected]++
	}

	stats.NeedsRecalculation = true
	stats.UpdatedAt = now.UTC()
	return nil
}

// Ready reports whether the row has enough attempts for the derived metrics.
func Ready(stats *domain.QuestionStatistics, params Params) bool {
	return stats.TotalAttempts >= params.MinAttempts
}

// Recompute derives the metrics from the counters. Below MinAttempts the
// derived fields are cleared and the row is left unflagged; the
// recalculation mark is cleared either way.
//
//   - difficulty is the proportion correct
//   - discrimination is the gap between the mean ability of learners who
//     answered correctly and those who did not, clamped to [0, 1]; it stays
//     nil until both groups have at least one attempt
//   - quality blends discrimination with closeness of difficulty to 0.5
//   - the review reason is the first of too difficult, too easy, or low
//     discrimination that applies
func Recompute(stats *domain.QuestionStatistics, params Params, now time.Time) error {
	if stats == nil {
		return ErrNilStatistics
	}

	now = now.UTC()
	stats.NeedsRecalculation = false
	stats.RecomputedAt = &now
	stats.UpdatedAt = now

	if !Ready(stats, params) {
		stats.DifficultyIndex = nil
		stats.DiscriminationIndex = nil
		stats.QualityScore = nil
		stats.NeedsReview = false
		stats.ReviewReason = ""
		return nil
	}

	difficulty := float64(stats.CorrectAttempts) / float64(stats.TotalAttempts)
	stats.DifficultyIndex = &difficulty

	stats.DiscriminationIndex = nil
	if stats.AbilityCountCorrect > 0 && stats.AbilityCountWrong > 0 {
		meanCorrect := stats.AbilitySumCorrect / float64(stats.AbilityCountCorrect)
		meanWrong := stats.AbilitySumWrong / float64(stats.AbilityCountWrong)
		discrimination := math.Min(math.Max(meanCorrect-meanWrong, 0), 1)
		stats.DiscriminationIndex = &discrimination
	}

	balance := 1 - math.Abs(difficulty-0.5)*2
	score := balance
	if stats.DiscriminationIndex != nil {
		w := params.DiscriminationWeight
		score = w*(*stats.DiscriminationIndex) + (1-w)*balance
	}
	stats.QualityScore = &score

	stats.NeedsReview, stats.ReviewReason = reviewFlag(difficulty, stats.DiscriminationIndex, params)
	return nil
}

func reviewFlag(difficulty float64, discrimination *float64, params Params) (bool, string) {
	switch {
	case difficulty < params.TooDifficultBelow:
		return true, domain.ReviewReasonTooDifficult
	case difficulty > params.TooEasyAbove:
		return true, domain.ReviewReasonTooEasy
	case discrimination != nil && *discrimination < params.LowDiscriminationBelow:
		return true, domain.ReviewReasonLowDiscrimination
	default:
		return false, ""
	}
}
