package srs

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelCard(stability, difficulty float64, interval int) domain.CardState {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.CardState{
		LearnerID:           uuid.New(),
		ItemID:              uuid.New(),
		AlgorithmType:       domain.AlgorithmModelBased,
		CurrentIntervalDays: interval,
		DueAt:               now,
		MasteryLevel:        domain.MasteryLearning,
		ModelBased:          &domain.ModelBasedPayload{Stability: stability, Difficulty: difficulty},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestModelBasedRetention(t *testing.T) {
	t.Parallel()
	s := NewModelBasedScheduler(nil)

	assert.InDelta(t, 0.9, s.Retention(10, 10), 1e-9, "retention at t = S is the reference threshold")
	assert.Equal(t, 1.0, s.Retention(0, 10))
	assert.Equal(t, 0.0, s.Retention(5, 0))

	prev := 1.0
	for day := 1.0; day <= 365; day++ {
		r := s.Retention(day, 12)
		require.Less(t, r, prev, "retention must strictly decrease with elapsed time")
		prev = r
	}
}

func TestModelBasedNextInterval(t *testing.T) {
	t.Parallel()
	s := NewModelBasedScheduler(nil)

	// Desired retention equals the reference, so the interval equals stability.
	assert.Equal(t, 10, s.NextInterval(10))
	assert.Equal(t, 1, s.NextInterval(0.2))
	assert.Equal(t, 3650, s.NextInterval(1e6))

	lenient := NewModelBasedScheduler(NewModelBasedParams(ModelBasedParamsConfig{DesiredRetention: 0.8}))
	assert.Greater(t, lenient.NextInterval(10), 10, "a lower retention target spaces reviews further apart")
}

func TestModelBasedSchedule_FirstReview(t *testing.T) {
	t.Parallel()
	s := NewModelBasedScheduler(nil)
	params := NewDefaultModelBasedParams()

	for r := domain.RatingAgain; r <= domain.RatingPerfect; r++ {
		next, err := s.Schedule(modelCard(0, 0.5, 1), r, 0)
		require.NoError(t, err)
		assert.Equal(t, params.InitialStability[r], next.ModelBased.Stability)
		assert.Nil(t, next.ModelBased.LastPredictedRetention)
		assert.GreaterOrEqual(t, next.CurrentIntervalDays, 1)
	}

	again, _ := s.Schedule(modelCard(0, 0.5, 1), domain.RatingAgain, 0)
	perfect, _ := s.Schedule(modelCard(0, 0.5, 1), domain.RatingPerfect, 0)
	assert.Greater(t, again.ModelBased.Difficulty, perfect.ModelBased.Difficulty)
}

func TestModelBasedSchedule_Success(t *testing.T) {
	t.Parallel()
	s := NewModelBasedScheduler(nil)

	card := modelCard(10, 0.5, 10)
	hard, err := s.Schedule(card, domain.RatingHard, 10)
	require.NoError(t, err)
	good, err := s.Schedule(card, domain.RatingGood, 10)
	require.NoError(t, err)
	easy, err := s.Schedule(card, domain.RatingEasy, 10)
	require.NoError(t, err)

	assert.Greater(t, hard.ModelBased.Stability, 10.0)
	assert.Greater(t, good.ModelBased.Stability, hard.ModelBased.Stability)
	assert.Greater(t, easy.ModelBased.Stability, good.ModelBased.Stability)
	require.NotNil(t, good.ModelBased.LastPredictedRetention)
	assert.InDelta(t, 0.9, *good.ModelBased.LastPredictedRetention, 1e-9)

	// Diminishing returns: relative growth shrinks as stability rises.
	small, _ := s.Schedule(modelCard(2, 0.5, 2), domain.RatingGood, 2)
	large, _ := s.Schedule(modelCard(200, 0.5, 200), domain.RatingGood, 200)
	assert.Greater(t, small.ModelBased.Stability/2, large.ModelBased.Stability/200)

	assert.Less(t, easy.ModelBased.Difficulty, card.ModelBased.Difficulty)
}

func TestModelBasedSchedule_Failure(t *testing.T) {
	t.Parallel()
	s := NewModelBasedScheduler(nil)

	card := modelCard(40, 0.5, 40)
	card.MasteryLevel = domain.MasteryKnown
	next, err := s.Schedule(card, domain.RatingAgain, 40)
	require.NoError(t, err)

	assert.LessOrEqual(t, next.ModelBased.Stability, 20.0, "failure at least halves stability")
	assert.Greater(t, next.ModelBased.Difficulty, 0.5)
	assert.Equal(t, domain.MasteryLearning, next.MasteryLevel)
	assert.Less(t, next.CurrentIntervalDays, card.CurrentIntervalDays)
	assert.GreaterOrEqual(t, next.CurrentIntervalDays, 1)
}

func TestModelBasedSchedule_InvalidInput(t *testing.T) {
	t.Parallel()
	s := NewModelBasedScheduler(nil)

	_, err := s.Schedule(modelCard(1, 0.5, 1), domain.Rating(-1), 0)
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = s.Schedule(ruleCard(1, 2.5, 0), domain.RatingGood, 0)
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestSchedulers_InvariantsHoldForRandomSequences(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	rng := rand.New(rand.NewPCG(3, 5))

	for _, algorithm := range []domain.AlgorithmType{domain.AlgorithmRuleBased, domain.AlgorithmModelBased} {
		t.Run(string(algorithm), func(t *testing.T) {
			for seq := 0; seq < 100; seq++ {
				now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
				card, err := svc.NewCard(uuid.New(), uuid.New(), algorithm, now)
				require.NoError(t, err)

				for step := 0; step < 40; step++ {
					now = now.Add(time.Duration(rng.IntN(90*24)) * time.Hour)
					card, err = svc.Review(card, domain.Rating(rng.IntN(5)), now)
					require.NoError(t, err)

					require.NoError(t, card.Validate())
					require.GreaterOrEqual(t, card.CurrentIntervalDays, 1)
					require.LessOrEqual(t, card.TotalCorrect, card.TotalReviews)
					require.Equal(t, step+1, card.TotalReviews)
					if card.ModelBased != nil {
						require.GreaterOrEqual(t, card.ModelBased.Difficulty, 0.0)
						require.LessOrEqual(t, card.ModelBased.Difficulty, 1.0)
						require.Greater(t, card.ModelBased.Stability, 0.0)
					}
				}
			}
		})
	}
}
