package srs

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_NewCard(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	now := time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)
	learnerID, itemID := uuid.New(), uuid.New()

	rule, err := svc.NewCard(learnerID, itemID, domain.AlgorithmRuleBased, now)
	require.NoError(t, err)
	assert.Equal(t, 2.5, rule.RuleBased.EaseFactor)
	assert.Nil(t, rule.ModelBased)
	assert.Nil(t, rule.LastReviewDate)
	assert.Equal(t, now, rule.DueAt, "new cards are due immediately")
	assert.Equal(t, 1, rule.CurrentIntervalDays)

	model, err := svc.NewCard(learnerID, itemID, domain.AlgorithmModelBased, now)
	require.NoError(t, err)
	assert.Equal(t, 0.0, model.ModelBased.Stability)
	assert.Equal(t, 0.5, model.ModelBased.Difficulty)
	assert.Nil(t, model.RuleBased)

	_, err = svc.NewCard(learnerID, itemID, domain.AlgorithmType("leitner"), now)
	var unknown *UnknownAlgorithmTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, domain.AlgorithmType("leitner"), unknown.Type)
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestService_Review(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	created := time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)

	card, err := svc.NewCard(uuid.New(), uuid.New(), domain.AlgorithmRuleBased, created)
	require.NoError(t, err)

	reviewedAt := created.Add(2 * time.Hour)
	next, err := svc.Review(card, domain.RatingGood, reviewedAt)
	require.NoError(t, err)

	require.NotNil(t, next.LastReviewDate)
	assert.Equal(t, reviewedAt, *next.LastReviewDate)
	assert.Equal(t, reviewedAt.AddDate(0, 0, next.CurrentIntervalDays), next.DueAt)
	assert.Equal(t, reviewedAt, next.UpdatedAt)
	assert.Nil(t, card.LastReviewDate, "input card is left untouched")

	_, err = svc.Review(nil, domain.RatingGood, reviewedAt)
	assert.ErrorIs(t, err, ErrNilCard)

	bad := *card
	bad.AlgorithmType = "unknown"
	_, err = svc.Review(&bad, domain.RatingGood, reviewedAt)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestService_ReviewUsesElapsedTimeForModelCards(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	start := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	card, err := svc.NewCard(uuid.New(), uuid.New(), domain.AlgorithmModelBased, start)
	require.NoError(t, err)
	card, err = svc.Review(card, domain.RatingGood, start)
	require.NoError(t, err)

	early, err := svc.Review(card, domain.RatingGood, start.Add(24*time.Hour))
	require.NoError(t, err)
	late, err := svc.Review(card, domain.RatingGood, start.Add(6*24*time.Hour))
	require.NoError(t, err)

	require.NotNil(t, early.ModelBased.LastPredictedRetention)
	require.NotNil(t, late.ModelBased.LastPredictedRetention)
	assert.Greater(t, *early.ModelBased.LastPredictedRetention, *late.ModelBased.LastPredictedRetention)
	assert.Greater(t, late.ModelBased.Stability, early.ModelBased.Stability,
		"recalling a more forgotten item strengthens it more")
}

func TestService_ConvertPayload(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	card := ruleCard(20, 1.9, 4)
	card.TotalReviews = 6
	card.TotalCorrect = 5
	card.RecentOutcomes = []bool{false, true, true, true, true}

	model, err := svc.ConvertPayload(&card, domain.AlgorithmModelBased, now)
	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmModelBased, model.AlgorithmType)
	assert.Nil(t, model.RuleBased)
	assert.Equal(t, 20.0, model.ModelBased.Stability)
	assert.InDelta(t, 0.5, model.ModelBased.Difficulty, 1e-9)
	assert.Equal(t, 20, model.CurrentIntervalDays)
	assert.Equal(t, 6, model.TotalReviews)

	back, err := svc.ConvertPayload(model, domain.AlgorithmRuleBased, now)
	require.NoError(t, err)
	assert.InDelta(t, 1.9, back.RuleBased.EaseFactor, 1e-9)
	assert.Equal(t, 4, back.RuleBased.ConsecutiveCorrect)

	fresh, err := svc.NewCard(uuid.New(), uuid.New(), domain.AlgorithmRuleBased, now)
	require.NoError(t, err)
	converted, err := svc.ConvertPayload(fresh, domain.AlgorithmModelBased, now)
	require.NoError(t, err)
	assert.Equal(t, 0.0, converted.ModelBased.Stability, "unreviewed cards stay new")

	same, err := svc.ConvertPayload(&card, domain.AlgorithmRuleBased, now)
	require.NoError(t, err)
	assert.Equal(t, card.RuleBased.EaseFactor, same.RuleBased.EaseFactor)

	_, err = svc.ConvertPayload(&card, "unknown", now)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestService_PredictRetention(t *testing.T) {
	t.Parallel()
	svc := NewDefaultService()
	last := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	card := modelCard(10, 0.5, 10)
	card.LastReviewDate = &last

	r, err := svc.PredictRetention(&card, last.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.InDelta(t, 0.9, r, 1e-9)

	rule := ruleCard(1, 2.5, 0)
	_, err = svc.PredictRetention(&rule, last)
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestRatingPolicy(t *testing.T) {
	t.Parallel()
	policy := NewRatingPolicy(RatingPolicyParams{})

	testCases := []struct {
		correct  bool
		ms       int
		expected domain.Rating
	}{
		{false, 500, domain.RatingAgain},
		{true, 900, domain.RatingPerfect},
		{true, 3000, domain.RatingEasy},
		{true, 8000, domain.RatingGood},
		{true, 25000, domain.RatingHard},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, policy.Rate(tc.correct, tc.ms), "correct=%v ms=%d", tc.correct, tc.ms)
	}
}
