package quality

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func attempt(correct bool, ability float64, ms int) *domain.AttemptRecord {
	return &domain.AttemptRecord{
		ID:              uuid.New(),
		Correct:         correct,
		AbilityEstimate: ability,
		ResponseTimeMs:  ms,
	}
}

func TestApplyAttempt(t *testing.T) {
	t.Parallel()
	stats := domain.NewQuestionStatistics(uuid.New(), testNow)

	require.NoError(t, ApplyAttempt(stats, attempt(true, 0.8, 1200), domain.RelationTarget, testNow))
	require.NoError(t, ApplyAttempt(stats, attempt(false, 0.3, 3000), domain.RelationConfusable, testNow))
	require.NoError(t, ApplyAttempt(stats, attempt(false, 0.1, 800), domain.RelationConfusable, testNow))

	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 1, stats.CorrectAttempts)
	assert.Equal(t, int64(5000), stats.TotalResponseTimeMs)
	assert.Equal(t, 1, stats.AbilityCountCorrect)
	assert.Equal(t, 2, stats.AbilityCountWrong)
	assert.InDelta(t, 0.4, stats.AbilitySumWrong, 1e-9)
	assert.Equal(t, 1, stats.DistractorSelectionCounts[domain.RelationTarget])
	assert.Equal(t, 2, stats.DistractorSelectionCounts[domain.RelationConfusable])
	assert.True(t, stats.NeedsRecalculation)
	assert.Nil(t, stats.DifficultyIndex, "counters alone never touch derived metrics")

	assert.ErrorIs(t, ApplyAttempt(nil, attempt(true, 0.5, 1), "", testNow), ErrNilStatistics)
}

func TestRecompute_BelowThreshold(t *testing.T) {
	t.Parallel()
	stats := domain.NewQuestionStatistics(uuid.New(), testNow)
	for i := 0; i < 4; i++ {
		require.NoError(t, ApplyAttempt(stats, attempt(false, 0.5, 1000), domain.RelationSynonym, testNow))
	}

	require.NoError(t, Recompute(stats, NewDefaultParams(), testNow))
	assert.Nil(t, stats.DifficultyIndex)
	assert.Nil(t, stats.QualityScore)
	assert.False(t, stats.NeedsReview)
	assert.False(t, stats.NeedsRecalculation)
	require.NotNil(t, stats.RecomputedAt)
}

func TestRecompute_TooDifficult(t *testing.T) {
	t.Parallel()
	stats := domain.NewQuestionStatistics(uuid.New(), testNow)
	stats.TotalAttempts = 20
	stats.CorrectAttempts = 2

	require.NoError(t, Recompute(stats, NewDefaultParams(), testNow))

	require.NotNil(t, stats.DifficultyIndex)
	assert.InDelta(t, 0.10, *stats.DifficultyIndex, 1e-9)
	assert.True(t, stats.NeedsReview)
	assert.Equal(t, domain.ReviewReasonTooDifficult, stats.ReviewReason)
}

func TestRecompute_Reasons(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		correct     []float64
		wrong       []float64
		needsReview bool
		reason      string
	}{
		{
			name:        "too easy",
			correct:     []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5},
			needsReview: true,
			reason:      domain.ReviewReasonTooEasy,
		},
		{
			name:        "low discrimination",
			correct:     []float64{0.5, 0.5, 0.5},
			wrong:       []float64{0.5, 0.5, 0.5},
			needsReview: true,
			reason:      domain.ReviewReasonLowDiscrimination,
		},
		{
			name:        "healthy question",
			correct:     []float64{0.9, 0.8, 0.85},
			wrong:       []float64{0.2, 0.3, 0.25},
			needsReview: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			stats := domain.NewQuestionStatistics(uuid.New(), testNow)
			for _, a := range tc.correct {
				require.NoError(t, ApplyAttempt(stats, attempt(true, a, 1000), domain.RelationTarget, testNow))
			}
			for _, a := range tc.wrong {
				require.NoError(t, ApplyAttempt(stats, attempt(false, a, 1000), domain.RelationAntonym, testNow))
			}

			require.NoError(t, Recompute(stats, NewDefaultParams(), testNow))
			assert.Equal(t, tc.needsReview, stats.NeedsReview)
			assert.Equal(t, tc.reason, stats.ReviewReason)
			require.NotNil(t, stats.QualityScore)
			assert.GreaterOrEqual(t, *stats.QualityScore, 0.0)
			assert.LessOrEqual(t, *stats.QualityScore, 1.0)
		})
	}
}

func TestRecompute_DiscriminationNeedsBothGroups(t *testing.T) {
	t.Parallel()
	stats := domain.NewQuestionStatistics(uuid.New(), testNow)
	for i := 0; i < 6; i++ {
		require.NoError(t, ApplyAttempt(stats, attempt(true, 0.7, 1000), domain.RelationTarget, testNow))
	}

	require.NoError(t, Recompute(stats, NewDefaultParams(), testNow))
	assert.Nil(t, stats.DiscriminationIndex)
	require.NotNil(t, stats.QualityScore)
	assert.InDelta(t, 0.0, *stats.QualityScore, 1e-9, "all-correct questions have no balance")
}

func TestRecompute_DiscriminationConverges(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(42, 99))
	stats := domain.NewQuestionStatistics(uuid.New(), testNow)

	// Learners above 0.5 ability always answer correctly, the rest never do,
	// so the expected discrimination is the gap between group means (0.5).
	for i := 0; i < 100; i++ {
		ability := rng.Float64()
		require.NoError(t, ApplyAttempt(stats, attempt(ability > 0.5, ability, 1000), "", testNow))
	}
	require.NoError(t, Recompute(stats, NewDefaultParams(), testNow))

	require.NotNil(t, stats.DiscriminationIndex)
	assert.InDelta(t, 0.5, *stats.DiscriminationIndex, 0.1)
	assert.GreaterOrEqual(t, *stats.DiscriminationIndex, 0.0)
	assert.LessOrEqual(t, *stats.DiscriminationIndex, 1.0)
}
