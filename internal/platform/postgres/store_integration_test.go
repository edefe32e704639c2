//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/postgres"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/phrazzld/scry-verify/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integrationQuestion() *domain.Question {
	target := uuid.New()
	id := uuid.New()
	return &domain.Question{
		ID:              id,
		TargetItemID:    target,
		QuestionType:    domain.QuestionMeaning,
		Prompt:          "What does \"break\" mean here?",
		ContextSentence: "Landing that role was her big break.",
		Options: []domain.Option{
			{Text: "a sudden opportunity", IsCorrect: true, SourceItemID: target},
			{Text: "a device for slowing a vehicle", SourceItemID: uuid.New(), SourceRelation: domain.RelationConfusable},
		},
		CorrectIndex: 0,
		Explanation:  "\"break\" means a sudden opportunity.",
		Fingerprint:  id.String(),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestQuestionAndStatisticsRoundTrip(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		stores := postgres.NewStores(tx, nil)

		q := integrationQuestion()
		require.NoError(t, stores.Questions.Create(ctx, q))

		got, err := stores.Questions.Get(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, q.Options, got.Options)
		assert.Equal(t, q.CorrectIndex, got.CorrectIndex)

		stats := domain.NewQuestionStatistics(q.ID, time.Now())
		require.NoError(t, stores.Statistics.Create(ctx, stats))

		first, err := stores.Statistics.Get(ctx, q.ID)
		require.NoError(t, err)
		second, err := stores.Statistics.Get(ctx, q.ID)
		require.NoError(t, err)

		first.TotalAttempts = 1
		first.NeedsRecalculation = true
		require.NoError(t, stores.Statistics.Save(ctx, first))

		second.TotalAttempts = 7
		assert.ErrorIs(t, stores.Statistics.Save(ctx, second), store.ErrStaleWrite)

		flagged, err := stores.Statistics.ListNeedingRecalculation(ctx, 10)
		require.NoError(t, err)
		assert.Contains(t, flagged, q.ID)

		// A failed statement aborts the transaction, so this runs last.
		assert.ErrorIs(t, stores.Questions.Create(ctx, q), store.ErrDuplicate)
	})
}

func TestCardStateAndAssignmentRoundTrip(t *testing.T) {
	t.Parallel()
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		stores := postgres.NewStores(tx, nil)
		now := time.Now().UTC().Truncate(time.Microsecond)
		learnerID := uuid.New()

		assignment, err := domain.NewAlgorithmAssignment(learnerID, domain.AlgorithmRuleBased, domain.AssignmentRandom, now)
		require.NoError(t, err)
		created, err := stores.Assignments.CreateIfAbsent(ctx, assignment)
		require.NoError(t, err)
		assert.True(t, created)
		created, err = stores.Assignments.CreateIfAbsent(ctx, assignment)
		require.NoError(t, err)
		assert.False(t, created)

		card := &domain.CardState{
			LearnerID:           learnerID,
			ItemID:              uuid.New(),
			AlgorithmType:       domain.AlgorithmRuleBased,
			CurrentIntervalDays: 1,
			DueAt:               now,
			MasteryLevel:        domain.MasteryLearning,
			RecentOutcomes:      []bool{true},
			RuleBased:           &domain.RuleBasedPayload{EaseFactor: 2.5},
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		require.NoError(t, stores.Cards.Create(ctx, card))

		locked, err := stores.Cards.GetForUpdate(ctx, learnerID, card.ItemID)
		require.NoError(t, err)
		assert.Equal(t, []bool{true}, locked.RecentOutcomes)

		_, err = stores.Cards.Get(ctx, learnerID, uuid.New())
		assert.ErrorIs(t, err, store.ErrCardStateNotFound)

		assert.ErrorIs(t, stores.Cards.Create(ctx, card), store.ErrCardStateExists)
	})
}
