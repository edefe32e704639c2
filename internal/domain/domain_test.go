package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCard() CardState {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return CardState{
		LearnerID:           uuid.New(),
		ItemID:              uuid.New(),
		AlgorithmType:       AlgorithmRuleBased,
		CurrentIntervalDays: 1,
		DueAt:               now,
		MasteryLevel:        MasteryLearning,
		RuleBased:           &RuleBasedPayload{EaseFactor: 2.5},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestCardStateValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(c *CardState)
		err    error
	}{
		{"valid", func(c *CardState) {}, nil},
		{"missing learner", func(c *CardState) { c.LearnerID = uuid.Nil }, ErrCardLearnerIDEmpty},
		{"missing item", func(c *CardState) { c.ItemID = uuid.Nil }, ErrCardItemIDEmpty},
		{"zero interval", func(c *CardState) { c.CurrentIntervalDays = 0 }, ErrInvalidInterval},
		{"correct exceeds reviews", func(c *CardState) { c.TotalCorrect = 1 }, ErrInvalidReviewTotals},
		{"both payloads", func(c *CardState) { c.ModelBased = &ModelBasedPayload{} }, ErrPayloadMismatch},
		{"wrong payload", func(c *CardState) {
			c.AlgorithmType = AlgorithmModelBased
		}, ErrPayloadMismatch},
		{"unknown algorithm", func(c *CardState) { c.AlgorithmType = "x" }, ErrInvalidAlgorithmType},
		{"unknown mastery", func(c *CardState) { c.MasteryLevel = "expert" }, ErrInvalidMasteryLevel},
		{"window too long", func(c *CardState) { c.RecentOutcomes = make([]bool, 6) }, ErrTooManyRecentResults},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := validCard()
			tc.mutate(&c)
			err := c.Validate()
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCardStateCloneIsDeep(t *testing.T) {
	t.Parallel()
	c := validCard()
	reviewed := c.CreatedAt
	c.LastReviewDate = &reviewed
	c.RecentOutcomes = []bool{true}

	clone := c.Clone()
	clone.RuleBased.EaseFactor = 1.3
	clone.RecentOutcomes[0] = false
	*clone.LastReviewDate = reviewed.Add(time.Hour)

	assert.Equal(t, 2.5, c.RuleBased.EaseFactor)
	assert.True(t, c.RecentOutcomes[0])
	assert.Equal(t, reviewed, *c.LastReviewDate)
}

func TestCardStateIsDue(t *testing.T) {
	t.Parallel()
	c := validCard()
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

	c.DueAt = time.Date(2026, 4, 10, 23, 0, 0, 0, time.UTC)
	assert.True(t, c.IsDue(now), "cards due later today count as due")

	c.DueAt = time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC)
	assert.False(t, c.IsDue(now))
}

func TestQuestionValidate(t *testing.T) {
	t.Parallel()
	target := uuid.New()
	newQuestion := func() Question {
		return Question{
			ID:              uuid.New(),
			TargetItemID:    target,
			QuestionType:    QuestionMeaning,
			Prompt:          `What does "bank" mean in this sentence?`,
			ContextSentence: "She sat on the bank of the river.",
			Options: []Option{
				{Text: "land beside a river", IsCorrect: true, SourceItemID: target, SourceRelation: RelationTarget},
				{Text: "a place that keeps money", SourceItemID: uuid.New(), SourceRelation: RelationConfusable},
			},
			CorrectIndex: 0,
			Explanation:  `The correct answer is "land beside a river".`,
		}
	}

	q := newQuestion()
	require.NoError(t, q.Validate())
	assert.True(t, q.IsCorrect(0))
	assert.Equal(t, RelationTarget, q.SelectedRelation(0))
	assert.Equal(t, RelationConfusable, q.SelectedRelation(1))
	assert.Equal(t, RelationType(""), q.SelectedRelation(7))

	q = newQuestion()
	q.CorrectIndex = 1
	assert.ErrorIs(t, q.Validate(), ErrQuestionCorrectOption)

	q = newQuestion()
	q.Options[1].IsCorrect = true
	assert.ErrorIs(t, q.Validate(), ErrQuestionCorrectOption)

	q = newQuestion()
	q.Options[1].SourceItemID = target
	assert.ErrorIs(t, q.Validate(), ErrQuestionTargetAsWrong)

	q = newQuestion()
	q.Explanation = " "
	assert.ErrorIs(t, q.Validate(), ErrQuestionExplanationEmpty)
}

func TestLexicalItemSameLexeme(t *testing.T) {
	t.Parallel()
	lexeme := uuid.New()
	bankRiver := &LexicalItem{ID: uuid.New(), LexemeID: lexeme, Word: "bank"}
	bankMoney := &LexicalItem{ID: uuid.New(), LexemeID: lexeme, Word: "bank"}
	bankUpper := &LexicalItem{ID: uuid.New(), LexemeID: uuid.New(), Word: "Bank "}
	shore := &LexicalItem{ID: uuid.New(), LexemeID: uuid.New(), Word: "shore"}

	assert.True(t, bankRiver.SameLexeme(bankMoney))
	assert.True(t, bankRiver.SameLexeme(bankUpper))
	assert.False(t, bankRiver.SameLexeme(shore))
}

func TestAttemptRecordValidate(t *testing.T) {
	t.Parallel()
	a := AttemptRecord{
		ID:              uuid.New(),
		LearnerID:       uuid.New(),
		QuestionID:      uuid.New(),
		AbilityEstimate: 0.4,
		Context:         ContextVerification,
		AlgorithmType:   AlgorithmModelBased,
		Rating:          RatingGood,
	}
	require.NoError(t, a.Validate())

	a.AbilityEstimate = 1.2
	assert.ErrorIs(t, a.Validate(), ErrInvalidAbilityEstimate)

	a.AbilityEstimate = 0.4
	a.Context = "quiz"
	assert.ErrorIs(t, a.Validate(), ErrInvalidAttemptContext)
}

func TestAlgorithmAssignment(t *testing.T) {
	t.Parallel()
	now := time.Now()

	a, err := NewAlgorithmAssignment(uuid.New(), AlgorithmRuleBased, AssignmentRandom, now)
	require.NoError(t, err)
	assert.False(t, a.Migrated())

	_, err = NewAlgorithmAssignment(uuid.Nil, AlgorithmRuleBased, AssignmentRandom, now)
	assert.ErrorIs(t, err, ErrAssignmentLearnerIDEmpty)

	_, err = NewAlgorithmAssignment(uuid.New(), "x", AssignmentRandom, now)
	assert.ErrorIs(t, err, ErrInvalidAlgorithmType)

	_, err = NewAlgorithmAssignment(uuid.New(), AlgorithmModelBased, "lottery", now)
	assert.ErrorIs(t, err, ErrInvalidAssignmentReason)
}
