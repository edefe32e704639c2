package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/generation"
	"github.com/phrazzld/scry-verify/internal/lexicon"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBuilder answers AssembleWithFallback from a function and records the
// requested archetype orders.
type stubBuilder struct {
	build  func(itemID uuid.UUID, order []domain.QuestionType) (*domain.Question, error)
	orders [][]domain.QuestionType
}

func (b *stubBuilder) AssembleWithFallback(
	_ context.Context,
	itemID uuid.UUID,
	order []domain.QuestionType,
) (*domain.Question, error) {
	b.orders = append(b.orders, append([]domain.QuestionType(nil), order...))
	return b.build(itemID, order)
}

func generatingBuilder() *stubBuilder {
	return &stubBuilder{build: func(itemID uuid.UUID, order []domain.QuestionType) (*domain.Question, error) {
		q := testQuestion(itemID, uuid.NewString())
		q.QuestionType = order[0]
		return q, nil
	}}
}

func newSelector(b memoryBackend, builder service.QuestionBuilder) service.SelectorService {
	return service.NewSelectorService(b.stores, b.tx, builder, service.SelectorConfig{
		QualityFloor: service.DefaultQualityFloor,
		DueBatchSize: 2,
	}, nil, service.WithSelectorClock(clock))
}

func storeCard(t *testing.T, stores store.Stores, learner, item uuid.UUID, due time.Time, leech bool) {
	t.Helper()
	card := &domain.CardState{
		LearnerID:           learner,
		ItemID:              item,
		AlgorithmType:       domain.AlgorithmRuleBased,
		CurrentIntervalDays: 1,
		DueAt:               due,
		MasteryLevel:        domain.MasteryLearning,
		IsLeech:             leech,
		RecentOutcomes:      []bool{},
		RuleBased:           &domain.RuleBasedPayload{EaseFactor: 2.5},
		CreatedAt:           fixedNow,
		UpdatedAt:           fixedNow,
	}
	require.NoError(t, stores.Cards.Create(context.Background(), card))
}

// storeQuestion persists a question with statistics; score nil leaves the
// derived metrics unset.
func storeQuestion(
	t *testing.T,
	stores store.Stores,
	item uuid.UUID,
	qt domain.QuestionType,
	attempts int,
	score *float64,
	flagged bool,
) *domain.Question {
	t.Helper()
	ctx := context.Background()
	q := testQuestion(item, uuid.NewString())
	q.QuestionType = qt
	require.NoError(t, stores.Questions.Create(ctx, q))

	stats := domain.NewQuestionStatistics(q.ID, fixedNow)
	stats.TotalAttempts = attempts
	stats.QualityScore = score
	stats.NeedsReview = flagged
	require.NoError(t, stores.Statistics.Create(ctx, stats))
	return q
}

func score(v float64) *float64 { return &v }

func TestGetDueCard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newBackend()
	svc := newSelector(b, generatingBuilder())
	learner := uuid.New()

	_, err := svc.GetDueCard(ctx, learner, nil)
	assert.ErrorIs(t, err, service.ErrNoCardsDue)

	leech := uuid.New()
	older := uuid.New()
	laterToday := uuid.New()
	tomorrow := uuid.New()
	storeCard(t, b.stores, learner, leech, fixedNow.Add(-72*time.Hour), true)
	storeCard(t, b.stores, learner, older, fixedNow.Add(-24*time.Hour), false)
	storeCard(t, b.stores, learner, laterToday, fixedNow.Add(10*time.Hour), false)
	storeCard(t, b.stores, learner, tomorrow, fixedNow.Add(13*time.Hour), false)

	card, err := svc.GetDueCard(ctx, learner, service.NewSession())
	require.NoError(t, err)
	assert.Equal(t, leech, card.ItemID, "an unshown leech is still served")

	session := service.NewSession(leech)
	card, err = svc.GetDueCard(ctx, learner, session)
	require.NoError(t, err)
	assert.Equal(t, older, card.ItemID)

	session.MarkShown(older)
	card, err = svc.GetDueCard(ctx, learner, session)
	require.NoError(t, err)
	assert.Equal(t, laterToday, card.ItemID, "cards due later today qualify")

	session.MarkShown(laterToday)
	_, err = svc.GetDueCard(ctx, learner, session)
	assert.ErrorIs(t, err, service.ErrNoCardsDue, "cards due tomorrow do not qualify")
}

func TestGetNextQuestion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("highest quality above the floor", func(t *testing.T) {
		b := newBackend()
		item := uuid.New()
		storeQuestion(t, b.stores, item, domain.QuestionMeaning, 50, score(0.5), false)
		best := storeQuestion(t, b.stores, item, domain.QuestionUsage, 40, score(0.8), false)
		storeQuestion(t, b.stores, item, domain.QuestionMeaning, 40, score(0.95), true)
		storeQuestion(t, b.stores, item, domain.QuestionMeaning, 0, nil, false)

		builder := generatingBuilder()
		q, err := newSelector(b, builder).GetNextQuestion(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, best.ID, q.ID)
		assert.Empty(t, builder.orders)
	})

	t.Run("explores the least attempted question below the floor", func(t *testing.T) {
		b := newBackend()
		item := uuid.New()
		storeQuestion(t, b.stores, item, domain.QuestionMeaning, 30, score(0.1), false)
		fresh := storeQuestion(t, b.stores, item, domain.QuestionUsage, 2, nil, false)

		q, err := newSelector(b, generatingBuilder()).GetNextQuestion(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, fresh.ID, q.ID)
	})

	t.Run("generates when every question is flagged", func(t *testing.T) {
		b := newBackend()
		item := uuid.New()
		storeQuestion(t, b.stores, item, domain.QuestionMeaning, 30, score(0.1), true)

		builder := generatingBuilder()
		svc := newSelector(b, builder)
		q, err := svc.GetNextQuestion(ctx, item)
		require.NoError(t, err)
		require.Len(t, builder.orders, 1)
		assert.Equal(t, []domain.QuestionType{
			domain.QuestionUsage, domain.QuestionDiscrimination, domain.QuestionMeaning,
		}, builder.orders[0])
		assert.Equal(t, domain.QuestionUsage, q.QuestionType)

		stored, err := b.stores.Questions.Get(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, q.Fingerprint, stored.Fingerprint)
		_, err = b.stores.Statistics.Get(ctx, q.ID)
		require.NoError(t, err, "generated questions get a statistics row")
	})

	t.Run("generates when none exist", func(t *testing.T) {
		b := newBackend()
		builder := generatingBuilder()
		_, err := newSelector(b, builder).GetNextQuestion(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, service.DefaultQuestionOrder, builder.orders[0])
	})

	t.Run("reassembles when the new question matches a flagged one", func(t *testing.T) {
		b := newBackend()
		item := uuid.New()
		flagged := storeQuestion(t, b.stores, item, domain.QuestionMeaning, 30, score(0.1), true)

		calls := 0
		builder := &stubBuilder{build: func(itemID uuid.UUID, _ []domain.QuestionType) (*domain.Question, error) {
			calls++
			if calls == 1 {
				return testQuestion(itemID, flagged.Fingerprint), nil
			}
			return testQuestion(itemID, uuid.NewString()), nil
		}}
		q, err := newSelector(b, builder).GetNextQuestion(ctx, item)
		require.NoError(t, err)
		assert.NotEqual(t, flagged.ID, q.ID)
		assert.Len(t, builder.orders, 2)

		list, err := b.stores.Questions.ListByItem(ctx, item)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("never serves a flagged question it keeps reproducing", func(t *testing.T) {
		b := newBackend()
		item := uuid.New()
		flagged := storeQuestion(t, b.stores, item, domain.QuestionMeaning, 30, score(0.1), true)

		builder := &stubBuilder{build: func(itemID uuid.UUID, order []domain.QuestionType) (*domain.Question, error) {
			q := testQuestion(itemID, flagged.Fingerprint)
			q.QuestionType = order[0]
			return q, nil
		}}
		q, err := newSelector(b, builder).GetNextQuestion(ctx, item)
		assert.Nil(t, q)
		assert.ErrorIs(t, err, generation.ErrInsufficientData)

		require.NotEmpty(t, builder.orders)
		assert.LessOrEqual(t, len(builder.orders), 3*len(service.DefaultQuestionOrder))
		last := builder.orders[len(builder.orders)-1]
		assert.Len(t, last, 1, "archetypes that keep colliding are dropped")

		list, err := b.stores.Questions.ListByItem(ctx, item)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("generation errors are returned", func(t *testing.T) {
		b := newBackend()
		item := uuid.New()
		builder := &stubBuilder{build: func(itemID uuid.UUID, _ []domain.QuestionType) (*domain.Question, error) {
			return nil, &generation.InsufficientDataError{ItemID: itemID, QuestionType: domain.QuestionUsage, Found: 2, Required: 3}
		}}
		_, err := newSelector(b, builder).GetNextQuestion(ctx, item)
		assert.ErrorIs(t, err, generation.ErrInsufficientData)
	})
}

func TestNextVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newBackend()
	learner := uuid.New()

	missing := uuid.New()
	sparse := uuid.New()
	broken := uuid.New()
	leech := uuid.New()
	good := uuid.New()
	storeCard(t, b.stores, learner, missing, fixedNow.Add(-96*time.Hour), false)
	storeCard(t, b.stores, learner, sparse, fixedNow.Add(-72*time.Hour), false)
	storeCard(t, b.stores, learner, broken, fixedNow.Add(-60*time.Hour), false)
	storeCard(t, b.stores, learner, leech, fixedNow.Add(-48*time.Hour), true)
	storeCard(t, b.stores, learner, good, fixedNow.Add(-24*time.Hour), false)

	builder := &stubBuilder{build: func(itemID uuid.UUID, order []domain.QuestionType) (*domain.Question, error) {
		switch itemID {
		case missing:
			return nil, &generation.ContentUnavailableError{ItemID: itemID, Reason: "item not found"}
		case sparse:
			return nil, &generation.InsufficientDataError{ItemID: itemID, QuestionType: order[0], Found: 2, Required: 3}
		case broken:
			return nil, errors.New("lexicon timeout")
		}
		return testQuestion(itemID, uuid.NewString()), nil
	}}
	svc := newSelector(b, builder)

	session := service.NewSession()
	v, err := svc.NextVerification(ctx, learner, session)
	require.NoError(t, err)
	assert.Equal(t, leech, v.Card.ItemID)
	assert.Equal(t, leech, v.Question.TargetItemID)
	assert.Contains(t, session.ShownLeeches, leech)

	v, err = svc.NextVerification(ctx, learner, session)
	require.NoError(t, err)
	assert.Equal(t, good, v.Card.ItemID)
	assert.NotContains(t, session.ShownLeeches, good)

	_, err = svc.NextVerification(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, service.ErrNoCardsDue)
}

func TestNextVerificationAllCardsSkipped(t *testing.T) {
	t.Parallel()
	b := newBackend()
	learner := uuid.New()
	for i := 0; i < 5; i++ {
		storeCard(t, b.stores, learner, uuid.New(), fixedNow.Add(-time.Duration(i+1)*time.Hour), false)
	}
	builder := &stubBuilder{build: func(itemID uuid.UUID, _ []domain.QuestionType) (*domain.Question, error) {
		return nil, &generation.ContentUnavailableError{ItemID: itemID, Reason: "item not found"}
	}}

	_, err := newSelector(b, builder).NextVerification(context.Background(), learner, service.NewSession())
	assert.ErrorIs(t, err, service.ErrNoCardsDue)
	assert.Len(t, builder.orders, 5)
}

func TestGetNextQuestionRotatesAwayFromFlaggedWithDeterministicOptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newBackend()

	target := &domain.LexicalItem{
		ID:              uuid.New(),
		LexemeID:        uuid.New(),
		Word:            "break",
		Definition:      "a sudden opportunity",
		ExampleSentence: "Landing that role was her big chance.",
	}
	lex := lexicon.NewMemoryStore(target)
	for word, def := range map[string]string{
		"brake": "a device for slowing a vehicle",
		"brick": "a block of baked clay",
		"bleak": "cold and miserable",
	} {
		other := &domain.LexicalItem{ID: uuid.New(), LexemeID: uuid.New(), Word: word, Definition: def}
		lex.Put(other)
		target.Relations = append(target.Relations,
			domain.Relation{Type: domain.RelationConfusable, TargetItemID: other.ID})
	}
	lex.Put(target)

	assembler := generation.NewAssembler(lex,
		generation.NewDistractorSelector(lex, generation.NewDefaultParams(), nil), nil,
		generation.WithShuffler(func(int, func(i, j int)) {}))
	svc := newSelector(b, assembler)

	first, err := svc.GetNextQuestion(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionMeaning, first.QuestionType)

	stats, err := b.stores.Statistics.Get(ctx, first.ID)
	require.NoError(t, err)
	stats.NeedsReview = true
	require.NoError(t, b.stores.Statistics.Save(ctx, stats))

	again, err := svc.GetNextQuestion(ctx, target.ID)
	assert.ErrorIs(t, err, generation.ErrInsufficientData)
	assert.Nil(t, again)
}
