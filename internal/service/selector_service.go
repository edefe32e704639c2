package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/generation"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

// DefaultQualityFloor is the minimum quality score a stored question needs to
// be served ahead of exploration.
const DefaultQualityFloor = 0.3

// DefaultQuestionOrder is the archetype order used when generating questions.
var DefaultQuestionOrder = []domain.QuestionType{
	domain.QuestionMeaning,
	domain.QuestionUsage,
	domain.QuestionDiscrimination,
}

// Session carries per-session selection state owned by the caller.
type Session struct {
	// ShownLeeches holds the item ids of leech cards already served.
	ShownLeeches map[uuid.UUID]struct{}
}

// NewSession creates a session, optionally seeded with leech item ids the
// caller has already shown.
func NewSession(shown ...uuid.UUID) *Session {
	s := &Session{ShownLeeches: make(map[uuid.UUID]struct{}, len(shown))}
	for _, id := range shown {
		s.ShownLeeches[id] = struct{}{}
	}
	return s
}

// MarkShown records that a leech card was served.
func (s *Session) MarkShown(itemID uuid.UUID) {
	if s.ShownLeeches == nil {
		s.ShownLeeches = make(map[uuid.UUID]struct{})
	}
	s.ShownLeeches[itemID] = struct{}{}
}

// Excluded returns the shown leech ids in a stable order.
func (s *Session) Excluded() []uuid.UUID {
	if s == nil {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.ShownLeeches))
	for id := range s.ShownLeeches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Verification pairs a due card with the question to ask about it.
type Verification struct {
	Card     *domain.CardState `json:"card"`
	Question *domain.Question  `json:"question"`
}

// QuestionBuilder assembles new questions for an item.
type QuestionBuilder interface {
	AssembleWithFallback(
		ctx context.Context,
		itemID uuid.UUID,
		order []domain.QuestionType,
	) (*domain.Question, error)
}

// SelectorConfig tunes question and card selection.
type SelectorConfig struct {
	QualityFloor  float64
	DueBatchSize  int
	QuestionOrder []domain.QuestionType
}

// SelectorService decides what a learner verifies next.
type SelectorService interface {
	// GetDueCard returns the most overdue card due today (UTC), skipping
	// leeches already shown in the session.
	// Returns ErrNoCardsDue if nothing qualifies.
	GetDueCard(ctx context.Context, learnerID uuid.UUID, session *Session) (*domain.CardState, error)

	// GetNextQuestion returns the question to ask about an item. Stored
	// questions that meet the quality floor are preferred, then the least
	// attempted unflagged question, then a newly generated one.
	GetNextQuestion(ctx context.Context, itemID uuid.UUID) (*domain.Question, error)

	// NextVerification walks due cards in overdue order and returns the first
	// one a question can be served for. Cards that fail are logged and skipped.
	// Returns ErrNoCardsDue if no card qualifies.
	NextVerification(ctx context.Context, learnerID uuid.UUID, session *Session) (*Verification, error)
}

type selectorServiceImpl struct {
	stores  store.Stores
	tx      store.Transactor
	builder QuestionBuilder
	config  SelectorConfig
	now     func() time.Time
	logger  *slog.Logger
}

// Ensure selectorServiceImpl implements SelectorService interface
var _ SelectorService = (*selectorServiceImpl)(nil)

// SelectorOption configures a selector service.
type SelectorOption func(*selectorServiceImpl)

// WithSelectorClock replaces the time source.
func WithSelectorClock(now func() time.Time) SelectorOption {
	return func(s *selectorServiceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSelectorService creates a new selector service.
// It will panic if any required dependency is nil.
func NewSelectorService(
	stores store.Stores,
	tx store.Transactor,
	builder QuestionBuilder,
	config SelectorConfig,
	logger *slog.Logger,
	opts ...SelectorOption,
) SelectorService {
	if stores.Cards == nil || stores.Questions == nil || stores.Statistics == nil {
		panic("card, question and statistics stores cannot be nil")
	}
	if tx == nil {
		panic("transactor cannot be nil")
	}
	if builder == nil {
		panic("builder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.DueBatchSize <= 0 {
		config.DueBatchSize = 20
	}
	if len(config.QuestionOrder) == 0 {
		config.QuestionOrder = DefaultQuestionOrder
	}

	s := &selectorServiceImpl{
		stores:  stores,
		tx:      tx,
		builder: builder,
		config:  config,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "selector_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDueCard implements SelectorService.GetDueCard.
func (s *selectorServiceImpl) GetDueCard(
	ctx context.Context,
	learnerID uuid.UUID,
	session *Session,
) (*domain.CardState, error) {
	cards, err := s.stores.Cards.ListDue(ctx, learnerID, domain.EndOfDay(s.now()), store.DueFilter{
		ExcludeItemIDs: session.Excluded(),
		Limit:          1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list due cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, ErrNoCardsDue
	}
	return cards[0], nil
}

// GetNextQuestion implements SelectorService.GetNextQuestion.
func (s *selectorServiceImpl) GetNextQuestion(ctx context.Context, itemID uuid.UUID) (*domain.Question, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	questions, err := s.stores.Questions.ListByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	ids := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	stats, err := s.stores.Statistics.ListByQuestionIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list question statistics: %w", err)
	}

	if q := s.bestQuestion(questions, stats); q != nil {
		log.Debug("serving stored question",
			slog.String("item_id", itemID.String()),
			slog.String("question_id", q.ID.String()))
		return q, nil
	}

	order := s.rotateAwayFromFlagged(questions, stats)
	log.Debug("generating question",
		slog.String("item_id", itemID.String()),
		slog.Int("stored", len(questions)),
		slog.String("first_type", string(order[0])))

	return s.generate(ctx, itemID, order)
}

// bestQuestion returns the highest scoring unflagged question at or above the
// quality floor, else the least attempted unflagged question, else nil. Ties
// go to the older question.
func (s *selectorServiceImpl) bestQuestion(
	questions []*domain.Question,
	stats map[uuid.UUID]*domain.QuestionStatistics,
) *domain.Question {
	var (
		best         *domain.Question
		bestScore    float64
		explore      *domain.Question
		fewestPlayed int
	)
	for _, q := range questions {
		st := stats[q.ID]
		if st != nil && st.NeedsReview {
			continue
		}

		attempts := 0
		if st != nil {
			attempts = st.TotalAttempts
			if st.QualityScore != nil && *st.QualityScore >= s.config.QualityFloor {
				if best == nil || *st.QualityScore > bestScore {
					best, bestScore = q, *st.QualityScore
				}
			}
		}
		if explore == nil || attempts < fewestPlayed {
			explore, fewestPlayed = q, attempts
		}
	}
	if best != nil {
		return best
	}
	return explore
}

// rotateAwayFromFlagged moves archetypes that already have flagged questions
// to the back of the configured order.
func (s *selectorServiceImpl) rotateAwayFromFlagged(
	questions []*domain.Question,
	stats map[uuid.UUID]*domain.QuestionStatistics,
) []domain.QuestionType {
	flagged := make(map[domain.QuestionType]bool)
	for _, q := range questions {
		if st := stats[q.ID]; st != nil && st.NeedsReview {
			flagged[q.QuestionType] = true
		}
	}

	order := make([]domain.QuestionType, 0, len(s.config.QuestionOrder))
	for _, qt := range s.config.QuestionOrder {
		if !flagged[qt] {
			order = append(order, qt)
		}
	}
	for _, qt := range s.config.QuestionOrder {
		if flagged[qt] {
			order = append(order, qt)
		}
	}
	return order
}

// maxRegenerationsPerType bounds how often one archetype is reassembled when
// it keeps reproducing a flagged question.
const maxRegenerationsPerType = 3

// generate builds, persists and returns a new question. A fingerprint that
// matches a flagged question is reassembled, and an archetype that keeps
// reproducing flagged questions is dropped from the order. An identical
// unflagged question, stored by a concurrent caller, is returned as is.
func (s *selectorServiceImpl) generate(
	ctx context.Context,
	itemID uuid.UUID,
	order []domain.QuestionType,
) (*domain.Question, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	remaining := append([]domain.QuestionType(nil), order...)
	collisions := make(map[domain.QuestionType]int)
	budget := maxRegenerationsPerType * len(order)

	for attempt := 0; attempt < budget && len(remaining) > 0; attempt++ {
		q, err := s.builder.AssembleWithFallback(ctx, itemID, remaining)
		if err != nil {
			return nil, err
		}

		existing, err := s.persist(ctx, q)
		if err != nil {
			log.Error("failed to persist generated question",
				slog.String("error", err.Error()),
				slog.String("item_id", itemID.String()))
			return nil, fmt.Errorf("failed to persist question: %w", err)
		}
		if existing == nil {
			log.Info("generated question",
				slog.String("item_id", itemID.String()),
				slog.String("question_id", q.ID.String()),
				slog.String("question_type", string(q.QuestionType)))
			return q, nil
		}

		flagged, err := s.isFlagged(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		if !flagged {
			log.Debug("reusing identical question",
				slog.String("question_id", existing.ID.String()))
			return existing, nil
		}

		collisions[q.QuestionType]++
		log.Debug("generated question matches a flagged one",
			slog.String("item_id", itemID.String()),
			slog.String("question_id", existing.ID.String()),
			slog.String("question_type", string(q.QuestionType)),
			slog.Int("collisions", collisions[q.QuestionType]))
		if collisions[q.QuestionType] >= maxRegenerationsPerType {
			remaining = withoutType(remaining, q.QuestionType)
		}
	}

	log.Warn("no unflagged question could be generated",
		slog.String("item_id", itemID.String()))
	return nil, &generation.InsufficientDataError{
		ItemID:       itemID,
		QuestionType: order[0],
		Reason:       "every generated question matches a flagged one",
	}
}

// persist stores q with a fresh statistics row. When a question with the same
// fingerprint already exists, that question is returned and nothing is written.
func (s *selectorServiceImpl) persist(ctx context.Context, q *domain.Question) (*domain.Question, error) {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx store.Stores) error {
		if err := tx.Questions.Create(ctx, q); err != nil {
			return err
		}
		return tx.Statistics.Create(ctx, domain.NewQuestionStatistics(q.ID, s.now()))
	})
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, store.ErrQuestionFingerprintExists) {
		return nil, err
	}
	existing, err := s.stores.Questions.GetByFingerprint(ctx, q.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing question: %w", err)
	}
	return existing, nil
}

func (s *selectorServiceImpl) isFlagged(ctx context.Context, questionID uuid.UUID) (bool, error) {
	stats, err := s.stores.Statistics.Get(ctx, questionID)
	if err != nil {
		if errors.Is(err, store.ErrQuestionStatisticsNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load question statistics: %w", err)
	}
	return stats.NeedsReview, nil
}

func withoutType(order []domain.QuestionType, qt domain.QuestionType) []domain.QuestionType {
	out := order[:0]
	for _, t := range order {
		if t != qt {
			out = append(out, t)
		}
	}
	return out
}

// NextVerification implements SelectorService.NextVerification.
func (s *selectorServiceImpl) NextVerification(
	ctx context.Context,
	learnerID uuid.UUID,
	session *Session,
) (*Verification, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if session == nil {
		session = NewSession()
	}
	skipped := session.Excluded()
	dueBefore := domain.EndOfDay(s.now())

	for {
		cards, err := s.stores.Cards.ListDue(ctx, learnerID, dueBefore, store.DueFilter{
			ExcludeItemIDs: skipped,
			Limit:          s.config.DueBatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list due cards: %w", err)
		}
		if len(cards) == 0 {
			return nil, ErrNoCardsDue
		}

		for _, card := range cards {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			q, err := s.GetNextQuestion(ctx, card.ItemID)
			if err != nil {
				log.Warn("skipping due card",
					slog.String("error", err.Error()),
					slog.String("learner_id", learnerID.String()),
					slog.String("item_id", card.ItemID.String()))
				skipped = append(skipped, card.ItemID)
				continue
			}
			if card.IsLeech {
				session.MarkShown(card.ItemID)
			}
			return &Verification{Card: card, Question: q}, nil
		}
	}
}
