package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/domain/quality"
	"github.com/phrazzld/scry-verify/internal/domain/srs"
	"github.com/phrazzld/scry-verify/internal/events"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/store"
)

// Config tunes attempt processing.
type Config struct {
	// QualityParams are the statistics recomputation thresholds.
	QualityParams quality.Params
	// RecomputeInline derives the statistics inside the attempt transaction
	// once enough attempts exist. Otherwise the batch sweep does it.
	RecomputeInline bool
}

// Option configures the verification service.
type Option func(*serviceImpl)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	stores      store.Stores
	tx          store.Transactor
	assignments service.AssignmentService
	srs         srs.Service
	policy      *srs.RatingPolicy
	emitter     events.EventEmitter
	config      Config
	now         func() time.Time
	logger      *slog.Logger
}

// Ensure serviceImpl implements Service interface
var _ Service = (*serviceImpl)(nil)

// NewService creates a new verification service.
// A nil emitter discards events. It will panic if any other required
// dependency is nil.
func NewService(
	stores store.Stores,
	tx store.Transactor,
	assignments service.AssignmentService,
	srsService srs.Service,
	policy *srs.RatingPolicy,
	emitter events.EventEmitter,
	config Config,
	logger *slog.Logger,
	opts ...Option,
) Service {
	if stores.Cards == nil {
		panic("stores cannot be nil")
	}
	if tx == nil {
		panic("transactor cannot be nil")
	}
	if assignments == nil {
		panic("assignments cannot be nil")
	}
	if srsService == nil {
		panic("srsService cannot be nil")
	}
	if policy == nil {
		panic("policy cannot be nil")
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &serviceImpl{
		stores:      stores,
		tx:          tx,
		assignments: assignments,
		srs:         srsService,
		policy:      policy,
		emitter:     emitter,
		config:      config,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "verification_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartVerification implements Service.StartVerification.
func (s *serviceImpl) StartVerification(
	ctx context.Context,
	learnerID, itemID uuid.UUID,
) (*domain.CardState, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if learnerID == uuid.Nil || itemID == uuid.Nil {
		return nil, fmt.Errorf("%w: learner and item ids are required", ErrInvalidAttempt)
	}

	var card *domain.CardState
	start := func(ctx context.Context, tx store.Stores) error {
		assignment, err := s.assignments.EnsureAssignmentTx(ctx, tx, learnerID)
		if err != nil {
			return err
		}

		existing, err := tx.Cards.GetForUpdate(ctx, learnerID, itemID)
		switch {
		case err == nil:
			aligned, changed, err := s.assignments.AlignCard(existing, assignment)
			if err != nil {
				return err
			}
			if changed {
				if err := tx.Cards.Update(ctx, aligned); err != nil {
					return fmt.Errorf("failed to update aligned card: %w", err)
				}
				log.Info("card converted to learner's algorithm",
					slog.String("learner_id", learnerID.String()),
					slog.String("item_id", itemID.String()),
					slog.String("algorithm", string(aligned.AlgorithmType)))
			}
			card = aligned
			return nil
		case errors.Is(err, store.ErrCardStateNotFound):
		default:
			return fmt.Errorf("failed to get card: %w", err)
		}

		created, err := s.srs.NewCard(learnerID, itemID, assignment.Algorithm, s.now())
		if err != nil {
			return err
		}
		if err := tx.Cards.Create(ctx, created); err != nil {
			return err
		}
		log.Debug("card created",
			slog.String("learner_id", learnerID.String()),
			slog.String("item_id", itemID.String()),
			slog.String("algorithm", string(created.AlgorithmType)))
		card = created
		return nil
	}

	err := s.tx.WithinTx(ctx, start)
	if errors.Is(err, store.ErrCardStateExists) {
		// A concurrent start created the card first; the retry reads it.
		err = s.tx.WithinTx(ctx, start)
	}
	if err != nil {
		log.Error("failed to start verification",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()),
			slog.String("item_id", itemID.String()))
		return nil, NewStartVerificationError("failed to start verification", err)
	}
	return card, nil
}

// attemptOutcome carries what RecordAttempt needs after the commit.
type attemptOutcome struct {
	result      *AttemptResult
	prevMastery domain.MasteryLevel
	prevLeech   bool
}

// RecordAttempt implements Service.RecordAttempt.
func (s *serviceImpl) RecordAttempt(ctx context.Context, req AttemptRequest) (*AttemptResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if req.AttemptID == uuid.Nil {
		req.AttemptID = uuid.New()
	}

	log.Debug("recording attempt",
		slog.String("attempt_id", req.AttemptID.String()),
		slog.String("learner_id", req.LearnerID.String()),
		slog.String("question_id", req.QuestionID.String()))

	if !req.Context.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAttempt, domain.ErrInvalidAttemptContext)
	}

	var out attemptOutcome
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx store.Stores) error {
		var err error
		out, err = s.recordAttempt(ctx, tx, req)
		return err
	})
	if err != nil {
		// If the error is already one of our service errors, pass it through
		if errors.Is(err, ErrAttemptAlreadyRecorded) ||
			errors.Is(err, ErrQuestionNotFound) ||
			errors.Is(err, ErrInvalidAttempt) {
			log.Debug("attempt rejected",
				slog.String("attempt_id", req.AttemptID.String()),
				slog.String("reason", err.Error()))
			return nil, err
		}

		log.Error("failed to record attempt",
			slog.String("error", err.Error()),
			slog.String("attempt_id", req.AttemptID.String()),
			slog.String("learner_id", req.LearnerID.String()),
			slog.String("question_id", req.QuestionID.String()))
		return nil, NewRecordAttemptError("failed to record attempt", err)
	}

	s.emitAttemptEvents(ctx, out)

	card := out.result.Card
	log.Debug("attempt recorded",
		slog.String("attempt_id", req.AttemptID.String()),
		slog.Bool("correct", out.result.Correct),
		slog.Int("rating", int(out.result.Attempt.Rating)),
		slog.Int("interval", card.CurrentIntervalDays),
		slog.Time("due_at", card.DueAt))
	return out.result, nil
}

// recordAttempt is the transactional body of RecordAttempt. Rows are locked
// in a fixed order: assignment, card, statistics.
func (s *serviceImpl) recordAttempt(
	ctx context.Context,
	tx store.Stores,
	req AttemptRequest,
) (attemptOutcome, error) {
	now := s.now().UTC()

	assignment, err := s.lockAssignment(ctx, tx, req.LearnerID)
	if err != nil {
		return attemptOutcome{}, err
	}

	question, err := tx.Questions.Get(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, store.ErrQuestionNotFound) {
			return attemptOutcome{}, ErrQuestionNotFound
		}
		return attemptOutcome{}, fmt.Errorf("failed to get question: %w", err)
	}
	if req.SelectedOptionIndex < 0 || req.SelectedOptionIndex >= len(question.Options) {
		return attemptOutcome{}, fmt.Errorf("%w: %v", ErrInvalidAttempt, domain.ErrInvalidSelectedOption)
	}

	card, isNew, err := s.lockCard(ctx, tx, req.LearnerID, question.TargetItemID, assignment, now)
	if err != nil {
		return attemptOutcome{}, err
	}
	out := attemptOutcome{prevMastery: card.MasteryLevel, prevLeech: card.IsLeech}

	correct := question.IsCorrect(req.SelectedOptionIndex)
	record := &domain.AttemptRecord{
		ID:                  req.AttemptID,
		LearnerID:           req.LearnerID,
		QuestionID:          question.ID,
		TargetItemID:        question.TargetItemID,
		Correct:             correct,
		ResponseTimeMs:      req.ResponseTimeMs,
		SelectedOptionIndex: req.SelectedOptionIndex,
		AbilityEstimate:     req.AbilityEstimate,
		Context:             req.Context,
		AlgorithmType:       card.AlgorithmType,
		Rating:              s.policy.Rate(correct, req.ResponseTimeMs),
		CreatedAt:           now,
	}
	if err := record.Validate(); err != nil {
		return attemptOutcome{}, fmt.Errorf("%w: %v", ErrInvalidAttempt, err)
	}
	if err := tx.Attempts.Create(ctx, record); err != nil {
		if errors.Is(err, store.ErrAttemptExists) {
			return attemptOutcome{}, ErrAttemptAlreadyRecorded
		}
		return attemptOutcome{}, fmt.Errorf("failed to create attempt: %w", err)
	}

	stats, err := s.applyToStatistics(ctx, tx, question, record, now)
	if err != nil {
		return attemptOutcome{}, err
	}

	next, err := s.srs.Review(card, record.Rating, now)
	if err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to schedule card: %w", err)
	}
	if isNew {
		err = tx.Cards.Create(ctx, next)
	} else {
		err = tx.Cards.Update(ctx, next)
	}
	if err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to save card: %w", err)
	}

	s.assignments.CountAttempt(assignment, record.AlgorithmType)
	if err := tx.Assignments.Update(ctx, assignment); err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to update assignment: %w", err)
	}

	out.result = &AttemptResult{
		Correct:       correct,
		Explanation:   question.Explanation,
		Card:          next,
		QuestionStats: stats,
		Attempt:       record,
	}
	return out, nil
}

// lockAssignment locks the learner's assignment, creating it first for a
// learner whose first scheduling event is this attempt.
func (s *serviceImpl) lockAssignment(
	ctx context.Context,
	tx store.Stores,
	learnerID uuid.UUID,
) (*domain.AlgorithmAssignment, error) {
	assignment, err := tx.Assignments.GetForUpdate(ctx, learnerID)
	if err == nil {
		return assignment, nil
	}
	if !errors.Is(err, store.ErrAssignmentNotFound) {
		return nil, fmt.Errorf("failed to lock assignment: %w", err)
	}

	if _, err := s.assignments.EnsureAssignmentTx(ctx, tx, learnerID); err != nil {
		return nil, err
	}
	assignment, err = tx.Assignments.GetForUpdate(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock assignment: %w", err)
	}
	return assignment, nil
}

// lockCard locks the learner's card for the item and aligns it with the
// assignment. A learner answering before starting verification gets a new,
// not yet persisted card.
func (s *serviceImpl) lockCard(
	ctx context.Context,
	tx store.Stores,
	learnerID, itemID uuid.UUID,
	assignment *domain.AlgorithmAssignment,
	now time.Time,
) (*domain.CardState, bool, error) {
	card, err := tx.Cards.GetForUpdate(ctx, learnerID, itemID)
	if err != nil {
		if !errors.Is(err, store.ErrCardStateNotFound) {
			return nil, false, fmt.Errorf("failed to lock card: %w", err)
		}
		card, err = s.srs.NewCard(learnerID, itemID, assignment.Algorithm, now)
		if err != nil {
			return nil, false, err
		}
		return card, true, nil
	}

	aligned, _, err := s.assignments.AlignCard(card, assignment)
	if err != nil {
		return nil, false, err
	}
	return aligned, false, nil
}

// applyToStatistics runs the per-attempt phase of the aggregator and, when
// configured and enough attempts exist, the recomputation phase.
func (s *serviceImpl) applyToStatistics(
	ctx context.Context,
	tx store.Stores,
	question *domain.Question,
	record *domain.AttemptRecord,
	now time.Time,
) (*domain.QuestionStatistics, error) {
	stats, err := tx.Statistics.GetForUpdate(ctx, question.ID)
	created := false
	if err != nil {
		if !errors.Is(err, store.ErrQuestionStatisticsNotFound) {
			return nil, fmt.Errorf("failed to lock question statistics: %w", err)
		}
		stats = domain.NewQuestionStatistics(question.ID, now)
		if err := tx.Statistics.Create(ctx, stats); err != nil {
			return nil, fmt.Errorf("failed to create question statistics: %w", err)
		}
		created = true
	}

	selected := question.SelectedRelation(record.SelectedOptionIndex)
	if err := quality.ApplyAttempt(stats, record, selected, now); err != nil {
		return nil, err
	}
	if s.config.RecomputeInline && quality.Ready(stats, s.config.QualityParams) {
		if err := quality.Recompute(stats, s.config.QualityParams, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Statistics.Save(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to save question statistics (created=%t): %w", created, err)
	}
	return stats, nil
}

type pendingEvent struct {
	eventType string
	payload   any
}

// emitAttemptEvents publishes the committed attempt. Failures are logged;
// the attempt stays recorded.
func (s *serviceImpl) emitAttemptEvents(ctx context.Context, out attemptOutcome) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	r := out.result
	now := s.now()

	payloads := []pendingEvent{
		{events.TypeAttemptRecorded, events.AttemptRecorded{
			AttemptID:          r.Attempt.ID,
			LearnerID:          r.Attempt.LearnerID,
			QuestionID:         r.Attempt.QuestionID,
			ItemID:             r.Attempt.TargetItemID,
			Correct:            r.Correct,
			Rating:             r.Attempt.Rating,
			AlgorithmType:      r.Attempt.AlgorithmType,
			Context:            r.Attempt.Context,
			NeedsRecalculation: r.QuestionStats.NeedsRecalculation,
		}},
	}
	if r.Card.MasteryLevel != out.prevMastery {
		payloads = append(payloads, pendingEvent{events.TypeCardMasteryChanged, events.CardMasteryChanged{
			LearnerID: r.Card.LearnerID,
			ItemID:    r.Card.ItemID,
			From:      out.prevMastery,
			To:        r.Card.MasteryLevel,
		}})
	}
	if r.Card.IsLeech && !out.prevLeech {
		payloads = append(payloads, pendingEvent{events.TypeCardLeechFlagged, events.CardLeechFlagged{
			LearnerID:      r.Card.LearnerID,
			ItemID:         r.Card.ItemID,
			RecentFailures: r.Card.RecentFailures(),
		}})
	}

	for _, p := range payloads {
		event, err := events.NewEvent(p.eventType, p.payload, now)
		if err != nil {
			log.Error("failed to build event",
				slog.String("error", err.Error()),
				slog.String("event_type", p.eventType))
			continue
		}
		if err := s.emitter.EmitEvent(ctx, event); err != nil {
			log.Warn("event handler failed",
				slog.String("error", err.Error()),
				slog.String("event_type", p.eventType),
				slog.String("event_id", event.ID.String()))
		}
	}
}
