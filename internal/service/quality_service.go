package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/domain/quality"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/phrazzld/scry-verify/internal/task"
	"github.com/sethvargo/go-retry"
)

// RecalculationOutcome describes how a recalculation ended.
type RecalculationOutcome string

// Recalculation outcomes
const (
	// OutcomeRecomputed means the derived metrics were written.
	OutcomeRecomputed RecalculationOutcome = "recomputed"
	// OutcomeSkipped means the row no longer needed recalculation.
	OutcomeSkipped RecalculationOutcome = "skipped"
	// OutcomeStale means concurrent writers kept moving the row and the
	// retry budget ran out. The row stays flagged for the next sweep.
	OutcomeStale RecalculationOutcome = "stale"
)

// RecalculationResult reports the outcome of one recalculation.
type RecalculationResult struct {
	QuestionID uuid.UUID
	Outcome    RecalculationOutcome
	Attempts   int
}

// SweepSummary counts the outcomes of a synchronous sweep.
type SweepSummary struct {
	Recomputed int
	Skipped    int
	Stale      int
	Failed     int
}

// QualityConfig holds the recomputation thresholds and the optimistic retry budget.
type QualityConfig struct {
	Params     quality.Params
	MaxRetries int
	RetryBase  time.Duration
}

// QualityService runs the batch side of the statistics aggregator.
type QualityService interface {
	// GetStatistics returns the statistics row of a question.
	// Returns store.ErrQuestionStatisticsNotFound if the question has none.
	GetStatistics(ctx context.Context, questionID uuid.UUID) (*domain.QuestionStatistics, error)

	// EnqueueFlagged submits one recalculation task per row marked
	// needs_recalculation, up to limit, and returns the number submitted.
	EnqueueFlagged(ctx context.Context, limit int) (int, error)

	// RecalculateFlagged recalculates up to limit flagged rows in the calling
	// goroutine.
	RecalculateFlagged(ctx context.Context, limit int) (SweepSummary, error)

	// Recalculate re-derives the metrics of one row with a version-checked
	// write, re-reading and retrying when a concurrent writer wins.
	// Stale conflicts are reported through the result, never as an error.
	Recalculate(ctx context.Context, questionID uuid.UUID) (*RecalculationResult, error)

	// RecalculateStatistics adapts Recalculate to task.Recalculator.
	RecalculateStatistics(ctx context.Context, questionID uuid.UUID) error
}

type qualityServiceImpl struct {
	stats     store.QuestionStatisticsStore
	submitter task.Submitter
	factory   task.TaskFactory
	config    QualityConfig
	now       func() time.Time
	logger    *slog.Logger
}

// Ensure qualityServiceImpl implements QualityService and task.Recalculator
var (
	_ QualityService    = (*qualityServiceImpl)(nil)
	_ task.Recalculator = (*qualityServiceImpl)(nil)
)

// NewQualityService creates a new quality service. submitter may be nil when
// only the synchronous paths are used; EnqueueFlagged then fails.
// It will panic if the statistics store is nil.
func NewQualityService(
	stats store.QuestionStatisticsStore,
	submitter task.Submitter,
	config QualityConfig,
	logger *slog.Logger,
) QualityService {
	if stats == nil {
		panic("stats store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBase <= 0 {
		config.RetryBase = 10 * time.Millisecond
	}

	s := &qualityServiceImpl{
		stats:     stats,
		submitter: submitter,
		config:    config,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "quality_service")),
	}
	s.factory = task.NewStatsRecalculationTaskFactory(s, logger)
	return s
}

// GetStatistics implements QualityService.GetStatistics.
func (s *qualityServiceImpl) GetStatistics(
	ctx context.Context,
	questionID uuid.UUID,
) (*domain.QuestionStatistics, error) {
	stats, err := s.stats.Get(ctx, questionID)
	if err != nil {
		if errors.Is(err, store.ErrQuestionStatisticsNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get question statistics: %w", err)
	}
	return stats, nil
}

// EnqueueFlagged implements QualityService.EnqueueFlagged.
func (s *qualityServiceImpl) EnqueueFlagged(ctx context.Context, limit int) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if s.submitter == nil {
		return 0, errors.New("quality service has no task submitter")
	}

	ids, err := s.stats.ListNeedingRecalculation(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list flagged statistics: %w", err)
	}

	submitted := 0
	for _, id := range ids {
		t, err := s.factory.CreateTask(id)
		if err != nil {
			return submitted, fmt.Errorf("failed to create recalculation task: %w", err)
		}
		if err := s.submitter.Submit(ctx, t); err != nil {
			// The row stays flagged; the next sweep picks it up.
			log.Warn("recalculation backlog full, deferring to next sweep",
				slog.String("error", err.Error()),
				slog.Int("submitted", submitted),
				slog.Int("flagged", len(ids)))
			return submitted, nil
		}
		submitted++
	}

	log.Debug("enqueued flagged statistics",
		slog.Int("count", submitted))
	return submitted, nil
}

// RecalculateFlagged implements QualityService.RecalculateFlagged.
func (s *qualityServiceImpl) RecalculateFlagged(ctx context.Context, limit int) (SweepSummary, error) {
	var summary SweepSummary

	ids, err := s.stats.ListNeedingRecalculation(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("failed to list flagged statistics: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.Recalculate(ctx, id)
		if err != nil {
			summary.Failed++
			continue
		}
		switch result.Outcome {
		case OutcomeRecomputed:
			summary.Recomputed++
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeStale:
			summary.Stale++
		}
	}
	return summary, nil
}

// Recalculate implements QualityService.Recalculate.
func (s *qualityServiceImpl) Recalculate(
	ctx context.Context,
	questionID uuid.UUID,
) (*RecalculationResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("question_id", questionID.String()))

	result := &RecalculationResult{QuestionID: questionID}
	backoff := retry.WithMaxRetries(uint64(s.config.MaxRetries), retry.NewExponential(s.config.RetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result.Attempts++

		stats, err := s.stats.Get(ctx, questionID)
		if err != nil {
			return err
		}
		if !stats.NeedsRecalculation {
			result.Outcome = OutcomeSkipped
			return nil
		}

		if err := quality.Recompute(stats, s.config.Params, s.now()); err != nil {
			return err
		}
		if err := s.stats.Save(ctx, stats); err != nil {
			if errors.Is(err, store.ErrStaleWrite) {
				log.Debug("statistics moved during recalculation, retrying",
					slog.Int("attempt", result.Attempts))
				return retry.RetryableError(err)
			}
			return err
		}

		result.Outcome = OutcomeRecomputed
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			log.Warn("recalculation gave up after repeated conflicts",
				slog.Int("attempts", result.Attempts))
			result.Outcome = OutcomeStale
			return result, nil
		}
		log.Error("failed to recalculate question statistics",
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to recalculate question statistics: %w", err)
	}

	log.Debug("recalculation finished",
		slog.String("outcome", string(result.Outcome)),
		slog.Int("attempts", result.Attempts))
	return result, nil
}

// RecalculateStatistics implements task.Recalculator.
func (s *qualityServiceImpl) RecalculateStatistics(ctx context.Context, questionID uuid.UUID) error {
	_, err := s.Recalculate(ctx, questionID)
	return err
}
