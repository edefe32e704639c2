package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNilRecalculator  = errors.New("recalculator cannot be nil")
	ErrEmptyQuestionID  = errors.New("question ID cannot be empty")
	ErrMalformedEventID = errors.New("event carries an empty question ID")
)

// Recalculator recomputes the derived metrics of one question's statistics.
type Recalculator interface {
	RecalculateStatistics(ctx context.Context, questionID uuid.UUID) error
}

// RecalculatorFunc adapts a function to the Recalculator interface.
type RecalculatorFunc func(ctx context.Context, questionID uuid.UUID) error

// RecalculateStatistics implements Recalculator.
func (f RecalculatorFunc) RecalculateStatistics(ctx context.Context, questionID uuid.UUID) error {
	return f(ctx, questionID)
}

// statsRecalculationPayload represents the serialized data stored in the task
type statsRecalculationPayload struct {
	QuestionID uuid.UUID `json:"question_id"`
}

// StatsRecalculationTask implements the Task interface for recomputing the
// metrics of one question statistics row.
type StatsRecalculationTask struct {
	id           uuid.UUID
	questionID   uuid.UUID
	recalculator Recalculator
	logger       *slog.Logger

	mu     sync.Mutex
	status TaskStatus
}

// NewStatsRecalculationTask creates a new recalculation task.
func NewStatsRecalculationTask(
	questionID uuid.UUID,
	recalculator Recalculator,
	logger *slog.Logger,
) (*StatsRecalculationTask, error) {
	if recalculator == nil {
		return nil, ErrNilRecalculator
	}
	if questionID == uuid.Nil {
		return nil, ErrEmptyQuestionID
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &StatsRecalculationTask{
		id:           uuid.New(),
		questionID:   questionID,
		recalculator: recalculator,
		logger: logger.With(
			slog.String("task_type", TaskTypeStatsRecalculation),
			slog.String("question_id", questionID.String())),
		status: TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *StatsRecalculationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *StatsRecalculationTask) Type() string {
	return TaskTypeStatsRecalculation
}

// QuestionID returns the question whose statistics are recomputed.
func (t *StatsRecalculationTask) QuestionID() uuid.UUID {
	return t.questionID
}

// Payload returns the task data as a byte slice
func (t *StatsRecalculationTask) Payload() []byte {
	data, err := json.Marshal(statsRecalculationPayload{QuestionID: t.questionID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", slog.String("error", err.Error()))
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *StatsRecalculationTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *StatsRecalculationTask) setStatus(status TaskStatus) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

// Execute runs the recalculation.
func (t *StatsRecalculationTask) Execute(ctx context.Context) error {
	t.setStatus(TaskStatusProcessing)

	if err := ctx.Err(); err != nil {
		t.setStatus(TaskStatusFailed)
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	if err := t.recalculator.RecalculateStatistics(ctx, t.questionID); err != nil {
		t.setStatus(TaskStatusFailed)
		t.logger.Error("failed to recalculate question statistics", slog.String("error", err.Error()))
		return fmt.Errorf("failed to recalculate question statistics: %w", err)
	}

	t.setStatus(TaskStatusCompleted)
	t.logger.Debug("question statistics recalculated")
	return nil
}

// StatsRecalculationTaskFactory creates StatsRecalculationTask instances
type StatsRecalculationTaskFactory struct {
	recalculator Recalculator
	logger       *slog.Logger
}

// NewStatsRecalculationTaskFactory creates a new factory for recalculation tasks.
func NewStatsRecalculationTaskFactory(recalculator Recalculator, logger *slog.Logger) *StatsRecalculationTaskFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsRecalculationTaskFactory{
		recalculator: recalculator,
		logger:       logger.With(slog.String("component", "stats_recalculation_task_factory")),
	}
}

// CreateTask creates a new StatsRecalculationTask for the specified question.
func (f *StatsRecalculationTaskFactory) CreateTask(questionID uuid.UUID) (Task, error) {
	return NewStatsRecalculationTask(questionID, f.recalculator, f.logger)
}
