package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/events"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
)

// TaskFactory creates recalculation tasks.
type TaskFactory interface {
	CreateTask(questionID uuid.UUID) (Task, error)
}

// RecalculationEventHandler implements events.EventHandler. It turns
// attempt.recorded events whose statistics row still needs recomputation into
// recalculation tasks, so metrics catch up without waiting for the next sweep.
type RecalculationEventHandler struct {
	factory   TaskFactory
	submitter Submitter
	logger    *slog.Logger
}

// Ensure RecalculationEventHandler implements events.EventHandler
var _ events.EventHandler = (*RecalculationEventHandler)(nil)

// NewRecalculationEventHandler creates a new handler. If logger is nil, a
// default logger will be used.
func NewRecalculationEventHandler(
	factory TaskFactory,
	submitter Submitter,
	logger *slog.Logger,
) *RecalculationEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecalculationEventHandler{
		factory:   factory,
		submitter: submitter,
		logger:    logger.With(slog.String("component", "recalculation_event_handler")),
	}
}

// HandleEvent submits a recalculation task for attempt.recorded events that
// left the statistics row flagged. Other events are ignored.
func (h *RecalculationEventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	log := logger.FromContextOrDefault(ctx, h.logger)

	if event.Type != events.TypeAttemptRecorded {
		return nil
	}

	var payload events.AttemptRecorded
	if err := event.UnmarshalPayload(&payload); err != nil {
		log.Error("failed to unmarshal payload",
			slog.String("error", err.Error()),
			slog.String("event_id", event.ID.String()))
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if !payload.NeedsRecalculation {
		return nil
	}
	if payload.QuestionID == uuid.Nil {
		return ErrMalformedEventID
	}

	task, err := h.factory.CreateTask(payload.QuestionID)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("question_id", payload.QuestionID.String()),
			slog.String("event_id", event.ID.String()))
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.submitter.Submit(ctx, task); err != nil {
		log.Warn("failed to submit recalculation task, the sweep will retry",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID().String()),
			slog.String("question_id", payload.QuestionID.String()))
		return fmt.Errorf("failed to submit task: %w", err)
	}

	log.Debug("recalculation task submitted",
		slog.String("task_id", task.ID().String()),
		slog.String("question_id", payload.QuestionID.String()),
		slog.String("event_id", event.ID.String()))
	return nil
}
