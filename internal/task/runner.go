package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-verify/internal/platform/logger"
)

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 2,
		QueueSize:   100,
	}
}

// Runner couples a TaskQueue with a WorkerPool.
//
// Tasks are not persisted. Recalculation work is rediscovered from the
// needs_recalculation flag on every sweep, so a task lost on shutdown or on
// a full queue is picked up again later.
type Runner struct {
	queue  *TaskQueue
	pool   *WorkerPool
	logger *slog.Logger
}

// Ensure Runner implements Submitter
var _ Submitter = (*Runner)(nil)

// NewRunner creates a runner. If logger is nil, a default logger will be used.
func NewRunner(config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRunnerConfig().QueueSize
	}
	queue := NewTaskQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)
	return &Runner{
		queue:  queue,
		pool:   pool,
		logger: logger.With(slog.String("component", "task_runner")),
	}
}

// SetErrorHandler sets the handler called for failed tasks. It must be
// called before Start.
func (r *Runner) SetErrorHandler(handler func(task Task, err error)) {
	r.pool.SetErrorHandler(handler)
}

// Start begins processing tasks.
func (r *Runner) Start() {
	r.pool.Start()
}

// Stop closes the queue and waits for the workers. Buffered tasks that no
// worker picked up are dropped.
func (r *Runner) Stop() {
	r.queue.Close()
	r.pool.Stop()
}

// Submit enqueues a task without blocking.
func (r *Runner) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.queue.Enqueue(task); err != nil {
		logger.FromContextOrDefault(ctx, r.logger).Warn("failed to submit task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID().String()),
			slog.String("task_type", task.Type()))
		return fmt.Errorf("failed to submit task: %w", err)
	}
	return nil
}

// Pending returns the number of queued tasks.
func (r *Runner) Pending() int {
	return r.queue.Len()
}
