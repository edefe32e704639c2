package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/phrazzld/scry-verify/internal/config"
	"github.com/phrazzld/scry-verify/internal/redact"
	"github.com/phrazzld/scry-verify/internal/service"
)

// sweeper periodically hands flagged statistics rows to the task runner.
// Rows that do not fit in the queue stay flagged and are picked up by a
// later run.
type sweeper struct {
	quality   service.QualityService
	interval  time.Duration
	batchSize int
	scheduler *gocron.Scheduler
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newSweeper(quality service.QualityService, cfg config.SweepConfig, logger *slog.Logger) *sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &sweeper{
		quality:   quality,
		interval:  time.Duration(cfg.IntervalSeconds) * time.Second,
		batchSize: cfg.BatchSize,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger.With(slog.String("component", "statistics_sweep")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the sweep. The first run happens immediately and runs
// never overlap.
func (s *sweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.runOnce)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("statistics sweep scheduled",
		slog.Duration("interval", s.interval),
		slog.Int("batch_size", s.batchSize))
	return nil
}

// Stop cancels a running sweep and stops the scheduler.
func (s *sweeper) Stop() {
	s.cancel()
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}

func (s *sweeper) runOnce() {
	submitted, err := s.quality.EnqueueFlagged(s.ctx, s.batchSize)
	if err != nil {
		s.logger.Error("statistics sweep failed",
			slog.String("error", redact.Error(err)),
			slog.Int("submitted", submitted))
		return
	}
	if submitted > 0 {
		s.logger.Info("statistics sweep submitted recalculations",
			slog.Int("submitted", submitted))
	}
}
