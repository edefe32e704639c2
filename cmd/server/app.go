package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-verify/internal/config"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/domain/srs"
	"github.com/phrazzld/scry-verify/internal/events"
	"github.com/phrazzld/scry-verify/internal/generation"
	"github.com/phrazzld/scry-verify/internal/redact"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/service/auth"
	"github.com/phrazzld/scry-verify/internal/service/verification"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/phrazzld/scry-verify/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Storage
	backend       *backend
	lexicon       store.LexicalStore
	lexiconCloser io.Closer

	// Service interfaces
	jwtService    auth.JWTService
	srsService    srs.Service
	assignments   service.AssignmentService
	selector      service.SelectorService
	quality       service.QualityService
	verifications verification.Service

	// Event system
	eventEmitter *events.InMemoryEventEmitter

	// Background recalculation
	taskRunner *task.Runner
	sweeper    *sweeper
}

// newApplication creates a new application instance with all dependencies initialized.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.backend, err = setupBackend(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	app.lexicon, app.lexiconCloser, err = setupLexicon(cfg.Lexicon, logger)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	stores, tx := app.backend.stores, app.backend.tx

	app.srsService = srs.NewService(
		srs.NewRuleBasedParams(cfg.SRS.RuleBased),
		srs.NewModelBasedParams(cfg.SRS.ModelBased),
	)

	app.assignments = service.NewAssignmentService(
		stores, tx, app.srsService, cfg.Assignment.MigrationThreshold, logger)

	distractors := generation.NewDistractorSelector(app.lexicon, generation.Params{
		DistractorCount:        cfg.Generation.DistractorCount,
		MaxSynonymDistractors:  cfg.Generation.MaxSynonymDistractors,
		NearDuplicateThreshold: cfg.Generation.NearDuplicateThreshold,
	}, logger)
	assembler := generation.NewAssembler(app.lexicon, distractors, logger)

	app.selector = service.NewSelectorService(stores, tx, assembler, service.SelectorConfig{
		QualityFloor:  cfg.Quality.QualityFloor,
		DueBatchSize:  cfg.Selector.DueBatchSize,
		QuestionOrder: questionOrder(cfg.Selector.QuestionOrder),
	}, logger)

	app.taskRunner = task.NewRunner(task.RunnerConfig{
		WorkerCount: cfg.Sweep.WorkerCount,
		QueueSize:   cfg.Sweep.QueueSize,
	}, logger)
	app.taskRunner.SetErrorHandler(func(t task.Task, err error) {
		logger.Warn("recalculation task failed, the sweep will retry",
			slog.String("task_id", t.ID().String()),
			slog.String("error", redact.Error(err)))
	})

	app.quality = service.NewQualityService(stores.Statistics, app.taskRunner, service.QualityConfig{
		Params:     cfg.Quality.Thresholds,
		MaxRetries: cfg.Sweep.MaxRetries,
		RetryBase:  time.Duration(cfg.Sweep.RetryBaseMs) * time.Millisecond,
	}, logger)

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(task.NewRecalculationEventHandler(
		task.NewStatsRecalculationTaskFactory(app.quality, logger),
		app.taskRunner,
		logger,
	))

	app.verifications = verification.NewService(
		stores,
		tx,
		app.assignments,
		app.srsService,
		srs.NewRatingPolicy(cfg.SRS.RatingPolicy),
		app.eventEmitter,
		verification.Config{
			QualityParams:   cfg.Quality.Thresholds,
			RecomputeInline: cfg.Quality.RecomputeInline,
		},
		logger,
	)

	app.sweeper = newSweeper(app.quality, cfg.Sweep, logger)

	logger.Info("Application initialized successfully")
	return app, nil
}

// questionOrder converts configured names to question types. Values were
// validated when the configuration was loaded.
func questionOrder(names []string) []domain.QuestionType {
	order := make([]domain.QuestionType, 0, len(names))
	for _, name := range names {
		order = append(order, domain.QuestionType(name))
	}
	return order
}

// Run starts the background workers and the HTTP server, and blocks until
// ctx is cancelled or the server fails.
func (app *application) Run(ctx context.Context) error {
	app.taskRunner.Start()

	if app.config.Sweep.Enabled {
		if err := app.sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start statistics sweep: %w", err)
		}
	}

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// recalculateOnce recomputes every flagged statistics row in the calling
// goroutine, batch by batch, until none remain or a batch makes no progress.
func (app *application) recalculateOnce(ctx context.Context) error {
	var total service.SweepSummary
	for {
		summary, err := app.quality.RecalculateFlagged(ctx, app.config.Sweep.BatchSize)
		if err != nil {
			return fmt.Errorf("recalculation failed: %w", err)
		}
		total.Recomputed += summary.Recomputed
		total.Skipped += summary.Skipped
		total.Stale += summary.Stale
		total.Failed += summary.Failed

		if summary.Recomputed < app.config.Sweep.BatchSize {
			break
		}
	}

	app.logger.Info("Recalculation finished",
		"recomputed", total.Recomputed,
		"skipped", total.Skipped,
		"stale", total.Stale,
		"failed", total.Failed)
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}

	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.lexiconCloser != nil {
		if err := app.lexiconCloser.Close(); err != nil {
			app.logger.Error("Error closing lexicon snapshot", "error", err)
		}
	}

	if app.backend != nil {
		if err := app.backend.close(); err != nil {
			app.logger.Error("Error closing database connection", "error", redact.Error(err))
		}
	}

	app.logger.Info("Application shutdown completed")
}
