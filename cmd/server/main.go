// Package main implements the entry point for the vocabulary verification
// server, which schedules learners' verification cards, serves multiple-choice
// questions and tracks question quality.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/config"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/platform/postgres"
	"github.com/phrazzld/scry-verify/internal/service/auth"
)

// options holds the command line flags.
type options struct {
	migrate         string
	recalculateOnce bool
	issueToken      string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&opts.migrate, "migrate", "",
		"run a migration command (up, up-by-one, down, reset, status, version) and exit")
	fs.BoolVar(&opts.recalculateOnce, "recalculate-once", false,
		"recalculate every flagged question statistics row once and exit")
	fs.StringVar(&opts.issueToken, "issue-token", "",
		"print a signed access token for the given learner id and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration and dispatches to the requested mode.
func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"lexicon_driver", cfg.Lexicon.Driver)

	switch {
	case opts.issueToken != "":
		return issueToken(ctx, cfg, opts.issueToken, out)
	case opts.migrate != "":
		return handleMigrations(ctx, cfg, log, opts.migrate)
	}

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	if opts.recalculateOnce {
		return app.recalculateOnce(ctx)
	}
	return app.Run(ctx)
}

// issueToken writes a signed access token for a learner. Tokens are normally
// minted by the account service; this exists for local runs.
func issueToken(ctx context.Context, cfg *config.Config, rawLearnerID string, out io.Writer) error {
	learnerID, err := uuid.Parse(rawLearnerID)
	if err != nil {
		return fmt.Errorf("invalid learner id %q: %w", rawLearnerID, err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	token, err := jwtService.GenerateToken(ctx, learnerID)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

// handleMigrations runs a goose command against the configured PostgreSQL
// database.
func handleMigrations(ctx context.Context, cfg *config.Config, log *slog.Logger, command string) error {
	if cfg.Database.Driver != driverPostgres {
		return fmt.Errorf("migrations require the postgres driver, got %q", cfg.Database.Driver)
	}

	db, err := openPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
		}
	}()

	log.Info("Executing migrations", "command", command)
	if err := postgres.RunMigrations(ctx, db, command); err != nil {
		return err
	}
	log.Info("Migrations completed", "command", command)
	return nil
}
