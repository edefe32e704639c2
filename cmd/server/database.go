package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/phrazzld/scry-verify/internal/config"
	"github.com/phrazzld/scry-verify/internal/platform/memory"
	"github.com/phrazzld/scry-verify/internal/platform/postgres"
	"github.com/phrazzld/scry-verify/internal/redact"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/sethvargo/go-retry"
)

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"

	pingAttempts = 5
	pingBackoff  = 200 * time.Millisecond
	pingTimeout  = 5 * time.Second
)

// backend is the learner state storage selected by configuration.
type backend struct {
	stores store.Stores
	tx     store.Transactor
	db     *sql.DB
}

// ping reports whether the backend can serve requests.
func (b *backend) ping(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.PingContext(ctx)
}

func (b *backend) close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// setupBackend opens the configured learner state storage.
func setupBackend(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*backend, error) {
	switch cfg.Driver {
	case driverMemory:
		log.Warn("Using in-memory learner storage; state is lost on shutdown")
		db := memory.NewDB(log)
		return &backend{
			stores: memory.NewStores(db),
			tx:     memory.NewTransactor(db),
		}, nil
	case driverPostgres:
		db, err := openPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &backend{
			stores: postgres.NewStores(db, log),
			tx:     postgres.NewTransactor(db, log),
			db:     db,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// openPostgres opens a pool and waits for the server to answer, retrying
// with exponential backoff while it starts up.
func openPostgres(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	backoff := retry.WithMaxRetries(pingAttempts-1, retry.NewExponential(pingBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn("Database not ready", slog.String("error", redact.Error(err)))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Database connection established")
	return db, nil
}
