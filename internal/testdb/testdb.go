//go:build integration

// Package testdb provides PostgreSQL helpers for integration tests.
//
// Tests run inside a transaction that is rolled back when they finish, so
// they can run in parallel against one migrated database:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        stores := postgres.NewStores(tx, nil)
//	        // ...
//	    })
//	}
//
// Open skips the test when no database URL is configured.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/phrazzld/scry-verify/internal/platform/postgres"
	"github.com/phrazzld/scry-verify/internal/redact"
)

// Environment variables checked for a database URL, in order.
const (
	EnvTestDatabaseURL = "SCRY_TEST_DB_URL"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvScryDatabaseURL = "SCRY_DATABASE_URL"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// DatabaseURL returns the first configured database URL, or "".
func DatabaseURL() string {
	for _, key := range []string{EnvTestDatabaseURL, EnvDatabaseURL, EnvScryDatabaseURL} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// Open connects to the test database, applies migrations once per process
// and closes the pool when the test ends. It skips the test when no URL is
// configured.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := DatabaseURL()
	if url == "" {
		t.Skipf("%s not set, skipping integration test", EnvTestDatabaseURL)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Fatalf("failed to open test database: %s", redact.Error(err))
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to reach test database: %s", redact.Error(err))
	}

	migrateOnce.Do(func() {
		migrateErr = postgres.RunMigrations(ctx, db, "up")
	})
	if migrateErr != nil {
		t.Fatalf("failed to migrate test database: %s", redact.Error(migrateErr))
	}
	return db
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %s", redact.Error(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}
