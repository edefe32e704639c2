package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/scry-verify/internal/store"
)

// NewStores binds every PostgreSQL store to db, which may be a pool or a
// transaction.
func NewStores(db store.DBTX, logger *slog.Logger) store.Stores {
	return store.Stores{
		Cards:       NewPostgresCardStateStore(db, logger),
		Assignments: NewPostgresAssignmentStore(db, logger),
		Questions:   NewPostgresQuestionStore(db, logger),
		Statistics:  NewPostgresQuestionStatisticsStore(db, logger),
		Attempts:    NewPostgresAttemptStore(db, logger),
	}
}

// Transactor runs store work inside one database transaction.
type Transactor struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure Transactor implements store.Transactor interface
var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates a transactor over a connection pool.
func NewTransactor(db *sql.DB, logger *slog.Logger) *Transactor {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactor{db: db, logger: logger}
}

// WithinTx implements store.Transactor. fn receives stores bound to the
// transaction; returning an error rolls it back.
func (t *Transactor) WithinTx(ctx context.Context, fn store.StoresFn) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, NewStores(tx, t.logger))
	})
}
