// Package memory provides an in-process implementation of the store
// interfaces. It backs the server when no database is configured and the
// service-level tests.
//
// All stores created from one DB share its state. Work run through
// Transactor.WithinTx sees a private copy of that state which replaces the
// shared one only when the callback succeeds, so a failed transaction leaves
// nothing behind. Transactions are serialized.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

type cardKey struct {
	learnerID uuid.UUID
	itemID    uuid.UUID
}

// state is the full contents of the database. Entries are never mutated in
// place; every write stores a fresh copy, so cloning only copies the maps.
type state struct {
	cards         map[cardKey]*domain.CardState
	assignments   map[uuid.UUID]*domain.AlgorithmAssignment
	questions     map[uuid.UUID]*domain.Question
	fingerprints  map[string]uuid.UUID
	statistics    map[uuid.UUID]*domain.QuestionStatistics
	attempts      map[uuid.UUID]*domain.AttemptRecord
	attemptOrder  []uuid.UUID
	questionOrder []uuid.UUID

	// undo restores caller-visible side effects when a transaction on this
	// state rolls back. Only transaction copies carry entries.
	undo []func()
}

func newState() *state {
	return &state{
		cards:        make(map[cardKey]*domain.CardState),
		assignments:  make(map[uuid.UUID]*domain.AlgorithmAssignment),
		questions:    make(map[uuid.UUID]*domain.Question),
		fingerprints: make(map[string]uuid.UUID),
		statistics:   make(map[uuid.UUID]*domain.QuestionStatistics),
		attempts:     make(map[uuid.UUID]*domain.AttemptRecord),
	}
}

func (s *state) clone() *state {
	out := &state{
		cards:         make(map[cardKey]*domain.CardState, len(s.cards)),
		assignments:   make(map[uuid.UUID]*domain.AlgorithmAssignment, len(s.assignments)),
		questions:     make(map[uuid.UUID]*domain.Question, len(s.questions)),
		fingerprints:  make(map[string]uuid.UUID, len(s.fingerprints)),
		statistics:    make(map[uuid.UUID]*domain.QuestionStatistics, len(s.statistics)),
		attempts:      make(map[uuid.UUID]*domain.AttemptRecord, len(s.attempts)),
		attemptOrder:  append([]uuid.UUID(nil), s.attemptOrder...),
		questionOrder: append([]uuid.UUID(nil), s.questionOrder...),
	}
	for k, v := range s.cards {
		out.cards[k] = v
	}
	for k, v := range s.assignments {
		out.assignments[k] = v
	}
	for k, v := range s.questions {
		out.questions[k] = v
	}
	for k, v := range s.fingerprints {
		out.fingerprints[k] = v
	}
	for k, v := range s.statistics {
		out.statistics[k] = v
	}
	for k, v := range s.attempts {
		out.attempts[k] = v
	}
	return out
}

// DB is an in-memory database.
type DB struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	state  *state
	logger *slog.Logger
}

// NewDB creates an empty database. If logger is nil, a default logger will be used.
func NewDB(logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		state:  newState(),
		logger: logger.With(slog.String("component", "memory_store")),
	}
}

// view runs fn against the shared state under a read lock.
func (db *DB) view(fn func(s *state) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.state)
}

// update runs fn against the shared state under the write lock. It waits for
// running transactions so their commit cannot discard the write.
func (db *DB) update(fn func(s *state) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.state)
}

// binding routes store calls either to the shared state or to the private
// state of a running transaction.
type binding struct {
	db *DB
	tx *state
}

func (b binding) view(fn func(s *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	return b.db.view(fn)
}

func (b binding) update(fn func(s *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	return b.db.update(fn)
}

// onRollback registers fn to run if the bound transaction rolls back.
func (b binding) onRollback(fn func()) {
	if b.tx != nil {
		b.tx.undo = append(b.tx.undo, fn)
	}
}

// NewStores returns stores operating directly on the shared state.
func NewStores(db *DB) store.Stores {
	return bindStores(binding{db: db})
}

func bindStores(b binding) store.Stores {
	return store.Stores{
		Cards:       &CardStateStore{b: b},
		Assignments: &AssignmentStore{b: b},
		Questions:   &QuestionStore{b: b},
		Statistics:  &QuestionStatisticsStore{b: b},
		Attempts:    &AttemptStore{b: b},
	}
}

// Transactor runs store work against a private copy of the state and
// publishes it on success.
type Transactor struct {
	db *DB
}

// Ensure Transactor implements store.Transactor interface
var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates a transactor for db.
func NewTransactor(db *DB) *Transactor {
	if db == nil {
		panic("db cannot be nil")
	}
	return &Transactor{db: db}
}

// WithinTx implements store.Transactor.
func (t *Transactor) WithinTx(ctx context.Context, fn store.StoresFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	t.db.mu.RLock()
	work := t.db.state.clone()
	t.db.mu.RUnlock()

	if err := fn(ctx, bindStores(binding{db: t.db, tx: work})); err != nil {
		work.rollback()
		logger.FromContextOrDefault(ctx, t.db.logger).Debug("rolled back memory transaction",
			slog.String("error", err.Error()))
		return err
	}
	if err := ctx.Err(); err != nil {
		work.rollback()
		return err
	}

	work.undo = nil
	t.db.mu.Lock()
	t.db.state = work
	t.db.mu.Unlock()
	return nil
}

func (s *state) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}
