package store

import "context"

// Stores groups the engine's writable stores. A Transactor hands callers a
// Stores bound to one transaction.
type Stores struct {
	Cards       CardStateStore
	Assignments AssignmentStore
	Questions   QuestionStore
	Statistics  QuestionStatisticsStore
	Attempts    AttemptStore
}

// StoresFn is a unit of work run against transaction-bound stores.
type StoresFn func(ctx context.Context, tx Stores) error

// Transactor runs a unit of work atomically. If fn returns an error every
// write it made is rolled back; otherwise all of them are committed.
type Transactor interface {
	WithinTx(ctx context.Context, fn StoresFn) error
}
