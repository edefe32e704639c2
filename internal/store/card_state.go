package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// DueFilter narrows a due-card listing.
type DueFilter struct {
	// ExcludeItemIDs removes specific items, typically leeches already shown
	// in the current session.
	ExcludeItemIDs []uuid.UUID

	// ExcludeLeeches removes every card carrying the leech flag.
	ExcludeLeeches bool

	// Limit caps the number of rows; zero means no limit.
	Limit int
}

// CardStateStore defines the interface for card state persistence.
// Card states are never deleted.
type CardStateStore interface {
	// Create saves a new card state.
	// Returns ErrCardStateExists if the learner already has a card for the item.
	Create(ctx context.Context, card *domain.CardState) error

	// Get retrieves the card state for a learner and item.
	// Returns ErrCardStateNotFound if it does not exist.
	// NOTE: This method does NOT provide any row locking.
	Get(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error)

	// GetForUpdate retrieves the card state with a row-level lock. It must be
	// called within a transaction.
	// Returns ErrCardStateNotFound if it does not exist.
	GetForUpdate(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error)

	// Update replaces the mutable fields of an existing card state.
	// Returns ErrCardStateNotFound if it does not exist.
	Update(ctx context.Context, card *domain.CardState) error

	// ListDue returns the learner's cards due before dueBefore, oldest due first.
	ListDue(
		ctx context.Context,
		learnerID uuid.UUID,
		dueBefore time.Time,
		filter DueFilter,
	) ([]*domain.CardState, error)
}
