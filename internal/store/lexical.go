package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// LexicalStore is the read-only source of lexical items. The engine never
// writes to it.
type LexicalStore interface {
	// GetItem returns an item with its relations.
	// Returns ErrLexicalItemNotFound if it does not exist.
	GetItem(ctx context.Context, itemID uuid.UUID) (*domain.LexicalItem, error)
}
