package lexicon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/store"
)

// MemoryStore serves lexical items from memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]domain.LexicalItem
}

// Compile-time check to ensure MemoryStore implements store.LexicalStore
var _ store.LexicalStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding the given items.
func NewMemoryStore(items ...*domain.LexicalItem) *MemoryStore {
	s := &MemoryStore{items: make(map[uuid.UUID]domain.LexicalItem, len(items))}
	for _, item := range items {
		s.Put(item)
	}
	return s
}

// LoadMemoryStore reads a JSON array of lexical items from path.
func LoadMemoryStore(path string) (*MemoryStore, error) {
	items, err := ReadItems(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(items...), nil
}

// ReadItems parses a JSON array of lexical items. Every entry needs an id.
func ReadItems(path string) ([]*domain.LexicalItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var items []*domain.LexicalItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file %s: %w", path, err)
	}

	for i, item := range items {
		if item == nil || item.ID == uuid.Nil {
			return nil, fmt.Errorf("lexicon file %s: entry %d has no id", path, i)
		}
	}
	return items, nil
}

// Put adds or replaces an item.
func (s *MemoryStore) Put(item *domain.LexicalItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = copyItem(*item)
}

// Len returns the number of items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// GetItem implements store.LexicalStore.
func (s *MemoryStore) GetItem(ctx context.Context, itemID uuid.UUID) (*domain.LexicalItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	item, ok := s.items[itemID]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrLexicalItemNotFound
	}
	out := copyItem(item)
	return &out, nil
}

func copyItem(item domain.LexicalItem) domain.LexicalItem {
	item.Relations = append([]domain.Relation(nil), item.Relations...)
	return item
}
