package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/stretchr/testify/mock"
)

// TestifyMockLexicalStore is a mock of store.LexicalStore for use with testify/mock
type TestifyMockLexicalStore struct {
	mock.Mock
}

var _ store.LexicalStore = (*TestifyMockLexicalStore)(nil)

// GetItem is a mock implementation of store.LexicalStore.GetItem
func (m *TestifyMockLexicalStore) GetItem(ctx context.Context, itemID uuid.UUID) (*domain.LexicalItem, error) {
	args := m.Called(ctx, itemID)
	if item, ok := args.Get(0).(*domain.LexicalItem); ok {
		return item, args.Error(1)
	}
	return nil, args.Error(1)
}
