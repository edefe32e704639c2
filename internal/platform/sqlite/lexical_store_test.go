package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSnapshot(t *testing.T, items ...*domain.LexicalItem) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexicon.db")

	db, err := Open(path, false)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, db))
	require.NoError(t, InsertItems(ctx, db, items))
	return path
}

func TestLexicalStore_GetItem(t *testing.T) {
	t.Parallel()
	brake := &domain.LexicalItem{
		ID:         uuid.New(),
		LexemeID:   uuid.New(),
		Word:       "brake",
		Definition: "a device for slowing a vehicle",
	}
	chance := uuid.New()
	target := &domain.LexicalItem{
		ID:              uuid.New(),
		LexemeID:        uuid.New(),
		Word:            "break",
		Definition:      "a sudden opportunity",
		ExampleSentence: "It was her big break.",
		Relations: []domain.Relation{
			{Type: domain.RelationConfusable, TargetItemID: brake.ID},
			{Type: domain.RelationSynonym, TargetItemID: chance},
		},
	}
	path := seedSnapshot(t, target, brake)

	db, err := Open(path, true)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := NewLexicalStore(db, nil)

	got, err := s.GetItem(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, target, got)

	got, err = s.GetItem(context.Background(), brake.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Relations)
	assert.Empty(t, got.ExampleSentence)

	_, err = s.GetItem(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrLexicalItemNotFound)
}

func TestInsertItems_Replaces(t *testing.T) {
	t.Parallel()
	item := &domain.LexicalItem{
		ID:         uuid.New(),
		LexemeID:   uuid.New(),
		Word:       "bolt",
		Definition: "a metal pin",
		Relations:  []domain.Relation{{Type: domain.RelationSynonym, TargetItemID: uuid.New()}},
	}
	path := seedSnapshot(t, item)

	db, err := Open(path, false)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	item.Definition = "a threaded metal pin"
	item.Relations = nil
	require.NoError(t, InsertItems(context.Background(), db, []*domain.LexicalItem{item}))

	got, err := NewLexicalStore(db, nil).GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, "a threaded metal pin", got.Definition)
	assert.Empty(t, got.Relations)
}

func TestOpen_ReadOnlyRejectsWrites(t *testing.T) {
	t.Parallel()
	path := seedSnapshot(t)

	db, err := Open(path, true)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`INSERT INTO lexical_items (id, lexeme_id, word) VALUES ('a', 'b', 'c')`)
	assert.Error(t, err)
}
