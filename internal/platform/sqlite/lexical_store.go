package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

// LexicalStore implements store.LexicalStore over a snapshot database.
type LexicalStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check to ensure LexicalStore implements store.LexicalStore
var _ store.LexicalStore = (*LexicalStore)(nil)

// NewLexicalStore creates a store over an open snapshot.
func NewLexicalStore(db *sql.DB, logger *slog.Logger) *LexicalStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LexicalStore{
		db:     db,
		logger: logger.With(slog.String("component", "sqlite_lexical_store")),
	}
}

// GetItem implements store.LexicalStore.
func (s *LexicalStore) GetItem(ctx context.Context, itemID uuid.UUID) (*domain.LexicalItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := sqlBuilder.
		Select("id", "lexeme_id", "word", "definition", "example_sentence").
		From("lexical_items").
		Where(squirrel.Eq{"id": itemID.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lexical item query: %w", err)
	}

	var (
		item         domain.LexicalItem
		id, lexemeID string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&id, &lexemeID, &item.Word, &item.Definition, &item.ExampleSentence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLexicalItemNotFound
		}
		log.Error("failed to read lexical item",
			slog.String("item_id", itemID.String()),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("lexical_item", "get", "query failed", err)
	}
	if item.ID, err = uuid.Parse(id); err != nil {
		return nil, store.NewStoreError("lexical_item", "get", "malformed id", err)
	}
	if item.LexemeID, err = uuid.Parse(lexemeID); err != nil {
		return nil, store.NewStoreError("lexical_item", "get", "malformed lexeme id", err)
	}

	if item.Relations, err = s.relations(ctx, itemID); err != nil {
		log.Error("failed to read lexical relations",
			slog.String("item_id", itemID.String()),
			slog.String("error", err.Error()))
		return nil, err
	}
	return &item, nil
}

func (s *LexicalStore) relations(ctx context.Context, itemID uuid.UUID) ([]domain.Relation, error) {
	query, args, err := sqlBuilder.
		Select("relation_type", "target_item_id").
		From("lexical_relations").
		Where(squirrel.Eq{"item_id": itemID.String()}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build relation query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("lexical_relation", "list", "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	var relations []domain.Relation
	for rows.Next() {
		var relType, target string
		if err := rows.Scan(&relType, &target); err != nil {
			return nil, store.NewStoreError("lexical_relation", "list", "scan failed", err)
		}
		targetID, err := uuid.Parse(target)
		if err != nil {
			return nil, store.NewStoreError("lexical_relation", "list", "malformed target id", err)
		}
		relations = append(relations, domain.Relation{
			Type:         domain.RelationType(relType),
			TargetItemID: targetID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("lexical_relation", "list", "iteration failed", err)
	}
	return relations, nil
}

// InsertItems writes items and their relations into a writable snapshot in
// one transaction, replacing existing rows with the same id.
func InsertItems(ctx context.Context, db *sql.DB, items []*domain.LexicalItem) error {
	return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		for _, item := range items {
			if err := insertItem(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertItem(ctx context.Context, tx *sql.Tx, item *domain.LexicalItem) error {
	del, args, err := sqlBuilder.Delete("lexical_relations").
		Where(squirrel.Eq{"item_id": item.ID.String()}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("clear relations for %s: %w", item.ID, err)
	}

	ins, args, err := sqlBuilder.Insert("lexical_items").
		Options("OR REPLACE").
		Columns("id", "lexeme_id", "word", "definition", "example_sentence").
		Values(item.ID.String(), item.LexemeID.String(), item.Word, item.Definition, item.ExampleSentence).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return fmt.Errorf("insert lexical item %s: %w", item.ID, err)
	}

	if len(item.Relations) == 0 {
		return nil
	}
	rel := sqlBuilder.Insert("lexical_relations").
		Columns("item_id", "position", "relation_type", "target_item_id")
	for i, r := range item.Relations {
		rel = rel.Values(item.ID.String(), i, string(r.Type), r.TargetItemID.String())
	}
	relSQL, args, err := rel.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, relSQL, args...); err != nil {
		return fmt.Errorf("insert relations for %s: %w", item.ID, err)
	}
	return nil
}
