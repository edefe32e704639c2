package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sqlBuilder renders ?-placeholder queries for SQLite.
var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// schema is the snapshot layout.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS lexical_items (
		id TEXT PRIMARY KEY,
		lexeme_id TEXT NOT NULL,
		word TEXT NOT NULL,
		definition TEXT NOT NULL DEFAULT '',
		example_sentence TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS lexical_relations (
		item_id TEXT NOT NULL REFERENCES lexical_items(id),
		position INTEGER NOT NULL,
		relation_type TEXT NOT NULL CHECK(relation_type IN ('synonym','antonym','confusable','phrase')),
		target_item_id TEXT NOT NULL,
		PRIMARY KEY (item_id, position)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_lexical_items_lexeme ON lexical_items(lexeme_id);`,
}

// Open connects to a snapshot file. A read-only handle refuses writes at the
// SQLite level.
func Open(path string, readOnly bool) (*sql.DB, error) {
	mode := "rwc"
	if readOnly {
		mode = "ro"
	}
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=%s&_pragma=foreign_keys(1)", path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if !readOnly {
		conn.SetMaxOpenConns(1)
	}
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return conn, nil
}

// EnsureSchema creates the snapshot tables on a writable handle.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create lexicon schema: %w", err)
		}
	}
	return nil
}
