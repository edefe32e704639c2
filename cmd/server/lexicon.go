package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-verify/internal/config"
	"github.com/phrazzld/scry-verify/internal/lexicon"
	"github.com/phrazzld/scry-verify/internal/platform/sqlite"
	"github.com/phrazzld/scry-verify/internal/store"
)

const (
	lexiconDriverSQLite = "sqlite"
	lexiconDriverMemory = "memory"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLexicon opens the read-only lexical store behind a TTL cache. The
// returned closer releases the snapshot handle.
func setupLexicon(cfg config.LexiconConfig, log *slog.Logger) (store.LexicalStore, io.Closer, error) {
	var (
		next   store.LexicalStore
		closer io.Closer = nopCloser{}
	)

	switch cfg.Driver {
	case lexiconDriverSQLite:
		db, err := sqlite.Open(cfg.Path, true)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open lexicon snapshot: %w", err)
		}
		next = sqlite.NewLexicalStore(db, log)
		closer = db
	case lexiconDriverMemory:
		ms, err := lexicon.LoadMemoryStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Lexicon fixture loaded", "items", ms.Len())
		next = ms
	default:
		return nil, nil, fmt.Errorf("unsupported lexicon driver %q", cfg.Driver)
	}

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return lexicon.NewCachedStore(next, ttl, cfg.CacheSize, log), closer, nil
}
