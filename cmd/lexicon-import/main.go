// Command lexicon-import builds a lexicon snapshot database from a JSON
// array of lexical items. Existing items with the same id are replaced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/config"
	"github.com/phrazzld/scry-verify/internal/lexicon"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/platform/sqlite"
)

func main() {
	in := flag.String("in", "", "path of the JSON lexicon export")
	out := flag.String("out", "lexicon.db", "path of the snapshot database to write")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.Setup(config.ServerConfig{LogLevel: *logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
		os.Exit(1)
	}

	if *in == "" {
		log.Error("missing -in")
		os.Exit(2)
	}

	if err := importLexicon(context.Background(), *in, *out, log); err != nil {
		log.Error("lexicon import failed", "error", err)
		os.Exit(1)
	}
}

// importLexicon writes every item of the export at in into the snapshot at
// out, creating the schema when needed.
func importLexicon(ctx context.Context, in, out string, log *slog.Logger) error {
	items, err := lexicon.ReadItems(in)
	if err != nil {
		return err
	}

	known := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
	}
	dangling := 0
	for _, item := range items {
		for _, rel := range item.Relations {
			if _, ok := known[rel.TargetItemID]; !ok {
				dangling++
				log.Debug("relation target not in export",
					"item_id", item.ID, "target_item_id", rel.TargetItemID, "type", rel.Type)
			}
		}
	}
	if dangling > 0 {
		log.Warn("some relation targets are not part of this export", "count", dangling)
	}

	db, err := sqlite.Open(out, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close snapshot", "error", err)
		}
	}()

	if err := sqlite.EnsureSchema(ctx, db); err != nil {
		return err
	}
	if err := sqlite.InsertItems(ctx, db, items); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	log.Info("lexicon snapshot written", "path", out, "items", len(items))
	return nil
}
