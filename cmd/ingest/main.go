// Command ingest loads reference passages into the passage store.
//
// Usage:
//
//	ingest [passages.yaml ...]
//
// With no arguments it loads PASSAGES_FILE.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tatianab/chronicles/internal/config"
	"github.com/tatianab/chronicles/internal/engine"
	"github.com/tatianab/chronicles/internal/retrieval"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, files []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var embedder retrieval.Embedder = retrieval.HashEmbedder{}
	if !cfg.Offline() {
		client, err := engine.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return err
		}
		defer client.Close()
		embedder = client
	}

	store, err := retrieval.Open(ctx, cfg.DBType, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(files) == 0 {
		files = []string{cfg.PassagesFile}
	}
	for _, path := range files {
		passages, err := retrieval.LoadPassages(path)
		if err != nil {
			return err
		}
		added, err := retrieval.Ingest(ctx, store, embedder, passages)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Info("ingested passages", "file", path, "added", added, "skipped", len(passages)-added)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("passage store ready", "db", cfg.DBType, "passages", total)
	return nil
}
