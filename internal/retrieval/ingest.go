package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/chronicles/internal/models"
)

// embedderKey is the metadata key recording which embedder filled a store.
const embedderKey = "embedder"

// ErrEmbedderMismatch means the store holds vectors from another embedder,
// which cannot be compared with the current one.
var ErrEmbedderMismatch = errors.New("passage store was filled by a different embedder")

// EmbedderID identifies an embedder and its vector space. Embedders may
// name themselves with an EmbedderID method; others are named by type.
func EmbedderID(e Embedder) string {
	if named, ok := e.(interface{ EmbedderID() string }); ok {
		return named.EmbedderID()
	}
	return fmt.Sprintf("%T", e)
}

// CheckEmbedder returns ErrEmbedderMismatch if store holds passages that
// were not embedded by embedder. An empty store matches any embedder.
func CheckEmbedder(ctx context.Context, store Store, embedder Embedder) error {
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	stored, err := store.Metadata(ctx, embedderKey)
	if err != nil {
		return err
	}
	if want := EmbedderID(embedder); stored != want {
		if stored == "" {
			stored = "unknown"
		}
		return fmt.Errorf("%w: store has %s, current is %s", ErrEmbedderMismatch, stored, want)
	}
	return nil
}

// LoadPassages reads a YAML or JSON list of passages.
func LoadPassages(path string) ([]models.Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var passages []models.Passage
	if err := yaml.Unmarshal(data, &passages); err != nil {
		return nil, fmt.Errorf("failed to parse passages in %s: %w", path, err)
	}
	return passages, nil
}

// Ingest embeds passages and adds them to store. Passages without text are
// skipped. It fails with ErrEmbedderMismatch if the store already holds
// passages from another embedder.
func Ingest(ctx context.Context, store Store, embedder Embedder, passages []models.Passage) (int, error) {
	if err := CheckEmbedder(ctx, store, embedder); err != nil {
		return 0, err
	}

	var kept []models.Passage
	var vectors [][]float32
	for _, p := range passages {
		if p.Text == "" {
			continue
		}
		if p.Title == "" {
			p.Title = "Unknown"
		}
		v, err := embedder.Embed(ctx, p.Text)
		if err != nil {
			return 0, fmt.Errorf("failed to embed passage %q: %w", p.Title, err)
		}
		kept = append(kept, p)
		vectors = append(vectors, v)
	}
	if len(kept) == 0 {
		return 0, nil
	}
	if err := store.AddPassages(ctx, kept, vectors); err != nil {
		return 0, err
	}
	if err := store.SetMetadata(ctx, embedderKey, EmbedderID(embedder)); err != nil {
		return 0, err
	}
	return len(kept), nil
}

// SeedIfEmpty loads the passages file into store when the store holds no
// passages usable by embedder: either none at all, or ones embedded by a
// different embedder. Those are cleared first.
func SeedIfEmpty(ctx context.Context, store Store, embedder Embedder, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	err := CheckEmbedder(ctx, store, embedder)
	switch {
	case errors.Is(err, ErrEmbedderMismatch):
		logger.Warn("passage store was embedded differently, reseeding", "error", err)
		if err := store.Clear(ctx); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Debug("passage store already seeded", "passages", n)
		return nil
	}

	passages, err := LoadPassages(path)
	if err != nil {
		return err
	}
	added, err := Ingest(ctx, store, embedder, passages)
	if err != nil {
		return err
	}
	logger.Info("seeded passage store", "file", path, "passages", added, "embedder", EmbedderID(embedder))
	return nil
}
