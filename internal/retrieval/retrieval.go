// Package retrieval finds short reference passages that ground the
// companion's dialogue in the setting.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tatianab/chronicles/internal/models"
)

// DefaultTopK is the number of passages returned when the caller does not
// ask for a specific amount.
const DefaultTopK = 3

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store holds passages with their embeddings.
type Store interface {
	// AddPassages stores passages with one vector per passage.
	AddPassages(ctx context.Context, passages []models.Passage, vectors [][]float32) error

	// Search returns up to limit passages ordered by similarity to vector.
	// When tags is non-empty only passages carrying at least one of them
	// are considered.
	Search(ctx context.Context, vector []float32, limit int, tags []string) ([]models.Passage, error)

	// Count returns the number of stored passages.
	Count(ctx context.Context) (int, error)

	// Metadata returns the value stored under key, or "" when unset.
	Metadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error

	// Clear removes every passage and all metadata.
	Clear(ctx context.Context) error

	Close() error
}

// Retriever answers retrieval queries. It never fails: errors degrade to an
// empty result and are logged.
type Retriever struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

// NewRetriever returns a retriever over store. A nil logger uses
// slog.Default().
func NewRetriever(store Store, embedder Embedder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, embedder: embedder, logger: logger}
}

// Retrieve returns up to topK passages for query, most relevant first. If a
// tag-filtered search finds nothing it retries once without the filter and
// returns at most one passage.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, tags []string) []models.Passage {
	if topK <= 0 {
		topK = DefaultTopK
	}
	tags = normalizeTags(tags)
	log := r.logger.With("query", query, "tags", tags)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Warn("retrieval embedding failed", "error", err)
		return []models.Passage{}
	}

	if len(tags) == 0 {
		results, err := r.store.Search(ctx, vector, topK, nil)
		if err != nil {
			log.Warn("retrieval search failed", "error", err)
			return []models.Passage{}
		}
		log.Debug("retrieved passages", "count", len(results))
		return results
	}

	results, err := r.store.Search(ctx, vector, topK, tags)
	if err != nil {
		log.Warn("filtered retrieval failed", "error", err)
	}
	if len(results) > 0 {
		log.Debug("retrieved passages", "count", len(results))
		return results
	}

	log.Info("no passages matched filter, retrying without it")
	results, err = r.store.Search(ctx, vector, 1, nil)
	if err != nil {
		log.Warn("unfiltered retrieval failed", "error", err)
		return []models.Passage{}
	}
	if len(results) > 1 {
		results = results[:1]
	}
	if len(results) == 0 {
		log.Warn("no passages found; has the passage store been seeded?")
	}
	return results
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Open connects to the passage store for dbType ("sqlite" or "postgres")
// and makes sure its schema exists.
func Open(ctx context.Context, dbType, databaseURL string) (Store, error) {
	switch dbType {
	case "", "sqlite":
		s, err := NewSQLiteStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported passage store %q", dbType)
	}
}
