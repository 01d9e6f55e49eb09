// Package app wires the configured collaborators into game sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tatianab/chronicles/internal/config"
	"github.com/tatianab/chronicles/internal/engine"
	"github.com/tatianab/chronicles/internal/game"
	"github.com/tatianab/chronicles/internal/retrieval"
	"github.com/tatianab/chronicles/internal/scenes"
)

// App holds what every session shares: the scene graph, the passage store
// and, when online, the Gemini client.
type App struct {
	Config *config.Config
	Graph  *scenes.Graph
	Store  retrieval.Store

	client   *engine.Client
	embedder retrieval.Embedder
	logger   *slog.Logger
}

// Open loads the scene graph, connects to the passage store, seeds it if
// empty and connects to Gemini when an API key is configured.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	graph, err := scenes.Load(cfg.ScenesFile)
	if err != nil {
		return nil, err
	}
	a.Graph = graph
	logger.Info("loaded scenes", "file", cfg.ScenesFile, "scenes", graph.Len(), "start", graph.StartingSceneID())

	if cfg.Offline() {
		logger.Warn("GEMINI_API_KEY not set, running offline")
		a.embedder = retrieval.HashEmbedder{}
	} else {
		client, err := engine.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.client = client
		a.embedder = client
	}

	store, err := retrieval.Open(ctx, cfg.DBType, cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open passage store: %w", err)
	}
	a.Store = store

	if cfg.PassagesFile != "" {
		if err := retrieval.SeedIfEmpty(ctx, store, a.embedder, cfg.PassagesFile, logger); err != nil {
			// The game still runs without reference passages.
			logger.Warn("failed to seed passage store", "file", cfg.PassagesFile, "error", err)
		}
	}
	return a, nil
}

// Embedder returns the embedder used for passages and queries.
func (a *App) Embedder() retrieval.Embedder {
	return a.embedder
}

// NewGame returns a fresh session with its own dialogue history.
func (a *App) NewGame() *game.Orchestrator {
	var dialogue *engine.Engine
	if a.client != nil {
		dialogue = engine.NewEngine(a.client.ChatModel(), a.logger)
	} else {
		dialogue = engine.NewEngine(nil, a.logger)
	}

	return game.New(a.Graph,
		game.WithDialogue(dialogue),
		game.WithRetriever(retrieval.NewRetriever(a.Store, a.embedder, a.logger)),
		game.WithTopK(a.Config.TopK),
		game.WithTimeout(a.Config.CollaboratorTimeout),
		game.WithLogger(a.logger),
	)
}

// Close releases the store and the Gemini client.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	return errors.Join(errs...)
}
