package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/chronicles/internal/config"
	"github.com/tatianab/chronicles/internal/engine"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ScenesFile:          filepath.Join("..", "..", "data", "game_data.yaml"),
		PassagesFile:        filepath.Join("..", "..", "data", "historical_data.yaml"),
		SaveDir:             filepath.Join(dir, "saves"),
		DBType:              "sqlite",
		DatabaseURL:         filepath.Join(dir, "passages.db"),
		TopK:                2,
		CollaboratorTimeout: time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenOfflinePlaysShippedStory(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), discardLogger())
	require.NoError(t, err)
	defer a.Close()

	n, err := a.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "store seeded from the passages file")

	g := a.NewGame()
	view := g.Start(ctx, "Aldric")
	require.Empty(t, view.Error)
	assert.Equal(t, "broken_bell", view.SceneID)
	assert.Len(t, view.Actions, 4)
	assert.NotEmpty(t, view.HistoricalContext)
	assert.LessOrEqual(t, len(view.HistoricalContext), 2)

	res, err := g.ResolveAction(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, engine.FallbackReply, res.AgentResponse)
	assert.Equal(t, "sexton_cottage", res.NextSceneID)

	res, err = g.ResolveAction(ctx, 3, "")
	require.NoError(t, err)
	assert.Equal(t, "abbey_road", res.NextSceneID)

	// The abbey road has no predefined actions.
	view = g.Advance(ctx)
	assert.Equal(t, engine.DefaultActions[:], view.Actions)
}

func TestOpenReusesSeededStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := Open(ctx, cfg, discardLogger())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(ctx, cfg, discardLogger())
	require.NoError(t, err)
	defer b.Close()
	n, err := b.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.ScenesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Open(ctx, cfg, discardLogger())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.DBType = "mongo"
	_, err = Open(ctx, cfg, discardLogger())
	assert.Error(t, err)
}

func TestOpenWithoutPassages(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.PassagesFile = filepath.Join(t.TempDir(), "missing.yaml")

	a, err := Open(ctx, cfg, discardLogger())
	require.NoError(t, err, "a missing passages file is not fatal")
	defer a.Close()

	view := a.NewGame().Start(ctx, "")
	assert.Empty(t, view.Error)
	assert.Empty(t, view.HistoricalContext)
}
