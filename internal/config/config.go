package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// GeminiAPIKey enables the live dialogue and embeddings. Without it the
	// game runs offline.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	ScenesFile   string `env:"SCENES_FILE" envDefault:"data/game_data.yaml"`
	PassagesFile string `env:"PASSAGES_FILE" envDefault:"data/historical_data.yaml"`
	SaveDir      string `env:"SAVE_DIR" envDefault:".saves"`

	DBType      string `env:"DB_TYPE" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:".saves/passages.db"`
	TopK        int    `env:"RAG_TOP_K" envDefault:"3"`

	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"20s"`

	LogFile  string `env:"LOG_FILE" envDefault:".saves/game.log"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Offline reports whether no Gemini key is configured.
func (c *Config) Offline() bool {
	return c.GeminiAPIKey == ""
}

// LoadConfig loads the configuration from the environment, reading a .env
// file first if there is one.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.DBType = strings.ToLower(strings.TrimSpace(c.DBType))
	switch c.DBType {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_TYPE must be sqlite or postgres, got %q", c.DBType)
	}
	if c.TopK < 1 {
		return fmt.Errorf("RAG_TOP_K must be at least 1, got %d", c.TopK)
	}
	if c.CollaboratorTimeout < 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must not be negative, got %s", c.CollaboratorTimeout)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger returns a JSON logger writing to LogFile, or discarding output
// when LogFile is empty. The terminal belongs to the game, so nothing is
// logged to stdout. The returned closer releases the file.
func (c *Config) NewLogger() (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFile == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, opts)), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(c.LogFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, opts)), f, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
