package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tatianab/chronicles/internal/app"
	"github.com/tatianab/chronicles/internal/config"
	"github.com/tatianab/chronicles/internal/tui"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logFile, err := cfg.NewLogger()
	if err != nil {
		fmt.Printf("Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("Error starting game: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Offline() {
		fmt.Println("GEMINI_API_KEY is not set; Ser Elyen will be a knight of few words.")
	}

	if err := tui.Run(a.NewGame(), cfg.SaveDir); err != nil {
		logger.Error("tui exited", "error", err)
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
