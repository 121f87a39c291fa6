package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"urlitrim/internal/app"
	"urlitrim/internal/config"
	"urlitrim/internal/logging"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("boot", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("urlitrim listening",
		"addr", a.Addr(), "base_url", cfg.BaseURL, "db", cfg.DBPath, "click_policy", cfg.ClickPolicy)

	// Blocking; press Ctrl+C to stop the process.
	if err := a.Start(ctx); err != nil {
		logger.Error("server", "err", err)
		os.Exit(1)
	}
}
