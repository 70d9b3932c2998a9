package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RadEZorack/augmego-core/internal/auth"
	"github.com/RadEZorack/augmego-core/internal/presence"
	"github.com/RadEZorack/augmego-core/internal/server"
	"github.com/RadEZorack/augmego-core/internal/store"
	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.NewWithFormat(os.Stdout, logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Storage, logger)
	if err != nil {
		logger.Error("Failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	mirror, err := presence.NewMirror(ctx, cfg.Presence.Redis, logger)
	if err != nil {
		logger.Error("Failed to connect presence mirror", slog.Any("error", err))
		os.Exit(1)
	}
	resolver, err := auth.New(cfg.Auth)
	if err != nil {
		logger.Error("Failed to configure auth", slog.Any("error", err))
		os.Exit(1)
	}

	app := server.NewApp(logger, ctx, cfg, st, mirror, resolver)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
