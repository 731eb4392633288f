// Package main is the entry point for the fountainhead game API.
//
// main stays small: load configuration, build the logger, hand both to
// internal/server, and exit non-zero on failure. Everything else lives in
// internal packages so it can be tested without a process.
package main

import (
	"log/slog"
	"os"

	"github.com/macleann/fountainheadapi/internal/config"
	"github.com/macleann/fountainheadapi/internal/server"
)

func main() {
	// A bootstrap logger reports config errors before LOG_LEVEL is known.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.EnsureDataDir(); err != nil {
		logger.Error("failed to prepare data directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
