package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bitgeese/sequential-questioning/api"
	"github.com/bitgeese/sequential-questioning/internal/app"
	"github.com/bitgeese/sequential-questioning/internal/config"
)

// runServe initializes and starts the HTTP API server.
func runServe() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting HTTP API server", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv := api.NewServer(a.Pool, a.Questions, a.Conversations, logger)
	return srv.Run(ctx, cfg.ServerAddr)
}
