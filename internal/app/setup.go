package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bitgeese/sequential-questioning/internal/config"
	"github.com/bitgeese/sequential-questioning/internal/conversation"
	"github.com/bitgeese/sequential-questioning/internal/database"
	"github.com/bitgeese/sequential-questioning/internal/llm"
	"github.com/bitgeese/sequential-questioning/internal/question"
	"github.com/bitgeese/sequential-questioning/internal/vectorstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.Pool = pool

	if err := database.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	model, err := llm.NewClient(ctx, llm.Config{
		APIKey:        cfg.APIKey,
		Model:         cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
		Temperature:   cfg.Temperature,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	a.Model = model

	conversations, err := conversation.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating conversation store: %w", err)
	}
	a.Conversations = conversations

	vectors, err := vectorstore.NewStore(pool, model, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	a.Vectors = vectors

	questions, err := question.NewService(conversations, vectors, model, logger)
	if err != nil {
		return nil, fmt.Errorf("creating question service: %w", err)
	}
	a.Questions = questions

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	logger.Info("application initialized",
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel)

	return a, nil
}
