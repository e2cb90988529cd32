// Package app provides application initialization and dependency wiring.
//
// App is the container holding every long-lived component: the database
// pool, the conversation and vector stores, the model client, and the
// question generation service built on top of them.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitgeese/sequential-questioning/internal/config"
	"github.com/bitgeese/sequential-questioning/internal/conversation"
	"github.com/bitgeese/sequential-questioning/internal/llm"
	"github.com/bitgeese/sequential-questioning/internal/question"
	"github.com/bitgeese/sequential-questioning/internal/vectorstore"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool          *pgxpool.Pool
	Conversations *conversation.Store
	Vectors       *vectorstore.Store
	Model         *llm.Client
	Questions     *question.Service

	cancel context.CancelFunc
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.Pool != nil {
		a.Pool.Close()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}

	return nil
}
