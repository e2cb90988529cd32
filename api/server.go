// Package api provides the HTTP API for sequential questioning.
//
// Endpoints:
//
//	POST /question            → generate the next batch of questions
//	POST /question/follow-up  → generate follow-ups to answered questions
//	POST /question/automatic  → run a multi-round question flow in one call
//	GET  /api/sessions        → list user sessions
//	GET  /health              → liveness probe
//	GET  /ready               → readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - question.go: question generation endpoints
//   - session.go: session listing endpoint
//   - health.go: health check endpoints (/health, /ready)
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitgeese/sequential-questioning/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. The
	// automatic flow runs several model calls plus retries, so this is
	// generous compared to a plain CRUD API.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the question generation API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	health   *HealthHandler
	question *QuestionHandler
	session  *SessionHandler
}

// NewServer creates a new HTTP server with all routes registered.
// pool may be nil in tests; the readiness probe then reports unavailable.
func NewServer(pool *pgxpool.Pool, generator Generator, sessions SessionStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		logger:   logger,
		health:   NewHealthHandler(pool, logger),
		question: NewQuestionHandler(generator, logger),
		session:  NewSessionHandler(sessions, logger),
	}

	s.health.RegisterRoutes(mux)
	s.question.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
