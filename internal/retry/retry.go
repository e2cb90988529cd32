// Package retry implements the bounded retry policy the question endpoints
// apply around a whole generation flow.
package retry

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	// MaxAttempts bounds how many times an operation is attempted.
	MaxAttempts = 3

	// initialBackoff is the first retry delay; it doubles per attempt.
	initialBackoff = 500 * time.Millisecond

	// initRaceDelay is the fixed delay for the known race where a client
	// sends a request before the server finished initializing. Retries for
	// this condition share the ordinary attempt budget.
	initRaceDelay = time.Second

	// initRaceMessage identifies the initialization race by error text.
	initRaceMessage = "Received request before initialization was complete"
)

// Do runs fn up to MaxAttempts times and returns the last error once the
// budget is exhausted. Errors mentioning the initialization race wait a
// fixed second before the next attempt; all other errors back off
// exponentially (0.5s, 1s, 2s). Validation is expected to happen before
// entering the loop, so every error seen here is worth retrying.
func Do(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.Error("attempt failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", MaxAttempts,
			"error", err)

		if attempt == MaxAttempts {
			break
		}
		if strings.Contains(err.Error(), initRaceMessage) {
			logger.Warn("initialization race detected, retrying after delay", "op", op)
			sleep(ctx, initRaceDelay)
			continue
		}
		sleep(ctx, initialBackoff<<(attempt-1))
	}
	return err
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
