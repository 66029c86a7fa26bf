package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetryAttempts bounds connection retries.
const DefaultRetryAttempts = 3

// WithRetry runs op, retrying connection-kind storage errors with
// exponential backoff. Any other error returns immediately.
func WithRetry(ctx context.Context, attempts int, op func() error) error {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}

	var err error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil || !IsConnectionError(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		slog.Warn("storage connection error, retrying",
			"attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
