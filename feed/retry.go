// Package feed acquires raw bars and social posts from the external data
// sources and appends them to the store. All network calls are rate limited
// with a token bucket and retried with bounded exponential backoff.
package feed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// maxAttempts bounds retries on transient errors. After the last attempt
// the operation is abandoned and reported, never silently swallowed.
const maxAttempts = 5

var baseBackoff = 2 * time.Second

// withRetry runs fn up to maxAttempts times, doubling the wait between
// attempts. Context cancellation stops retrying immediately.
func withRetry(ctx context.Context, log *zap.Logger, op string, fn func() error) error {
	var err error
	backoff := baseBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}

		log.Warn("transient failure, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%s: giving up after %d attempts: %w", op, maxAttempts, err)
}
