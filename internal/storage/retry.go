package storage

import (
	"context"
	"math/rand/v2"
	"time"
)

// isTransient reports whether err is worth retrying: the server was
// unreachable or busy, not a statement or constraint problem.
func isTransient(err error) bool {
	switch Classify(err) {
	case FailureConnection, FailureTimeout:
		return true
	default:
		return false
	}
}

// WithRetry executes fn, retrying up to maxRetries times on transient errors.
// Retries use jittered exponential backoff starting at baseDelay.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isTransient(err) || ctx.Err() != nil {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}
