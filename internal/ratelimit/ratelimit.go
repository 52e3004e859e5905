// Package ratelimit limits request rates per client key.
//
// MemoryLimiter is a per-process token bucket. The Limiter interface lets a
// shared implementation replace it when several replicas sit behind one
// load balancer.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. Errors signal a
	// limiter malfunction; callers fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// RetryAfter is the wait advertised to rejected clients.
	RetryAfter() time.Duration

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// RetryAfter returns zero.
func (NoopLimiter) RetryAfter() time.Duration { return 0 }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
