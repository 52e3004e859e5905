package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(rate float64, burst int) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newMemoryLimiter(rate, burst, clock.Now), clock
}

func allowN(t *testing.T, m *MemoryLimiter, key string, n int) int {
	t.Helper()
	allowed := 0
	for i := 0; i < n; i++ {
		ok, err := m.Allow(context.Background(), key)
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	return allowed
}

func TestMemoryLimiter_Burst(t *testing.T) {
	t.Parallel()
	m, _ := newTestLimiter(10, 3)
	assert.Equal(t, 3, allowN(t, m, "k", 5))
}

func TestMemoryLimiter_Refill(t *testing.T) {
	t.Parallel()
	m, clock := newTestLimiter(2, 2)
	require.Equal(t, 2, allowN(t, m, "k", 3))

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, allowN(t, m, "k", 2))

	clock.Advance(time.Hour)
	assert.Equal(t, 2, allowN(t, m, "k", 5), "tokens cap at burst")
}

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	t.Parallel()
	m, _ := newTestLimiter(1, 1)
	assert.Equal(t, 1, allowN(t, m, "a", 2))
	assert.Equal(t, 1, allowN(t, m, "b", 2))
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	t.Parallel()
	m, _ := newTestLimiter(1, 50)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, _ := m.Allow(context.Background(), "shared")
				if ok {
					mu.Lock()
					total++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, total)
}

func TestMemoryLimiter_EvictStale(t *testing.T) {
	t.Parallel()
	m, clock := newTestLimiter(10, 5)
	allowN(t, m, "old", 1)
	clock.Advance(15 * time.Minute)
	allowN(t, m, "new", 1)

	m.evictStale()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.buckets, "old")
	assert.Contains(t, m.buckets, "new")
}

func TestMemoryLimiter_RetryAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rate float64
		want time.Duration
	}{
		{rate: 100, want: time.Second},
		{rate: 0.5, want: 2 * time.Second},
		{rate: 0, want: time.Minute},
	}
	for _, tt := range tests {
		m, _ := newTestLimiter(tt.rate, 1)
		assert.Equal(t, tt.want, m.RetryAfter(), "rate %v", tt.rate)
	}
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	t.Parallel()
	m := NewMemoryLimiter(10, 5)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNoopLimiter(t *testing.T) {
	t.Parallel()
	var l NoopLimiter
	ok, err := l.Allow(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, l.RetryAfter())
	assert.NoError(t, l.Close())
}
