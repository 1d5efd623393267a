package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestKeyedLimiter_BurstThenBlocksThenRefills(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(1000, 0))
	l := NewKeyedLimiter(clk, Config{Rate: 1, Burst: 2})

	require.True(t, l.Allow("ip1"))
	require.True(t, l.Allow("ip1"))
	require.False(t, l.Allow("ip1"), "bucket should be empty")

	clk.Add(time.Second)
	require.True(t, l.Allow("ip1"), "one token refilled")
	require.False(t, l.Allow("ip1"))

	// refill is capped at burst
	clk.Add(10 * time.Second)
	require.True(t, l.Allow("ip1"))
	require.True(t, l.Allow("ip1"))
	require.False(t, l.Allow("ip1"))
}

func TestKeyedLimiter_IsPerKey(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(1000, 0))
	l := NewKeyedLimiter(clk, Config{Rate: 1, Burst: 1})

	require.True(t, l.Allow("keyA"))
	require.False(t, l.Allow("keyA"))
	require.True(t, l.Allow("keyB"), "independent bucket")
}

func TestKeyedLimiter_TTLCleanupRemovesIdleKeys(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(1000, 0))
	l := NewKeyedLimiter(clk, Config{Rate: 10, Burst: 1, TTL: 2 * time.Second})

	_ = l.Allow("A")
	_ = l.Allow("B")
	require.Equal(t, 2, l.Len())

	clk.Add(59 * time.Second)
	_ = l.Allow("B")

	// the cleanup interval has a one minute floor
	clk.Add(2 * time.Second)
	_ = l.Allow("B")

	_, hasA := l.byKey["A"]
	_, hasB := l.byKey["B"]
	require.False(t, hasA)
	require.True(t, hasB)
}

func TestKeyedLimiter_MaxBucketsRefusesNewKeys(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(1000, 0))
	l := NewKeyedLimiter(clk, Config{Rate: 10, Burst: 5, MaxBuckets: 1})

	require.True(t, l.Allow("A"))
	require.False(t, l.Allow("B"))
	require.True(t, l.Allow("A"), "known keys keep working")
	require.Equal(t, 1, l.Len())
}

func TestNewKeyedLimiter_NormalizesConfig(t *testing.T) {
	t.Parallel()

	l := NewKeyedLimiter(nil, Config{Rate: -1, Burst: 0, MaxBuckets: -3})
	require.Equal(t, Config{Rate: 1, Burst: 1}, l.cfg)
	require.IsType(t, RealClock{}, l.clock)
}
