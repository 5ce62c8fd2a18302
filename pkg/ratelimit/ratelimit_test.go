package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeClock is advanced by hand so refill tests do not sleep
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(rps float64, burst int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewLimiter(rps, burst, 0, newTestLogger())
	l.now = clock.Now
	return l, clock
}

func TestLimiter_AllowWithinBurst(t *testing.T) {
	l, _ := newTestLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(2, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow("a"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.ClientCount())
}

func TestLimiter_Block(t *testing.T) {
	l, clock := newTestLimiter(100, 100)

	l.Block("a", time.Minute)
	assert.True(t, l.IsBlocked("a"))
	assert.False(t, l.Allow("a"))
	assert.False(t, l.IsBlocked("b"))

	clock.Advance(time.Minute)
	assert.False(t, l.IsBlocked("a"))
	assert.True(t, l.Allow("a"))
}

func TestLimiter_Tokens(t *testing.T) {
	l, _ := newTestLimiter(1, 5)

	assert.Equal(t, 5.0, l.Tokens("unknown"))
	l.Allow("a")
	l.Allow("a")
	assert.InDelta(t, 3.0, l.Tokens("a"), 0.001)
}

func TestLimiter_EvictIdle(t *testing.T) {
	l, clock := newTestLimiter(1, 1)
	l.ttl = time.Minute

	l.Allow("idle")
	l.Block("blocked", 10*time.Minute)
	clock.Advance(2 * time.Minute)
	l.Allow("active")

	l.evictIdle()
	assert.Equal(t, 2, l.ClientCount())
	assert.True(t, l.IsBlocked("blocked"))
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(1, 50, time.Minute, newTestLogger())
	defer l.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, allowed, 50)
	assert.LessOrEqual(t, allowed, 51)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.False(t, config.Enabled)
	assert.Equal(t, 50.0, config.RequestsPerSecond)
	assert.Equal(t, 100, config.BurstSize)
	assert.Contains(t, config.WhitelistedPaths, "/health*")
}
