// Package ratelimit throttles analysis requests per client address.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	Enabled bool

	// RequestsPerSecond is the sustained rate allowed per client
	RequestsPerSecond float64

	// BurstSize is the number of requests a client may make at once
	BurstSize int

	// BlockDuration is how long a client is refused after exceeding its limit
	BlockDuration time.Duration

	// CleanupInterval is how often idle clients are forgotten
	CleanupInterval time.Duration

	// WhitelistedIPs bypass the limiter. CIDR ranges are accepted.
	WhitelistedIPs []string

	// WhitelistedPaths bypass the limiter. A trailing * matches a prefix.
	WhitelistedPaths []string
}

// DefaultConfig returns the limiter defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:           false,
		RequestsPerSecond: 50,
		BurstSize:         100,
		BlockDuration:     time.Minute,
		CleanupInterval:   5 * time.Minute,
		WhitelistedIPs:    []string{"127.0.0.1", "::1"},
		WhitelistedPaths:  []string{"/health*", "/metrics", "/ws/reports"},
	}
}

type client struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
	blockUntil time.Time
}

// Limiter keeps one token bucket per key
type Limiter struct {
	limit   rate.Limit
	burst   int
	clients map[string]*client
	mu      sync.Mutex
	logger  *logrus.Logger
	ttl     time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter allowing rps sustained requests and burst at
// once per key. Idle keys are dropped after ttl; a zero ttl keeps them.
func NewLimiter(rps float64, burst int, ttl time.Duration, logger *logrus.Logger) *Limiter {
	l := &Limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*client),
		logger:  logger,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go l.cleanup()
	}
	return l
}

// Allow reports whether one request for key may proceed now
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c := l.client(key, now)
	if now.Before(c.blockUntil) {
		return false
	}
	return c.limiter.AllowN(now, 1)
}

// Block refuses every request for key until duration has passed
func (l *Limiter) Block(key string, duration time.Duration) {
	l.mu.Lock()
	now := l.now()
	c := l.client(key, now)
	c.blockUntil = now.Add(duration)
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.WithFields(logrus.Fields{
			"key":         key,
			"block_until": c.blockUntil,
		}).Warn("Client blocked after exceeding rate limit")
	}
}

// IsBlocked reports whether key is currently refused
func (l *Limiter) IsBlocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	return ok && l.now().Before(c.blockUntil)
}

// Tokens returns the tokens currently available to key
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		return float64(l.burst)
	}
	return c.limiter.TokensAt(l.now())
}

// ClientCount returns the number of tracked keys
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the cleanup goroutine
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) client(key string, now time.Time) *client {
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.ttl && !now.Before(c.blockUntil) {
			delete(l.clients, key)
		}
	}
}
