// Package ratelimit provides per-caller token-bucket rate limiting for the
// registry API.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures rate limiting
type Config struct {
	// RequestsPerMinute is the sustained rate per key
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit
	BurstSize int
	// CleanupInterval is how often to forget idle keys
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return ForRate(120)
}

// ForRate returns a config for rpm requests per minute, with a burst of a
// sixth of a minute's allowance (at least 1).
func ForRate(rpm int) Config {
	return Config{
		RequestsPerMinute: rpm,
		BurstSize:         max(1, rpm/6),
		CleanupInterval:   time.Minute,
	}
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges every request to its client IP.
func ByClientIP(c *gin.Context) string { return "ip:" + c.ClientIP() }

// Limiter tracks rate limits by key
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// New creates a new rate limiter and starts its cleanup loop.
func New(cfg Config) *Limiter {
	l := newLimiter(cfg, time.Now)
	go l.cleanup()
	return l
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		now:     now,
	}
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(2 * time.Minute)
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	for key, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow takes a token from key's bucket if one is available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.cfg.BurstSize - 1), lastCheck: now}
		return true
	}

	perSecond := float64(l.cfg.RequestsPerMinute) / 60.0
	b.tokens = min(float64(l.cfg.BurstSize), b.tokens+now.Sub(b.lastCheck).Seconds()*perSecond)
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Middleware rate limits requests by the key keyFn returns. A nil keyFn
// limits by client IP. A non-positive rate disables limiting.
func (l *Limiter) Middleware(keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = ByClientIP
	}
	limit := strconv.Itoa(l.cfg.RequestsPerMinute)
	return func(c *gin.Context) {
		if l.cfg.RequestsPerMinute <= 0 {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		if !l.Allow(keyFn(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			return
		}
		c.Next()
	}
}
