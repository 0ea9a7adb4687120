package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return newLimiter(cfg, clock.now), clock
}

func TestLimiterAllow(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5})

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("ip"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("ip"), "burst exhausted")

	clock.advance(time.Second)
	assert.True(t, l.Allow("ip"), "one token per second at 60/min")
	assert.False(t, l.Allow("ip"))
}

func TestLimiterMultipleKeys(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		l.Allow("a")
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestLimiterCapsAtBurst(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 600, BurstSize: 2})

	l.Allow("k")
	clock.advance(time.Hour)
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestLimiterEvictIdle(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	l.Allow("old")
	clock.advance(3 * time.Minute)
	l.Allow("fresh")
	l.evictIdle(2 * time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "old")
	assert.Contains(t, l.buckets, "fresh")
}

func TestForRate(t *testing.T) {
	cfg := ForRate(120)
	assert.Equal(t, 120, cfg.RequestsPerMinute)
	assert.Equal(t, 20, cfg.BurstSize)
	assert.Equal(t, 1, ForRate(3).BurstSize)
	assert.Equal(t, ForRate(120), DefaultConfig())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware(func(c *gin.Context) string { return c.GetHeader("X-Caller") }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Caller", caller)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("alice").Code)
	w := do("alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, http.StatusOK, do("bob").Code)
}

func TestMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(Config{RequestsPerMinute: 0})

	r := gin.New()
	r.Use(l.Middleware(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
