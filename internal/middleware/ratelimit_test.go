package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func hourlyLimit() config.RateLimitConfig {
	return config.RateLimitConfig{Enabled: true, Requests: 15, Window: time.Hour}
}

func TestSlidingWindowBurstAdmitsFifteen(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newSlidingWindowLimiter(hourlyLimit(), "limit reached", quietLogger(), clock.Now)

	admitted, rejected := 0, 0
	for i := 0; i < 20; i++ {
		ok, msg := limiter.Allow(1)
		if ok {
			admitted++
			assert.Empty(t, msg)
		} else {
			rejected++
			assert.Equal(t, "limit reached", msg)
		}
		clock.Advance(50 * time.Millisecond)
	}

	assert.Equal(t, 15, admitted)
	assert.Equal(t, 5, rejected)
}

func TestSlidingWindowSlides(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newSlidingWindowLimiter(hourlyLimit(), "", quietLogger(), clock.Now)

	for i := 0; i < 15; i++ {
		ok, _ := limiter.Allow(1)
		require.True(t, ok)
		clock.Advance(time.Minute)
	}
	ok, msg := limiter.Allow(1)
	assert.False(t, ok)
	assert.Contains(t, msg, "15")

	// first request was at t=0, now t=15m; move to just past t=60m
	clock.Advance(45*time.Minute + time.Second)
	ok, _ = limiter.Allow(1)
	assert.True(t, ok, "oldest request left the window")
	ok, _ = limiter.Allow(1)
	assert.False(t, ok, "only one slot freed")
}

func TestSlidingWindowRejectionsDoNotConsumeSlots(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newSlidingWindowLimiter(config.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Hour}, "", quietLogger(), clock.Now)

	limiter.Allow(1)
	limiter.Allow(1)
	for i := 0; i < 10; i++ {
		ok, _ := limiter.Allow(1)
		require.False(t, ok)
	}
	clock.Advance(time.Hour)
	ok, _ := limiter.Allow(1)
	assert.True(t, ok)
}

func TestSlidingWindowIsPerUser(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	limiter := newSlidingWindowLimiter(config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Hour}, "", quietLogger(), clock.Now)

	ok, _ := limiter.Allow(1)
	assert.True(t, ok)
	ok, _ = limiter.Allow(2)
	assert.True(t, ok)
	ok, _ = limiter.Allow(1)
	assert.False(t, ok)

	limiter.Reset(1)
	ok, _ = limiter.Allow(1)
	assert.True(t, ok)
}

func TestSlidingWindowSweepDropsIdleUsers(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	limiter := newSlidingWindowLimiter(hourlyLimit(), "", quietLogger(), clock.Now)

	limiter.Allow(1)
	limiter.Allow(2)
	assert.Equal(t, 2, limiter.ActiveUsers())

	clock.Advance(30 * time.Minute)
	limiter.Allow(2)
	clock.Advance(31 * time.Minute)

	assert.Equal(t, 1, limiter.sweep())
	assert.Equal(t, 1, limiter.ActiveUsers())
}

func TestDisabledLimiterAdmitsEverything(t *testing.T) {
	limiter := newSlidingWindowLimiter(config.RateLimitConfig{Enabled: false, Requests: 1, Window: time.Hour}, "", quietLogger(), time.Now)
	for i := 0; i < 5; i++ {
		ok, _ := limiter.Allow(1)
		assert.True(t, ok)
	}
}

func TestMetricsRouterServesHealth(t *testing.T) {
	router := NewMetricsRouter("/metrics")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	NewMetrics().RecordBusyDropped()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "telegram_bot_busy_dropped_total")
}
