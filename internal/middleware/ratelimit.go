package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
)

// RateLimiter interface for rate limiting
type RateLimiter interface {
	// Allow admits a request or returns the rejection message.
	Allow(userID int64) (bool, string)
	Reset(userID int64)
	ActiveUsers() int
}

// SlidingWindowLimiter admits at most limit requests per user within any
// trailing window.
type SlidingWindowLimiter struct {
	enabled         bool
	limit           int
	window          time.Duration
	message         string
	windows         map[int64][]time.Time
	mu              sync.Mutex
	logger          *logrus.Logger
	now             func() time.Time
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new rate limiter. message is returned verbatim on rejection;
// when empty a default English text is used.
func NewRateLimiter(cfg *config.Config, message string, logger *logrus.Logger) *SlidingWindowLimiter {
	rl := newSlidingWindowLimiter(cfg.RateLimit, message, logger, time.Now)
	if rl.enabled {
		go rl.cleanup()
	}
	return rl
}

func newSlidingWindowLimiter(cfg config.RateLimitConfig, message string, logger *logrus.Logger, now func() time.Time) *SlidingWindowLimiter {
	if message == "" {
		message = fmt.Sprintf("You have exceeded the request limit (%d per %s). Try again later!", cfg.Requests, cfg.Window)
	}
	return &SlidingWindowLimiter{
		enabled:         cfg.Enabled,
		limit:           cfg.Requests,
		window:          cfg.Window,
		message:         message,
		windows:         make(map[int64][]time.Time),
		logger:          logger,
		now:             now,
		cleanupInterval: 10 * time.Minute,
	}
}

// Allow checks if a user is allowed to make a request
func (r *SlidingWindowLimiter) Allow(userID int64) (bool, string) {
	if !r.enabled {
		return true, ""
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.prune(r.windows[userID], now)
	if len(kept) >= r.limit {
		r.windows[userID] = kept
		r.logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"in_window": len(kept),
		}).Warn("Rate limit exceeded")
		return false, r.message
	}

	r.windows[userID] = append(kept, now)
	return true, ""
}

// Reset resets the rate limiter for a user
func (r *SlidingWindowLimiter) Reset(userID int64) {
	r.mu.Lock()
	delete(r.windows, userID)
	r.mu.Unlock()
}

// ActiveUsers returns the number of users with a non-empty window.
func (r *SlidingWindowLimiter) ActiveUsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// prune drops timestamps that fell out of the trailing window.
// Timestamps are appended in order, so the first in-window one splits the slice.
func (r *SlidingWindowLimiter) prune(stamps []time.Time, now time.Time) []time.Time {
	for i, ts := range stamps {
		if now.Sub(ts) < r.window {
			return stamps[i:]
		}
	}
	return stamps[:0]
}

// sweep removes users whose whole window has expired
func (r *SlidingWindowLimiter) sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for userID, stamps := range r.windows {
		if len(r.prune(stamps, now)) == 0 {
			delete(r.windows, userID)
			removed++
		}
	}
	return removed
}

func (r *SlidingWindowLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		if removed := r.sweep(); removed > 0 {
			r.logger.WithField("removed", removed).Debug("Dropped idle rate limit windows")
		}
	}
}
