// Package ratelimit bounds chat traffic per bot and client IP with a fixed
// 60-second window.
//
// The limiter is best-effort: two requests racing on the same key may both
// observe count < limit and both be admitted. Credit balances, not this
// package, are the hard spending guard.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/metrics"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// DefaultLimit applies when a bot has no positive per-minute limit configured.
const DefaultLimit = 20

// Store persists one window per (bot, ip) key.
type Store interface {
	// Get returns the window for the key, or nil when none exists.
	Get(ctx context.Context, botID, ip string) (*domain.RateLimitWindow, error)
	// Reset starts a fresh window with count 1, creating the row if needed.
	Reset(ctx context.Context, botID, ip string, start time.Time) error
	// Increment adds one to the current window count.
	Increment(ctx context.Context, botID, ip string) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithDefaultLimit overrides DefaultLimit.
func WithDefaultLimit(limit int) Option {
	return func(l *Limiter) {
		if limit > 0 {
			l.defaultLimit = limit
		}
	}
}

// Limiter implements the fixed-window check on top of a Store.
type Limiter struct {
	store        Store
	now          func() time.Time
	defaultLimit int
}

// NewLimiter creates a Limiter backed by store.
func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:        store,
		now:          time.Now,
		defaultLimit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request for (botID, clientIP) and reports whether it is
// within limit for the current window. A denied request does not mutate the
// window. Store errors are returned as-is and must fail the request.
func (l *Limiter) Check(ctx context.Context, botID, clientIP string, limit int) (bool, error) {
	if limit <= 0 {
		limit = l.defaultLimit
	}
	now := l.now()

	window, err := l.store.Get(ctx, botID, clientIP)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(metrics.ResultError).Inc()
		return false, fmt.Errorf("read rate limit window: %w", err)
	}

	if window == nil || window.Expired(now) {
		if err := l.store.Reset(ctx, botID, clientIP, now); err != nil {
			metrics.RateLimitDecisions.WithLabelValues(metrics.ResultError).Inc()
			return false, fmt.Errorf("start rate limit window: %w", err)
		}
		metrics.RateLimitDecisions.WithLabelValues(metrics.ResultAllowed).Inc()
		return true, nil
	}

	if window.Count >= limit {
		logger.Ctx(ctx).Debug("rate limit exceeded",
			zap.String("bot_id", botID),
			zap.String("ip", clientIP),
			zap.Int("count", window.Count),
			zap.Int("limit", limit),
		)
		metrics.RateLimitDecisions.WithLabelValues(metrics.ResultDenied).Inc()
		return false, nil
	}

	if err := l.store.Increment(ctx, botID, clientIP); err != nil {
		metrics.RateLimitDecisions.WithLabelValues(metrics.ResultError).Inc()
		return false, fmt.Errorf("increment rate limit window: %w", err)
	}
	metrics.RateLimitDecisions.WithLabelValues(metrics.ResultAllowed).Inc()
	return true, nil
}
