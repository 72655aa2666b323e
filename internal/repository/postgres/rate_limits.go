package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"chatpilot.io/pilot/internal/domain"
)

const getRateLimitWindow = `
SELECT bot_id, ip, count, window_start FROM rate_limits WHERE bot_id = $1 AND ip = $2`

// GetRateLimitWindow returns nil, nil when no window exists for the key.
func (q *Queries) GetRateLimitWindow(ctx context.Context, botID, ip string) (*domain.RateLimitWindow, error) {
	var w domain.RateLimitWindow
	err := q.db.QueryRow(ctx, getRateLimitWindow, botID, ip).Scan(&w.BotID, &w.IP, &w.Count, &w.WindowStart)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

const resetRateLimitWindow = `
INSERT INTO rate_limits (bot_id, ip, count, window_start)
VALUES ($1, $2, 1, $3)
ON CONFLICT (bot_id, ip) DO UPDATE SET count = 1, window_start = EXCLUDED.window_start`

// ResetRateLimitWindow starts a new window with count 1.
func (q *Queries) ResetRateLimitWindow(ctx context.Context, botID, ip string, start time.Time) error {
	_, err := q.db.Exec(ctx, resetRateLimitWindow, botID, ip, start)
	return err
}

const incrementRateLimitWindow = `
UPDATE rate_limits SET count = count + 1 WHERE bot_id = $1 AND ip = $2`

// IncrementRateLimitWindow adds one to the stored count in place.
func (q *Queries) IncrementRateLimitWindow(ctx context.Context, botID, ip string) error {
	_, err := q.db.Exec(ctx, incrementRateLimitWindow, botID, ip)
	return err
}

const deleteStaleRateLimits = `DELETE FROM rate_limits WHERE window_start < $1`

// DeleteStaleRateLimits removes windows that started before cutoff.
func (q *Queries) DeleteStaleRateLimits(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteStaleRateLimits, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RateLimitStore adapts Queries to ratelimit.Store.
type RateLimitStore struct {
	q *Queries
}

// NewRateLimitStore creates a RateLimitStore.
func NewRateLimitStore(q *Queries) *RateLimitStore {
	return &RateLimitStore{q: q}
}

// Get returns the window for the key, or nil.
func (s *RateLimitStore) Get(ctx context.Context, botID, ip string) (*domain.RateLimitWindow, error) {
	return s.q.GetRateLimitWindow(ctx, botID, ip)
}

// Reset starts a new window.
func (s *RateLimitStore) Reset(ctx context.Context, botID, ip string, start time.Time) error {
	return s.q.ResetRateLimitWindow(ctx, botID, ip, start)
}

// Increment bumps the window count.
func (s *RateLimitStore) Increment(ctx context.Context, botID, ip string) error {
	return s.q.IncrementRateLimitWindow(ctx, botID, ip)
}
