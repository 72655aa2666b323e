package domain

import "time"

// RateLimitWindowLength is the fixed window used by the request limiter.
const RateLimitWindowLength = 60 * time.Second

// RateLimitWindow is the stored counter for one (bot, client IP) key.
type RateLimitWindow struct {
	BotID       string
	IP          string
	Count       int
	WindowStart time.Time
}

// Expired reports whether now falls outside the half-open window
// [WindowStart, WindowStart+RateLimitWindowLength).
func (w *RateLimitWindow) Expired(now time.Time) bool {
	return !now.Before(w.WindowStart.Add(RateLimitWindowLength))
}

// Low-balance alert thresholds backed by the alert_20_sent and alert_5_sent
// columns.
const (
	AlertThresholdLow      int64 = 20
	AlertThresholdCritical int64 = 5
)

// CreditAccount is the prepaid balance of one account. Every successful
// update changes Balance, so it doubles as the optimistic concurrency token.
type CreditAccount struct {
	UserID      string    `json:"user_id"`
	Balance     int64     `json:"balance"`
	Alert20Sent bool      `json:"alert_20_sent"`
	Alert5Sent  bool      `json:"alert_5_sent"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AlertSent reports whether the low-balance alert for threshold was sent.
// Unknown thresholds are reported as sent so they are never dispatched.
func (a *CreditAccount) AlertSent(threshold int64) bool {
	switch threshold {
	case AlertThresholdLow:
		return a.Alert20Sent
	case AlertThresholdCritical:
		return a.Alert5Sent
	default:
		return true
	}
}

// TransactionType classifies credit journal entries.
type TransactionType string

const (
	TransactionUsage TransactionType = "usage"
	TransactionGrant TransactionType = "grant"
)

// CreditTransaction is an append-only journal entry. It references the
// account by user ID only; losing a row never affects the balance.
type CreditTransaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	BotID     string          `json:"bot_id,omitempty"`
	Amount    int64           `json:"amount"`
	Type      TransactionType `json:"type"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}
