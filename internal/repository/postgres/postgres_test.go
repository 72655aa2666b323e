package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatpilot.io/pilot/internal/access"
	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/ratelimit"
	"chatpilot.io/pilot/internal/testutil"
)

func newTestQueries(t *testing.T, prefix string) *Queries {
	t.Helper()
	pool := testutil.OpenPGXPool(t, prefix)
	require.NoError(t, Migrate(context.Background(), pool))
	// Migrate twice to prove the schema is idempotent.
	require.NoError(t, Migrate(context.Background(), pool))
	return New(pool)
}

func TestQueries_BotRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := testutil.OpenPGXPool(t, "bot_round_trip")
	require.NoError(t, Migrate(ctx, pool))
	q := New(pool)

	bot := domain.BotConfig{
		ID:           "bot-1",
		OwnerID:      "owner-1",
		Name:         "Support",
		SystemPrompt: "Be brief.",
		Widget:       domain.WidgetConfig{Title: "Help", Position: "bottom-left"},
		Settings: domain.BotSettings{
			AllowedDomains:     []string{"*.example.com", "localhost"},
			RateLimitPerMinute: 7,
			RateLimitMessage:   "slow down",
		},
	}
	require.NoError(t, NewBotWriter(pool).UpsertBot(ctx, bot))

	got, err := q.GetBotConfig(ctx, "bot-1")
	require.NoError(t, err)
	require.Equal(t, bot.OwnerID, got.OwnerID)
	require.Equal(t, bot.Widget.Position, got.Widget.Position)
	require.Equal(t, bot.Settings, got.Settings)

	_, err = q.GetBotConfig(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrBotNotFound)

	v := access.NewValidator(q)
	require.NotNil(t, v.Validate(ctx, "bot-1", "https://widget.example.com", "api.test"))
	require.Nil(t, v.Validate(ctx, "bot-1", "https://example.org", "api.test"))
}

func TestRateLimitStore_FixedWindow(t *testing.T) {
	q := newTestQueries(t, "rate_limit_window")
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l := ratelimit.NewLimiter(NewRateLimitStore(q), ratelimit.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	var got []bool
	for range 4 {
		ok, err := l.Check(ctx, "bot-1", "198.51.100.1", 3)
		require.NoError(t, err)
		got = append(got, ok)
	}
	require.Equal(t, []bool{true, true, true, false}, got)

	now = now.Add(domain.RateLimitWindowLength)
	ok, err := l.Check(ctx, "bot-1", "198.51.100.1", 3)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := q.DeleteStaleRateLimits(ctx, now.Add(time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestCreditStore_ConcurrentConsume(t *testing.T) {
	const (
		balance = 8
		callers = 24
	)
	ctx := context.Background()
	q := newTestQueries(t, "credit_concurrent")
	store := NewCreditStore(q)
	_, err := store.CreateAccount(ctx, "owner-1", balance)
	require.NoError(t, err)
	l := credits.NewLedger(store, credits.WithMaxAttempts(balance+1))

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		rejected  atomic.Int64
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, consumed, err := l.Consume(ctx, credits.ConsumeInput{OwnerID: "owner-1", BotID: "bot-1", Amount: 1, Reason: "chat"})
			if consumed {
				successes.Add(1)
			} else if credits.IsOutOfCredits(err) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, balance, successes.Load())
	require.EqualValues(t, callers-balance, rejected.Load())

	acct, err := store.GetAccount(ctx, "owner-1")
	require.NoError(t, err)
	require.EqualValues(t, 0, acct.Balance)

	txs, err := store.ListTransactions(ctx, "owner-1", 100)
	require.NoError(t, err)
	require.Len(t, txs, balance)
	require.Equal(t, "bot-1", txs[0].BotID)
}

func TestCreditStore_EnsureAndAlerts(t *testing.T) {
	ctx := context.Background()
	store := NewCreditStore(newTestQueries(t, "credit_alerts"))
	l := credits.NewLedger(store)

	first, err := l.EnsureTrialCredits(ctx, "user-1")
	require.NoError(t, err)
	second, err := l.EnsureTrialCredits(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 50, first.Balance)
	require.EqualValues(t, 50, second.Balance)

	flipped, err := store.MarkAlertSent(ctx, "user-1", domain.AlertThresholdLow)
	require.NoError(t, err)
	require.True(t, flipped)
	flipped, err = store.MarkAlertSent(ctx, "user-1", domain.AlertThresholdLow)
	require.NoError(t, err)
	require.False(t, flipped)

	require.NoError(t, store.ClearAlerts(ctx, "user-1", []int64{domain.AlertThresholdLow}))
	acct, err := store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, acct.Alert20Sent)
}

func TestQueries_Notifications(t *testing.T) {
	ctx := context.Background()
	q := newTestQueries(t, "notifications")

	require.NoError(t, q.InsertNotification(ctx, domain.Notification{
		ID: "n-1", UserID: "user-1", Type: "CREDIT_LOW_BALANCE", Title: "Low", Message: "20 left",
	}))
	rows, err := q.ListNotifications(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].Read)

	deleted, err := q.DeleteNotificationsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}
