// Package credits maintains prepaid credit balances for bot owners.
//
// Balances change only through a read-check-compare-and-swap loop keyed on the
// observed balance, so concurrent debits linearize without locks: a writer
// that loses the race re-reads and re-checks instead of overwriting.
package credits

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/metrics"
	"chatpilot.io/pilot/internal/pkg/logger"
	"chatpilot.io/pilot/internal/pkg/worker"
)

const (
	// DefaultTrialCredits is the opening balance of a new account.
	DefaultTrialCredits int64 = 50
	// DefaultMaxAttempts bounds the compare-and-swap loop.
	DefaultMaxAttempts = 5
)

// DefaultAlertThresholds are the balances at which owners are warned.
var DefaultAlertThresholds = []int64{domain.AlertThresholdLow, domain.AlertThresholdCritical}

// LowBalanceAlert describes one threshold crossing.
type LowBalanceAlert struct {
	OwnerID   string
	Balance   int64
	Threshold int64
}

// AlertDispatcher hands threshold crossings to the notification pipeline.
type AlertDispatcher interface {
	DispatchLowBalance(ctx context.Context, alert LowBalanceAlert) error
}

// DetachedSubmitter runs tasks outside the request lifecycle.
type DetachedSubmitter interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// ConsumeInput describes one debit.
type ConsumeInput struct {
	OwnerID string
	BotID   string
	Amount  int64
	Reason  string
}

// GrantInput describes one top-up.
type GrantInput struct {
	UserID string
	Amount int64
	Reason string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTrialCredits overrides DefaultTrialCredits.
func WithTrialCredits(n int64) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.trialCredits = n
		}
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithAlertThresholds overrides DefaultAlertThresholds.
func WithAlertThresholds(thresholds ...int64) Option {
	return func(l *Ledger) { l.thresholds = thresholds }
}

// WithAlertDispatcher enables low-balance alerts.
func WithAlertDispatcher(d AlertDispatcher) Option {
	return func(l *Ledger) { l.alerts = d }
}

// WithJournalPool moves journal writes off the request path.
func WithJournalPool(p DetachedSubmitter) Option {
	return func(l *Ledger) { l.journal = p }
}

// Ledger implements trial provisioning, debits and grants on top of a Store.
type Ledger struct {
	store        Store
	trialCredits int64
	maxAttempts  int
	thresholds   []int64
	alerts       AlertDispatcher
	journal      DetachedSubmitter
	now          func() time.Time
}

// NewLedger creates a Ledger backed by store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		trialCredits: DefaultTrialCredits,
		maxAttempts:  DefaultMaxAttempts,
		thresholds:   DefaultAlertThresholds,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureTrialCredits returns the caller's account, creating it with the trial
// balance on first use. Safe to call on every login.
func (l *Ledger) EnsureTrialCredits(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get credit account %s: %w", userID, err)
	}
	if acct != nil {
		return acct, nil
	}
	acct, err = l.store.CreateAccount(ctx, userID, l.trialCredits)
	if err != nil {
		return nil, fmt.Errorf("create credit account %s: %w", userID, err)
	}
	logger.Ctx(ctx).Info("trial credits provisioned",
		zap.String("user_id", userID),
		zap.Int64("balance", acct.Balance),
	)
	return acct, nil
}

// GetBalance returns the account or nil when none exists.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get credit account %s: %w", userID, err)
	}
	return acct, nil
}

// OwnerBalance reads a bot owner's balance on behalf of an anonymous caller.
// Callers are responsible for having authorized the request through the bot.
// The second result is false when the owner has no account.
func (l *Ledger) OwnerBalance(ctx context.Context, ownerID string) (int64, bool, error) {
	acct, err := l.GetBalance(ctx, ownerID)
	if err != nil || acct == nil {
		return 0, false, err
	}
	return acct.Balance, true, nil
}

// RecentTransactions returns up to limit journal rows, newest first.
func (l *Ledger) RecentTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	txs, err := l.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions %s: %w", userID, err)
	}
	return txs, nil
}

// Consume debits |in.Amount| from the owner's account and returns the new
// balance. A zero amount is a no-op reported by consumed == false, and
// math.MinInt64, which has no positive magnitude, yields ErrInvalidAmount. A
// balance below the amount yields *OutOfCreditsError without mutation; losing
// every compare-and-swap attempt yields ErrCreditContention.
func (l *Ledger) Consume(ctx context.Context, in ConsumeInput) (newBalance int64, consumed bool, err error) {
	if in.Amount == math.MinInt64 {
		return 0, false, ErrInvalidAmount
	}
	amount := in.Amount
	if amount < 0 {
		amount = -amount
	}
	if amount == 0 {
		return 0, false, nil
	}

	if _, err := l.EnsureTrialCredits(ctx, in.OwnerID); err != nil {
		metrics.CreditDebits.WithLabelValues(metrics.ResultError).Inc()
		return 0, false, err
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		acct, err := l.store.GetAccount(ctx, in.OwnerID)
		if err != nil {
			metrics.CreditDebits.WithLabelValues(metrics.ResultError).Inc()
			return 0, false, fmt.Errorf("get credit account %s: %w", in.OwnerID, err)
		}
		if acct == nil {
			metrics.CreditDebits.WithLabelValues(metrics.ResultError).Inc()
			return 0, false, fmt.Errorf("%w: %s", ErrAccountMissing, in.OwnerID)
		}
		if acct.Balance < amount {
			metrics.CreditDebits.WithLabelValues(metrics.ResultOutOfCredits).Inc()
			return acct.Balance, false, &OutOfCreditsError{
				OwnerID:   in.OwnerID,
				Balance:   acct.Balance,
				Requested: amount,
			}
		}

		next := acct.Balance - amount
		swapped, err := l.store.CompareAndSwapBalance(ctx, in.OwnerID, acct.Balance, next)
		if err != nil {
			metrics.CreditDebits.WithLabelValues(metrics.ResultError).Inc()
			return 0, false, fmt.Errorf("update credit balance %s: %w", in.OwnerID, err)
		}
		if !swapped {
			metrics.CreditCASConflicts.Inc()
			logger.Ctx(ctx).Debug("credit balance changed concurrently, retrying",
				zap.String("owner_id", in.OwnerID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		metrics.CreditDebits.WithLabelValues(metrics.ResultConsumed).Inc()
		l.appendJournal(ctx, domain.CreditTransaction{
			UserID: in.OwnerID,
			BotID:  in.BotID,
			Amount: -amount,
			Type:   domain.TransactionUsage,
			Reason: in.Reason,
		})
		l.dispatchCrossings(ctx, acct, next)
		return next, true, nil
	}

	metrics.CreditDebits.WithLabelValues(metrics.ResultContention).Inc()
	logger.Ctx(ctx).Warn("credit debit gave up after repeated conflicts",
		zap.String("owner_id", in.OwnerID),
		zap.Int("attempts", l.maxAttempts),
	)
	return 0, false, fmt.Errorf("%w: owner %s after %d attempts", ErrCreditContention, in.OwnerID, l.maxAttempts)
}

// Grant adds a positive amount to the account, provisioning it first when
// needed, and re-arms alerts for thresholds the new balance climbed above.
// A grant that would overflow int64 yields ErrInvalidAmount and the current
// balance.
func (l *Ledger) Grant(ctx context.Context, in GrantInput) (int64, error) {
	if in.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := l.EnsureTrialCredits(ctx, in.UserID); err != nil {
		return 0, err
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		acct, err := l.store.GetAccount(ctx, in.UserID)
		if err != nil {
			return 0, fmt.Errorf("get credit account %s: %w", in.UserID, err)
		}
		if acct == nil {
			return 0, fmt.Errorf("%w: %s", ErrAccountMissing, in.UserID)
		}

		if in.Amount > math.MaxInt64-acct.Balance {
			return acct.Balance, fmt.Errorf("%w: grant of %d overflows balance %d", ErrInvalidAmount, in.Amount, acct.Balance)
		}
		next := acct.Balance + in.Amount
		swapped, err := l.store.CompareAndSwapBalance(ctx, in.UserID, acct.Balance, next)
		if err != nil {
			return 0, fmt.Errorf("update credit balance %s: %w", in.UserID, err)
		}
		if !swapped {
			metrics.CreditCASConflicts.Inc()
			continue
		}

		l.appendJournal(ctx, domain.CreditTransaction{
			UserID: in.UserID,
			Amount: in.Amount,
			Type:   domain.TransactionGrant,
			Reason: in.Reason,
		})

		var rearm []int64
		for _, t := range l.thresholds {
			if next > t && acct.AlertSent(t) {
				rearm = append(rearm, t)
			}
		}
		if len(rearm) > 0 {
			if err := l.store.ClearAlerts(ctx, in.UserID, rearm); err != nil {
				logger.Ctx(ctx).Warn("failed to re-arm low balance alerts",
					zap.String("user_id", in.UserID),
					zap.Error(err),
				)
			}
		}

		return next, nil
	}

	return 0, fmt.Errorf("%w: grant to %s after %d attempts", ErrCreditContention, in.UserID, l.maxAttempts)
}

// appendJournal writes a transaction row. Failures are logged and counted;
// the balance change it describes is already committed.
func (l *Ledger) appendJournal(ctx context.Context, tx domain.CreditTransaction) {
	tx.ID = uuid.Must(uuid.NewV7()).String()
	tx.CreatedAt = l.now().UTC()
	requestID := logger.RequestIDFromContext(ctx)

	write := func(ctx context.Context) {
		if err := l.store.AppendTransaction(ctx, tx); err != nil {
			metrics.JournalFailures.Inc()
			logger.Warn("failed to append credit transaction",
				zap.String("request_id", requestID),
				zap.String("user_id", tx.UserID),
				zap.Int64("amount", tx.Amount),
				zap.Error(err),
			)
		}
	}

	if l.journal != nil {
		if err := l.journal.SubmitDetached(worker.PoolJournal, write); err == nil {
			return
		}
	}
	write(context.WithoutCancel(ctx))
}

// dispatchCrossings reports thresholds passed by a debit from before.Balance
// to after whose alert has not been sent yet.
func (l *Ledger) dispatchCrossings(ctx context.Context, before *domain.CreditAccount, after int64) {
	if l.alerts == nil {
		return
	}
	for _, t := range l.thresholds {
		if before.Balance > t && after <= t && !before.AlertSent(t) {
			alert := LowBalanceAlert{OwnerID: before.UserID, Balance: after, Threshold: t}
			if err := l.alerts.DispatchLowBalance(context.WithoutCancel(ctx), alert); err != nil {
				logger.Ctx(ctx).Warn("failed to dispatch low balance alert",
					zap.String("owner_id", before.UserID),
					zap.Int64("threshold", t),
					zap.Error(err),
				)
			}
		}
	}
}
