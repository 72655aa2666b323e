// Package jobs defines River job types for work that leaves the request path:
// low-balance alert delivery and periodic table maintenance.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/pkg/logger"
	"chatpilot.io/pilot/internal/pkg/worker"
)

// AlertFlags records which low-balance alerts were delivered.
type AlertFlags interface {
	MarkAlertSent(ctx context.Context, userID string, threshold int64) (bool, error)
	ClearAlerts(ctx context.Context, userID string, thresholds []int64) error
}

// LowBalanceNotifier is the notification side of an alert.
type LowBalanceNotifier interface {
	OnLowBalance(ctx context.Context, ownerID string, balance, threshold int64) error
}

// CreditLowBalanceAlertArgs carries one threshold crossing.
type CreditLowBalanceAlertArgs struct {
	OwnerID   string `json:"owner_id"`
	Balance   int64  `json:"balance"`
	Threshold int64  `json:"threshold"`
}

// Kind returns the job kind identifier.
func (CreditLowBalanceAlertArgs) Kind() string { return "credit_low_balance_alert" }

// InsertOpts dedupes alerts for the same owner and threshold within an hour.
func (CreditLowBalanceAlertArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Hour,
		},
	}
}

// CreditLowBalanceAlertWorker delivers low-balance alerts.
type CreditLowBalanceAlertWorker struct {
	river.WorkerDefaults[CreditLowBalanceAlertArgs]
	flags    AlertFlags
	notifier LowBalanceNotifier
}

// NewCreditLowBalanceAlertWorker creates the alert worker.
func NewCreditLowBalanceAlertWorker(flags AlertFlags, notifier LowBalanceNotifier) *CreditLowBalanceAlertWorker {
	return &CreditLowBalanceAlertWorker{flags: flags, notifier: notifier}
}

// Work delivers the alert once per crossing.
func (w *CreditLowBalanceAlertWorker) Work(ctx context.Context, job *river.Job[CreditLowBalanceAlertArgs]) error {
	if w == nil || w.flags == nil || w.notifier == nil {
		return fmt.Errorf("credit alert worker is not initialized")
	}
	return deliverLowBalance(ctx, w.flags, w.notifier, credits.LowBalanceAlert{
		OwnerID:   job.Args.OwnerID,
		Balance:   job.Args.Balance,
		Threshold: job.Args.Threshold,
	})
}

// deliverLowBalance claims the alert flag and notifies. A failed notification
// re-arms the flag so a retry can deliver it.
func deliverLowBalance(ctx context.Context, flags AlertFlags, notifier LowBalanceNotifier, alert credits.LowBalanceAlert) error {
	claimed, err := flags.MarkAlertSent(ctx, alert.OwnerID, alert.Threshold)
	if err != nil {
		return fmt.Errorf("mark alert %d sent for %s: %w", alert.Threshold, alert.OwnerID, err)
	}
	if !claimed {
		logger.Debug("low balance alert already delivered",
			zap.String("owner_id", alert.OwnerID),
			zap.Int64("threshold", alert.Threshold),
		)
		return nil
	}

	if err := notifier.OnLowBalance(ctx, alert.OwnerID, alert.Balance, alert.Threshold); err != nil {
		if clearErr := flags.ClearAlerts(ctx, alert.OwnerID, []int64{alert.Threshold}); clearErr != nil {
			logger.Warn("failed to re-arm alert after delivery failure",
				zap.String("owner_id", alert.OwnerID),
				zap.Error(clearErr),
			)
		}
		return fmt.Errorf("notify low balance for %s: %w", alert.OwnerID, err)
	}

	logger.Info("low balance alert delivered",
		zap.String("owner_id", alert.OwnerID),
		zap.Int64("balance", alert.Balance),
		zap.Int64("threshold", alert.Threshold),
	)
	return nil
}

// RiverAlertDispatcher enqueues alerts as River jobs.
type RiverAlertDispatcher struct {
	client *river.Client[pgx.Tx]
}

// NewRiverAlertDispatcher creates a dispatcher backed by client.
func NewRiverAlertDispatcher(client *river.Client[pgx.Tx]) *RiverAlertDispatcher {
	return &RiverAlertDispatcher{client: client}
}

// DispatchLowBalance implements credits.AlertDispatcher.
func (d *RiverAlertDispatcher) DispatchLowBalance(ctx context.Context, alert credits.LowBalanceAlert) error {
	_, err := d.client.Insert(ctx, CreditLowBalanceAlertArgs{
		OwnerID:   alert.OwnerID,
		Balance:   alert.Balance,
		Threshold: alert.Threshold,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueue low balance alert: %w", err)
	}
	return nil
}

// PoolAlertDispatcher delivers alerts on the general worker pool when no job
// queue is available.
type PoolAlertDispatcher struct {
	pools    *worker.Pools
	flags    AlertFlags
	notifier LowBalanceNotifier
}

// NewPoolAlertDispatcher creates an in-process dispatcher.
func NewPoolAlertDispatcher(pools *worker.Pools, flags AlertFlags, notifier LowBalanceNotifier) *PoolAlertDispatcher {
	return &PoolAlertDispatcher{pools: pools, flags: flags, notifier: notifier}
}

// DispatchLowBalance implements credits.AlertDispatcher.
func (d *PoolAlertDispatcher) DispatchLowBalance(_ context.Context, alert credits.LowBalanceAlert) error {
	return d.pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		if err := deliverLowBalance(ctx, d.flags, d.notifier, alert); err != nil {
			logger.Warn("low balance alert not delivered",
				zap.String("owner_id", alert.OwnerID),
				zap.Error(err),
			)
		}
	})
}

var (
	_ credits.AlertDispatcher = (*RiverAlertDispatcher)(nil)
	_ credits.AlertDispatcher = (*PoolAlertDispatcher)(nil)
)
