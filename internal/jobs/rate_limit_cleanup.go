package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// DefaultRateLimitRetention keeps windows long enough to cover any active one.
const DefaultRateLimitRetention = 10 * domain.RateLimitWindowLength

// RateLimitPruner deletes windows that started before a cutoff.
type RateLimitPruner interface {
	DeleteStaleRateLimits(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimitCleanupArgs is a periodic job that prunes finished rate limit
// windows so the table stays proportional to active visitors.
type RateLimitCleanupArgs struct{}

// Kind returns the job kind identifier.
func (RateLimitCleanupArgs) Kind() string { return "rate_limit_cleanup" }

// InsertOpts keeps at most one cleanup job per quarter hour.
func (RateLimitCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 15 * time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// RateLimitCleanupWorker deletes stale windows.
type RateLimitCleanupWorker struct {
	river.WorkerDefaults[RateLimitCleanupArgs]
	pruner    RateLimitPruner
	retention time.Duration
}

// NewRateLimitCleanupWorker creates the worker. Retention shorter than one
// window falls back to DefaultRateLimitRetention.
func NewRateLimitCleanupWorker(pruner RateLimitPruner, retention time.Duration) *RateLimitCleanupWorker {
	return &RateLimitCleanupWorker{pruner: pruner, retention: RateLimitRetention(retention)}
}

// RateLimitRetention returns retention, or DefaultRateLimitRetention when it
// is shorter than one window and would delete live windows.
func RateLimitRetention(retention time.Duration) time.Duration {
	if retention < domain.RateLimitWindowLength {
		return DefaultRateLimitRetention
	}
	return retention
}

// Work removes windows that ended before now minus retention.
func (w *RateLimitCleanupWorker) Work(ctx context.Context, _ *river.Job[RateLimitCleanupArgs]) error {
	if w == nil || w.pruner == nil {
		return fmt.Errorf("rate limit cleanup worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-w.retention)
	deleted, err := w.pruner.DeleteStaleRateLimits(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete rate limit windows before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	logger.Info("rate limit cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	return nil
}

// PeriodicJobs returns the maintenance schedule registered on the River
// client. Window pruning is only scheduled when windows live in PostgreSQL.
func PeriodicJobs(pruneRateLimits bool) []*river.PeriodicJob {
	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) { return NotificationCleanupArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
	if pruneRateLimits {
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(15*time.Minute),
			func() (river.JobArgs, *river.InsertOpts) { return RateLimitCleanupArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	return periodic
}
