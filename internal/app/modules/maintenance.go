package modules

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/api/handlers"
	"chatpilot.io/pilot/internal/config"
	"chatpilot.io/pilot/internal/jobs"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// memoryPruneInterval matches the River rate limit cleanup schedule.
const memoryPruneInterval = 15 * time.Minute

// MaintenanceModule owns retention cleanup. With PostgreSQL it registers the
// periodic River workers; otherwise it prunes in-process rate limit windows.
type MaintenanceModule struct {
	infra *Infrastructure
	stop  chan struct{}
	done  chan struct{}
}

// NewMaintenanceModule creates the maintenance module.
func NewMaintenanceModule(infra *Infrastructure) *MaintenanceModule {
	return &MaintenanceModule{infra: infra}
}

func (m *MaintenanceModule) Name() string { return "maintenance" }

func (m *MaintenanceModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *MaintenanceModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m.infra == nil || m.infra.DB == nil {
		return
	}
	cfg := m.infra.Config
	river.AddWorker(workers, jobs.NewNotificationCleanupWorker(m.infra.DB.Queries, cfg.Notification.Retention))
	if cfg.RateLimitBackend() == config.RateLimitBackendPostgres {
		river.AddWorker(workers, jobs.NewRateLimitCleanupWorker(m.infra.DB.Queries, cfg.RateLimit.Retention))
	}
}

// Start launches the in-process window janitor when windows live in memory.
// Redis windows expire on their own and PostgreSQL windows are pruned by River.
func (m *MaintenanceModule) Start() {
	if m.infra == nil || m.infra.MemoryWindows == nil || m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() { //nolint:naked-goroutine // lifecycle-owned ticker, stopped by Shutdown
		defer close(m.done)
		ticker := time.NewTicker(memoryPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case now := <-ticker.C:
				m.pruneWindows(now)
			}
		}
	}()
}

func (m *MaintenanceModule) pruneWindows(now time.Time) int {
	retention := jobs.RateLimitRetention(m.infra.Config.RateLimit.Retention)
	n := m.infra.MemoryWindows.Prune(now.Add(-retention))
	if n > 0 {
		logger.Debug("pruned in-memory rate limit windows", zap.Int("deleted", n))
	}
	return n
}

func (m *MaintenanceModule) Shutdown(ctx context.Context) error {
	if m.stop == nil {
		return nil
	}
	close(m.stop)
	m.stop = nil
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
