package modules

import (
	"context"

	"github.com/riverqueue/river"

	"chatpilot.io/pilot/internal/api/handlers"
	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/jobs"
	"chatpilot.io/pilot/internal/notification"
)

// BillingModule wires the credit ledger, low-balance alerts and the owner
// inbox.
type BillingModule struct {
	infra    *Infrastructure
	triggers *notification.Triggers
	ledger   *credits.Ledger
}

// NewBillingModule creates the billing module. The ledger is built by
// BuildLedger once the job queue exists.
func NewBillingModule(infra *Infrastructure) *BillingModule {
	return &BillingModule{
		infra:    infra,
		triggers: notification.NewTriggers(notification.NewInboxSender(infra.Inbox)),
	}
}

func (m *BillingModule) Name() string { return "billing" }

// BuildLedger creates the ledger. Alerts go through River when available and
// through the general worker pool otherwise.
func (m *BillingModule) BuildLedger() *credits.Ledger {
	if m.ledger != nil {
		return m.ledger
	}
	cfg := m.infra.Config.Credits

	var dispatcher credits.AlertDispatcher
	if m.infra.RiverClient != nil {
		dispatcher = jobs.NewRiverAlertDispatcher(m.infra.RiverClient)
	} else {
		dispatcher = jobs.NewPoolAlertDispatcher(m.infra.Pools, m.infra.CreditStore, m.triggers)
	}

	m.ledger = credits.NewLedger(m.infra.CreditStore,
		credits.WithTrialCredits(cfg.TrialCredits),
		credits.WithMaxAttempts(cfg.MaxAttempts),
		credits.WithAlertThresholds(cfg.AlertThresholds...),
		credits.WithAlertDispatcher(dispatcher),
		credits.WithJournalPool(m.infra.Pools),
	)
	return m.ledger
}

func (m *BillingModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Ledger = m.BuildLedger()
	deps.Inbox = m.infra.Inbox
	deps.Notifier = m.triggers
}

func (m *BillingModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m == nil || m.infra == nil {
		return
	}
	river.AddWorker(workers, jobs.NewCreditLowBalanceAlertWorker(m.infra.CreditStore, m.triggers))
}

func (m *BillingModule) Shutdown(context.Context) error { return nil }
