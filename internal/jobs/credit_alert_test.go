package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/pkg/worker"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []credits.LowBalanceAlert
	err   error
}

func (r *recordingNotifier) OnLowBalance(_ context.Context, ownerID string, balance, threshold int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, credits.LowBalanceAlert{OwnerID: ownerID, Balance: balance, Threshold: threshold})
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func seededFlags(t *testing.T) *credits.MemoryStore {
	t.Helper()
	store := credits.NewMemoryStore()
	_, err := store.CreateAccount(context.Background(), "owner-1", 20)
	require.NoError(t, err)
	return store
}

func alertJob(threshold int64) *river.Job[CreditLowBalanceAlertArgs] {
	return &river.Job[CreditLowBalanceAlertArgs]{
		Args: CreditLowBalanceAlertArgs{OwnerID: "owner-1", Balance: threshold, Threshold: threshold},
	}
}

func TestCreditLowBalanceAlertArgs(t *testing.T) {
	t.Parallel()

	args := CreditLowBalanceAlertArgs{}
	assert.Equal(t, "credit_low_balance_alert", args.Kind())
	opts := args.InsertOpts()
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)
}

func TestCreditLowBalanceAlertWorker_DeliversOnce(t *testing.T) {
	t.Parallel()

	flags := seededFlags(t)
	notifier := &recordingNotifier{}
	w := NewCreditLowBalanceAlertWorker(flags, notifier)

	require.NoError(t, w.Work(context.Background(), alertJob(20)))
	require.NoError(t, w.Work(context.Background(), alertJob(20)))
	assert.Equal(t, 1, notifier.count())

	acct, err := flags.GetAccount(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.True(t, acct.Alert20Sent)
}

func TestCreditLowBalanceAlertWorker_FailureRearms(t *testing.T) {
	t.Parallel()

	flags := seededFlags(t)
	notifier := &recordingNotifier{err: errors.New("inbox down")}
	w := NewCreditLowBalanceAlertWorker(flags, notifier)

	require.Error(t, w.Work(context.Background(), alertJob(5)))

	acct, err := flags.GetAccount(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.False(t, acct.Alert5Sent, "flag is cleared so a retry can deliver")
}

func TestCreditLowBalanceAlertWorker_Uninitialized(t *testing.T) {
	t.Parallel()

	w := &CreditLowBalanceAlertWorker{}
	assert.Error(t, w.Work(context.Background(), alertJob(5)))
}

func TestPoolAlertDispatcher(t *testing.T) {
	t.Parallel()

	pools, err := worker.NewPools(context.Background(), worker.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	notifier := &recordingNotifier{}
	d := NewPoolAlertDispatcher(pools, seededFlags(t), notifier)
	require.NoError(t, d.DispatchLowBalance(context.Background(), credits.LowBalanceAlert{
		OwnerID: "owner-1", Balance: 5, Threshold: 5,
	}))

	assert.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, 5*time.Millisecond)
}
