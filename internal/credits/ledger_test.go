package credits

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/pkg/worker"
)

func seededLedger(t *testing.T, owner string, balance int64, opts ...Option) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	_, err := store.CreateAccount(context.Background(), owner, balance)
	require.NoError(t, err)
	return NewLedger(store, opts...), store
}

func TestEnsureTrialCredits_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore())

	first, err := l.EnsureTrialCredits(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultTrialCredits, first.Balance)

	second, err := l.EnsureTrialCredits(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), second.Balance)
}

func TestEnsureTrialCredits_KeepsExistingBalance(t *testing.T) {
	l, _ := seededLedger(t, "user-1", 7)
	acct, err := l.EnsureTrialCredits(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), acct.Balance)
}

func TestGetBalance_Missing(t *testing.T) {
	l := NewLedger(NewMemoryStore())
	acct, err := l.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, acct)

	_, ok, err := l.OwnerBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsume_LastCredit(t *testing.T) {
	ctx := context.Background()
	l, _ := seededLedger(t, "owner-1", 1)

	balance, consumed, err := l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", BotID: "bot-1", Amount: 1, Reason: "chat"})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, int64(0), balance)

	_, consumed, err = l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", BotID: "bot-1", Amount: 1, Reason: "chat"})
	assert.False(t, consumed)
	require.Error(t, err)
	assert.True(t, IsOutOfCredits(err))

	var oce *OutOfCreditsError
	require.True(t, errors.As(err, &oce))
	assert.Equal(t, CodeOutOfCredits, oce.Code())
	assert.Equal(t, int64(0), oce.Balance)
	assert.Equal(t, int64(1), oce.Requested)
}

func TestConsume_AmountNormalization(t *testing.T) {
	ctx := context.Background()
	l, store := seededLedger(t, "owner-1", 10)

	_, consumed, err := l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", Amount: 0})
	require.NoError(t, err)
	assert.False(t, consumed, "zero amount is a no-op")

	balance, consumed, err := l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", Amount: -3})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, int64(7), balance)

	txs, err := store.ListTransactions(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-3), txs[0].Amount)
	assert.Equal(t, domain.TransactionUsage, txs[0].Type)
	assert.NotEmpty(t, txs[0].ID)
}

func TestConsume_ProvisionsUnknownOwner(t *testing.T) {
	l := NewLedger(NewMemoryStore())
	balance, consumed, err := l.Consume(context.Background(), ConsumeInput{OwnerID: "fresh", Amount: 1})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, DefaultTrialCredits-1, balance)
}

func TestConsume_ConcurrentDebitsLinearize(t *testing.T) {
	const (
		balance = 10
		callers = 40
	)
	// Each lost swap means another caller succeeded, so balance+1 attempts
	// can never be exhausted.
	l, store := seededLedger(t, "owner-1", balance, WithMaxAttempts(balance+1))

	var (
		wg           sync.WaitGroup
		successes    atomic.Int64
		outOfCredits atomic.Int64
		other        atomic.Int64
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, consumed, err := l.Consume(context.Background(), ConsumeInput{OwnerID: "owner-1", Amount: 1})
			switch {
			case consumed:
				successes.Add(1)
			case IsOutOfCredits(err):
				outOfCredits.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(balance), successes.Load())
	assert.Equal(t, int64(callers-balance), outOfCredits.Load())
	assert.Zero(t, other.Load())

	acct, err := store.GetAccount(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Balance)
}

type contendedStore struct {
	*MemoryStore
	swaps atomic.Int64
}

func (s *contendedStore) CompareAndSwapBalance(context.Context, string, int64, int64) (bool, error) {
	s.swaps.Add(1)
	return false, nil
}

func TestConsume_ContentionExhausted(t *testing.T) {
	store := &contendedStore{MemoryStore: NewMemoryStore()}
	_, err := store.CreateAccount(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	l := NewLedger(store)

	_, consumed, err := l.Consume(context.Background(), ConsumeInput{OwnerID: "owner-1", Amount: 1})
	assert.False(t, consumed)
	assert.ErrorIs(t, err, ErrCreditContention)
	assert.False(t, IsOutOfCredits(err))
	assert.Equal(t, int64(DefaultMaxAttempts), store.swaps.Load())
}

type failingJournalStore struct {
	*MemoryStore
}

func (failingJournalStore) AppendTransaction(context.Context, domain.CreditTransaction) error {
	return errors.New("journal unavailable")
}

func TestConsume_JournalFailureKeepsDebit(t *testing.T) {
	store := failingJournalStore{MemoryStore: NewMemoryStore()}
	_, err := store.CreateAccount(context.Background(), "owner-1", 3)
	require.NoError(t, err)
	l := NewLedger(store)

	balance, consumed, err := l.Consume(context.Background(), ConsumeInput{OwnerID: "owner-1", Amount: 1})
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, int64(2), balance)
}

func TestConsume_JournalPool(t *testing.T) {
	ctx := context.Background()
	pools, err := worker.NewPools(ctx, worker.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)

	l, store := seededLedger(t, "owner-1", 5, WithJournalPool(pools))
	_, _, err = l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", Amount: 2, Reason: "chat"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		txs, err := store.ListTransactions(ctx, "owner-1", 0)
		return err == nil && len(txs) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []LowBalanceAlert
}

func (d *recordingDispatcher) DispatchLowBalance(_ context.Context, alert LowBalanceAlert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
	return nil
}

func TestConsume_LowBalanceAlerts(t *testing.T) {
	ctx := context.Background()
	d := &recordingDispatcher{}
	l, store := seededLedger(t, "owner-1", 22, WithAlertDispatcher(d))

	consume := func(amount int64) {
		_, _, err := l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", Amount: amount})
		require.NoError(t, err)
	}

	consume(1) // 21, no crossing
	assert.Empty(t, d.alerts)

	consume(1) // 20, crosses the low threshold
	require.Len(t, d.alerts, 1)
	assert.Equal(t, LowBalanceAlert{OwnerID: "owner-1", Balance: 20, Threshold: 20}, d.alerts[0])

	_, err := store.MarkAlertSent(ctx, "owner-1", 20)
	require.NoError(t, err)

	consume(15) // 5, crosses the critical threshold only
	require.Len(t, d.alerts, 2)
	assert.Equal(t, int64(5), d.alerts[1].Threshold)
}

func TestGrant(t *testing.T) {
	ctx := context.Background()
	l, store := seededLedger(t, "user-1", 4)
	_, err := store.MarkAlertSent(ctx, "user-1", 20)
	require.NoError(t, err)
	_, err = store.MarkAlertSent(ctx, "user-1", 5)
	require.NoError(t, err)

	balance, err := l.Grant(ctx, GrantInput{UserID: "user-1", Amount: 10, Reason: "top-up"})
	require.NoError(t, err)
	assert.Equal(t, int64(14), balance)

	acct, err := store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, acct.Alert20Sent, "still below the low threshold")
	assert.False(t, acct.Alert5Sent, "re-armed above the critical threshold")

	txs, err := l.RecentTransactions(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionGrant, txs[0].Type)
	assert.Equal(t, int64(10), txs[0].Amount)

	_, err = l.Grant(ctx, GrantInput{UserID: "user-1", Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestConsume_RejectsMinInt64(t *testing.T) {
	ctx := context.Background()
	l, store := seededLedger(t, "owner-1", 50)

	balance, consumed, err := l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", Amount: math.MinInt64})
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.False(t, consumed)
	assert.Zero(t, balance)

	acct, err := store.GetAccount(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), acct.Balance)

	// The largest magnitude that does fit is an ordinary out-of-credits debit.
	_, consumed, err = l.Consume(ctx, ConsumeInput{OwnerID: "owner-1", Amount: math.MinInt64 + 1})
	assert.True(t, IsOutOfCredits(err))
	assert.False(t, consumed)
}

func TestGrant_RejectsOverflow(t *testing.T) {
	ctx := context.Background()
	l, store := seededLedger(t, "user-1", 50)

	_, err := l.Grant(ctx, GrantInput{UserID: "user-1", Amount: math.MaxInt64})
	require.ErrorIs(t, err, ErrInvalidAmount)

	acct, err := store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), acct.Balance)

	balance, err := l.Grant(ctx, GrantInput{UserID: "user-1", Amount: math.MaxInt64 - 50})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), balance)
}
