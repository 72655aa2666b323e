package credits

import (
	"context"

	"chatpilot.io/pilot/internal/domain"
)

// Store is the persistence contract of the ledger. Balance updates go through
// CompareAndSwapBalance only; implementations must apply it atomically against
// the stored row.
type Store interface {
	// GetAccount returns nil, nil when the account does not exist.
	GetAccount(ctx context.Context, userID string) (*domain.CreditAccount, error)
	// CreateAccount inserts an account with the given balance unless one
	// exists, and returns whichever row is stored afterwards.
	CreateAccount(ctx context.Context, userID string, balance int64) (*domain.CreditAccount, error)
	// CompareAndSwapBalance sets balance to next only if it still equals
	// expected. It reports whether the row was updated.
	CompareAndSwapBalance(ctx context.Context, userID string, expected, next int64) (bool, error)
	// AppendTransaction writes one journal row.
	AppendTransaction(ctx context.Context, tx domain.CreditTransaction) error
	// ListTransactions returns the newest journal rows first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
	// MarkAlertSent flips the flag for threshold and reports whether it was
	// previously unset.
	MarkAlertSent(ctx context.Context, userID string, threshold int64) (bool, error)
	// ClearAlerts unsets the flags for the given thresholds.
	ClearAlerts(ctx context.Context, userID string, thresholds []int64) error
}
