package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"chatpilot.io/pilot/internal/domain"
)

const getCreditAccount = `
SELECT user_id, balance, alert_20_sent, alert_5_sent, updated_at
FROM user_credits WHERE user_id = $1`

// GetCreditAccount returns nil, nil when the user has no account.
func (q *Queries) GetCreditAccount(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	var a domain.CreditAccount
	err := q.db.QueryRow(ctx, getCreditAccount, userID).Scan(
		&a.UserID, &a.Balance, &a.Alert20Sent, &a.Alert5Sent, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const insertCreditAccount = `
INSERT INTO user_credits (user_id, balance) VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING`

// InsertCreditAccountIfAbsent creates the account unless it already exists.
func (q *Queries) InsertCreditAccountIfAbsent(ctx context.Context, userID string, balance int64) error {
	_, err := q.db.Exec(ctx, insertCreditAccount, userID, balance)
	return err
}

const swapCreditBalance = `
UPDATE user_credits SET balance = $3, updated_at = now()
WHERE user_id = $1 AND balance = $2`

// SwapCreditBalance sets balance to next only if it still equals expected.
func (q *Queries) SwapCreditBalance(ctx context.Context, userID string, expected, next int64) (bool, error) {
	tag, err := q.db.Exec(ctx, swapCreditBalance, userID, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const insertCreditTransaction = `
INSERT INTO credit_transactions (id, user_id, bot_id, amount, type, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// InsertCreditTransaction appends one journal row.
func (q *Queries) InsertCreditTransaction(ctx context.Context, tx domain.CreditTransaction) error {
	botID := pgtype.Text{String: tx.BotID, Valid: tx.BotID != ""}
	_, err := q.db.Exec(ctx, insertCreditTransaction,
		tx.ID, tx.UserID, botID, tx.Amount, string(tx.Type), tx.Reason, tx.CreatedAt,
	)
	return err
}

const listCreditTransactions = `
SELECT id, user_id, bot_id, amount, type, reason, created_at
FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`

// ListCreditTransactions returns up to limit rows, newest first.
func (q *Queries) ListCreditTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.Query(ctx, listCreditTransactions, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var (
			tx    domain.CreditTransaction
			botID pgtype.Text
			typ   string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &botID, &tx.Amount, &typ, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.BotID = botID.String
		tx.Type = domain.TransactionType(typ)
		out = append(out, tx)
	}
	return out, rows.Err()
}

const (
	markAlert20Sent = `UPDATE user_credits SET alert_20_sent = true WHERE user_id = $1 AND NOT alert_20_sent`
	markAlert5Sent  = `UPDATE user_credits SET alert_5_sent = true WHERE user_id = $1 AND NOT alert_5_sent`
	clearAlert20    = `UPDATE user_credits SET alert_20_sent = false WHERE user_id = $1`
	clearAlert5     = `UPDATE user_credits SET alert_5_sent = false WHERE user_id = $1`
)

// MarkCreditAlertSent flips the flag for threshold; false means it was
// already set or the threshold has no column.
func (q *Queries) MarkCreditAlertSent(ctx context.Context, userID string, threshold int64) (bool, error) {
	var stmt string
	switch threshold {
	case domain.AlertThresholdLow:
		stmt = markAlert20Sent
	case domain.AlertThresholdCritical:
		stmt = markAlert5Sent
	default:
		return false, nil
	}
	tag, err := q.db.Exec(ctx, stmt, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClearCreditAlert unsets the flag for threshold.
func (q *Queries) ClearCreditAlert(ctx context.Context, userID string, threshold int64) error {
	var stmt string
	switch threshold {
	case domain.AlertThresholdLow:
		stmt = clearAlert20
	case domain.AlertThresholdCritical:
		stmt = clearAlert5
	default:
		return nil
	}
	_, err := q.db.Exec(ctx, stmt, userID)
	return err
}

// CreditStore adapts Queries to credits.Store.
type CreditStore struct {
	q *Queries
}

// NewCreditStore creates a CreditStore.
func NewCreditStore(q *Queries) *CreditStore {
	return &CreditStore{q: q}
}

// GetAccount implements credits.Store.
func (s *CreditStore) GetAccount(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	return s.q.GetCreditAccount(ctx, userID)
}

// CreateAccount implements credits.Store.
func (s *CreditStore) CreateAccount(ctx context.Context, userID string, balance int64) (*domain.CreditAccount, error) {
	if err := s.q.InsertCreditAccountIfAbsent(ctx, userID, balance); err != nil {
		return nil, err
	}
	acct, err := s.q.GetCreditAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("credit account %s not visible after insert", userID)
	}
	return acct, nil
}

// CompareAndSwapBalance implements credits.Store.
func (s *CreditStore) CompareAndSwapBalance(ctx context.Context, userID string, expected, next int64) (bool, error) {
	return s.q.SwapCreditBalance(ctx, userID, expected, next)
}

// AppendTransaction implements credits.Store.
func (s *CreditStore) AppendTransaction(ctx context.Context, tx domain.CreditTransaction) error {
	return s.q.InsertCreditTransaction(ctx, tx)
}

// ListTransactions implements credits.Store.
func (s *CreditStore) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	return s.q.ListCreditTransactions(ctx, userID, limit)
}

// MarkAlertSent implements credits.Store.
func (s *CreditStore) MarkAlertSent(ctx context.Context, userID string, threshold int64) (bool, error) {
	return s.q.MarkCreditAlertSent(ctx, userID, threshold)
}

// ClearAlerts implements credits.Store.
func (s *CreditStore) ClearAlerts(ctx context.Context, userID string, thresholds []int64) error {
	for _, t := range thresholds {
		if err := s.q.ClearCreditAlert(ctx, userID, t); err != nil {
			return err
		}
	}
	return nil
}
