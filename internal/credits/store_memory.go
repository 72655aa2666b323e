package credits

import (
	"context"
	"sync"
	"time"

	"chatpilot.io/pilot/internal/domain"
)

// MemoryStore is an in-process Store. The mutex stands in for row-level
// atomicity of a database; the ledger still relies on compare-and-swap.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]domain.CreditAccount
	transactions []domain.CreditTransaction
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]domain.CreditAccount)}
}

// GetAccount implements Store.
func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*domain.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &acct, nil
}

// CreateAccount implements Store.
func (s *MemoryStore) CreateAccount(_ context.Context, userID string, balance int64) (*domain.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		acct = domain.CreditAccount{UserID: userID, Balance: balance, UpdatedAt: time.Now().UTC()}
		s.accounts[userID] = acct
	}
	return &acct, nil
}

// CompareAndSwapBalance implements Store.
func (s *MemoryStore) CompareAndSwapBalance(_ context.Context, userID string, expected, next int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok || acct.Balance != expected {
		return false, nil
	}
	acct.Balance = next
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = acct
	return true, nil
}

// AppendTransaction implements Store.
func (s *MemoryStore) AppendTransaction(_ context.Context, tx domain.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, tx)
	return nil
}

// ListTransactions implements Store.
func (s *MemoryStore) ListTransactions(_ context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CreditTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID != userID {
			continue
		}
		out = append(out, s.transactions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkAlertSent implements Store.
func (s *MemoryStore) MarkAlertSent(_ context.Context, userID string, threshold int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return false, nil
	}
	var flag *bool
	switch threshold {
	case domain.AlertThresholdLow:
		flag = &acct.Alert20Sent
	case domain.AlertThresholdCritical:
		flag = &acct.Alert5Sent
	default:
		return false, nil
	}
	if *flag {
		return false, nil
	}
	*flag = true
	s.accounts[userID] = acct
	return true, nil
}

// ClearAlerts implements Store.
func (s *MemoryStore) ClearAlerts(_ context.Context, userID string, thresholds []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return nil
	}
	for _, t := range thresholds {
		switch t {
		case domain.AlertThresholdLow:
			acct.Alert20Sent = false
		case domain.AlertThresholdCritical:
			acct.Alert5Sent = false
		}
	}
	s.accounts[userID] = acct
	return nil
}
