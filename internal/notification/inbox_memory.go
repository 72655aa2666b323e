package notification

import (
	"context"
	"sync"

	"chatpilot.io/pilot/internal/domain"
)

// MemoryInbox is an in-process Inbox for the memory storage driver.
type MemoryInbox struct {
	mu    sync.Mutex
	items []domain.Notification
}

// NewMemoryInbox creates an empty MemoryInbox.
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{}
}

// InsertNotification implements Inbox.
func (m *MemoryInbox) InsertNotification(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
	return nil
}

// ListNotifications implements Inbox.
func (m *MemoryInbox) ListNotifications(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].UserID != userID {
			continue
		}
		out = append(out, m.items[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
