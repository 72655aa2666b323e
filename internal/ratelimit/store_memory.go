package ratelimit

import (
	"context"
	"sync"
	"time"

	"chatpilot.io/pilot/internal/domain"
)

type windowKey struct {
	botID string
	ip    string
}

// MemoryStore keeps windows in process memory. It suits single-instance
// deployments and tests; windows are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[windowKey]domain.RateLimitWindow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[windowKey]domain.RateLimitWindow)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, botID, ip string) (*domain.RateLimitWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[windowKey{botID, ip}]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, botID, ip string, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[windowKey{botID, ip}] = domain.RateLimitWindow{
		BotID:       botID,
		IP:          ip,
		Count:       1,
		WindowStart: start,
	}
	return nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, botID, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := windowKey{botID, ip}
	if w, ok := s.windows[k]; ok {
		w.Count++
		s.windows[k] = w
	}
	return nil
}

// Prune drops windows that started before cutoff and returns how many were removed.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, w := range s.windows {
		if w.WindowStart.Before(cutoff) {
			delete(s.windows, k)
			removed++
		}
	}
	return removed
}
