// Package memory holds in-process stores for the memory storage driver.
package memory

import (
	"context"
	"sync"

	"chatpilot.io/pilot/internal/domain"
)

// BotStore keeps bot configurations in a map.
type BotStore struct {
	mu   sync.RWMutex
	bots map[string]domain.BotConfig
}

// NewBotStore creates a BotStore holding bots.
func NewBotStore(bots ...domain.BotConfig) *BotStore {
	s := &BotStore{bots: make(map[string]domain.BotConfig, len(bots))}
	for _, b := range bots {
		s.bots[b.ID] = b
	}
	return s
}

// Put inserts or replaces a bot.
func (s *BotStore) Put(b domain.BotConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[b.ID] = b
}

// GetBotConfig returns a copy of the bot or domain.ErrBotNotFound.
func (s *BotStore) GetBotConfig(_ context.Context, botID string) (*domain.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bots[botID]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	b.Settings.AllowedDomains = append([]string(nil), b.Settings.AllowedDomains...)
	return &b, nil
}

// Ping always succeeds.
func (s *BotStore) Ping(context.Context) error { return nil }

// UpsertBot implements seed.BotWriter.
func (s *BotStore) UpsertBot(_ context.Context, b domain.BotConfig) error {
	s.Put(b)
	return nil
}
