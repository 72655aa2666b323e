package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot.io/pilot/internal/domain"
)

type stubBots struct {
	bots map[string]*domain.BotConfig
	err  error
}

func (s *stubBots) GetBotConfig(_ context.Context, botID string) (*domain.BotConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	bot, ok := s.bots[botID]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	return bot, nil
}

func botWithDomains(id string, domains ...string) *domain.BotConfig {
	return &domain.BotConfig{
		ID:       id,
		OwnerID:  "owner-1",
		Settings: domain.BotSettings{AllowedDomains: domains},
	}
}

func TestValidator_Validate(t *testing.T) {
	store := &stubBots{bots: map[string]*domain.BotConfig{
		"open":      botWithDomains("open"),
		"wildcard":  botWithDomains("wildcard", "*.example.com"),
		"localdev":  botWithDomains("localdev", "example.com", "localhost"),
		"strict":    botWithDomains("strict", "example.com"),
		"blankonly": botWithDomains("blankonly", "  "),
	}}
	v := NewValidator(store)

	tests := []struct {
		name        string
		botID       string
		origin      string
		requestHost string
		wantAllowed bool
	}{
		{"unknown bot", "missing", "https://example.com", "api.chatpilot.io", false},
		{"empty allow-list admits any origin", "open", "https://anything.test", "api.chatpilot.io", true},
		{"empty allow-list admits missing origin", "open", "", "api.chatpilot.io", true},
		{"wildcard subdomain", "wildcard", "https://widget.example.com", "api.chatpilot.io", true},
		{"wildcard other domain", "wildcard", "https://example.org", "api.chatpilot.io", false},
		{"referer path accepted", "strict", "https://example.com/pricing?ref=1", "api.chatpilot.io", true},
		{"missing origin strict", "strict", "", "localhost", false},
		{"missing origin local dev", "localdev", "", "localhost", true},
		{"missing origin local dev remote host", "localdev", "", "api.chatpilot.io", false},
		{"localhost origin with opt-in", "localdev", "http://localhost:5173", "api.chatpilot.io", true},
		{"localhost origin without opt-in", "strict", "http://localhost:5173", "api.chatpilot.io", false},
		{"unparseable origin falls back to host", "localdev", "exa mple", "127.0.0.1", true},
		{"non-empty list of invalid patterns denies", "blankonly", "https://example.com", "localhost", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(context.Background(), tt.botID, tt.origin, tt.requestHost)
			if tt.wantAllowed {
				require.NotNil(t, got)
				assert.Equal(t, tt.botID, got.ID)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestValidator_StoreErrorDenies(t *testing.T) {
	v := NewValidator(&stubBots{err: errors.New("connection refused")})
	assert.Nil(t, v.Validate(context.Background(), "open", "https://example.com", "localhost"))
}

func TestOriginFromHeaders(t *testing.T) {
	assert.Equal(t, "https://a.test", OriginFromHeaders("https://a.test", "https://b.test/page"))
	assert.Equal(t, "https://b.test/page", OriginFromHeaders("", "https://b.test/page"))
	assert.Equal(t, "https://b.test/page", OriginFromHeaders("null", "https://b.test/page"))
	assert.Equal(t, "", OriginFromHeaders("", ""))
}
