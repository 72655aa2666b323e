// Package domain provides the domain models shared by the access, metering
// and transport layers of Chat Pilot.
package domain

// BotConfig is the public configuration snapshot of a bot, fetched per
// request and never mutated by the metering subsystem.
type BotConfig struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"owner_id"`
	Name             string       `json:"name"`
	SystemPrompt     string       `json:"system_prompt"`
	FallbackBehavior string       `json:"fallback_behavior"`
	Widget           WidgetConfig `json:"widget"`
	Settings         BotSettings  `json:"settings"`
}

// WidgetConfig holds the presentation settings of the embeddable widget.
type WidgetConfig struct {
	Title          string `json:"title"`
	WelcomeMessage string `json:"welcome_message"`
	PrimaryColor   string `json:"primary_color"`
	Position       string `json:"position"`
}

// BotSettings holds the access and throttling settings of a bot.
type BotSettings struct {
	// AllowedDomains is the origin allow-list. Empty means any origin.
	AllowedDomains []string `json:"allowed_domains"`

	// RateLimitPerMinute is the per-IP request budget per window.
	// Zero means the platform default.
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// RateLimitMessage is the in-band reply shown when throttled.
	RateLimitMessage string `json:"rate_limit_message,omitempty"`
}

// BotAccessPolicy is the origin allow-list of a single bot.
type BotAccessPolicy struct {
	BotID          string
	AllowedDomains []string
}

// AccessPolicy extracts the access policy from the bot configuration.
func (b *BotConfig) AccessPolicy() BotAccessPolicy {
	if b == nil {
		return BotAccessPolicy{}
	}
	return BotAccessPolicy{BotID: b.ID, AllowedDomains: b.Settings.AllowedDomains}
}

// AllowsAnyOrigin reports whether the allow-list is empty. An empty list is
// distinct from a list whose patterns match nothing.
func (p BotAccessPolicy) AllowsAnyOrigin() bool {
	return len(p.AllowedDomains) == 0
}

// PublicView strips fields that must not reach anonymous widget visitors.
func (b *BotConfig) PublicView() PublicBot {
	return PublicBot{
		ID:     b.ID,
		Name:   b.Name,
		Widget: b.Widget,
	}
}

// PublicBot is the widget-facing projection of a bot.
type PublicBot struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Widget WidgetConfig `json:"widget"`
}
