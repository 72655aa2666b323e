package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chatpilot.io/pilot/internal/domain"
)

const getBotConfig = `
SELECT b.id, b.owner_id, b.name, b.system_prompt, b.fallback_behavior,
       COALESCE(w.title, ''), COALESCE(w.welcome_message, ''),
       COALESCE(w.primary_color, ''), COALESCE(w.position, ''),
       COALESCE(s.allowed_domains, '{}'), COALESCE(s.rate_limit_per_minute, 0),
       COALESCE(s.rate_limit_message, '')
FROM bots b
LEFT JOIN widgets w ON w.bot_id = b.id
LEFT JOIN bot_settings s ON s.bot_id = b.id
WHERE b.id = $1`

// GetBotConfig loads a bot with its widget and settings. Unknown IDs return
// domain.ErrBotNotFound.
func (q *Queries) GetBotConfig(ctx context.Context, botID string) (*domain.BotConfig, error) {
	var b domain.BotConfig
	err := q.db.QueryRow(ctx, getBotConfig, botID).Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.SystemPrompt, &b.FallbackBehavior,
		&b.Widget.Title, &b.Widget.WelcomeMessage, &b.Widget.PrimaryColor, &b.Widget.Position,
		&b.Settings.AllowedDomains, &b.Settings.RateLimitPerMinute, &b.Settings.RateLimitMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query bot %s: %w", botID, err)
	}
	return &b, nil
}

const upsertBot = `
INSERT INTO bots (id, owner_id, name, system_prompt, fallback_behavior)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    owner_id = EXCLUDED.owner_id,
    name = EXCLUDED.name,
    system_prompt = EXCLUDED.system_prompt,
    fallback_behavior = EXCLUDED.fallback_behavior,
    updated_at = now()`

const upsertWidget = `
INSERT INTO widgets (bot_id, title, welcome_message, primary_color, position)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (bot_id) DO UPDATE SET
    title = EXCLUDED.title,
    welcome_message = EXCLUDED.welcome_message,
    primary_color = EXCLUDED.primary_color,
    position = EXCLUDED.position`

const upsertBotSettings = `
INSERT INTO bot_settings (bot_id, allowed_domains, rate_limit_per_minute, rate_limit_message)
VALUES ($1, $2, $3, $4)
ON CONFLICT (bot_id) DO UPDATE SET
    allowed_domains = EXCLUDED.allowed_domains,
    rate_limit_per_minute = EXCLUDED.rate_limit_per_minute,
    rate_limit_message = EXCLUDED.rate_limit_message`

// UpsertBot writes a bot and its widget and settings rows. Run it inside a
// transaction so readers never see a partial bot.
func (q *Queries) UpsertBot(ctx context.Context, b domain.BotConfig) error {
	if _, err := q.db.Exec(ctx, upsertBot, b.ID, b.OwnerID, b.Name, b.SystemPrompt, b.FallbackBehavior); err != nil {
		return fmt.Errorf("upsert bot %s: %w", b.ID, err)
	}
	if _, err := q.db.Exec(ctx, upsertWidget, b.ID,
		b.Widget.Title, b.Widget.WelcomeMessage, b.Widget.PrimaryColor, b.Widget.Position,
	); err != nil {
		return fmt.Errorf("upsert widget %s: %w", b.ID, err)
	}
	domains := b.Settings.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	if _, err := q.db.Exec(ctx, upsertBotSettings, b.ID,
		domains, b.Settings.RateLimitPerMinute, b.Settings.RateLimitMessage,
	); err != nil {
		return fmt.Errorf("upsert bot settings %s: %w", b.ID, err)
	}
	return nil
}

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BotWriter upserts whole bots atomically.
type BotWriter struct {
	db TxBeginner
}

// NewBotWriter creates a BotWriter on db.
func NewBotWriter(db TxBeginner) *BotWriter {
	return &BotWriter{db: db}
}

// UpsertBot writes b and its child rows in one transaction.
func (w *BotWriter) UpsertBot(ctx context.Context, b domain.BotConfig) error {
	return pgx.BeginFunc(ctx, w.db, func(tx pgx.Tx) error {
		return New(tx).UpsertBot(ctx, b)
	})
}
