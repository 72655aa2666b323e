package access

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/metrics"
	"chatpilot.io/pilot/internal/pkg/logger"
)

// BotReader loads the public configuration of a bot.
// Implementations return domain.ErrBotNotFound for unknown bots.
type BotReader interface {
	GetBotConfig(ctx context.Context, botID string) (*domain.BotConfig, error)
}

// Validator authorizes inbound widget requests against a bot's allow-list.
type Validator struct {
	bots BotReader
}

// NewValidator creates a Validator reading bots from the given store.
func NewValidator(bots BotReader) *Validator {
	return &Validator{bots: bots}
}

// OriginFromHeaders picks the Origin header and falls back to Referer.
func OriginFromHeaders(origin, referer string) string {
	if o := strings.TrimSpace(origin); o != "" && o != "null" {
		return o
	}
	return strings.TrimSpace(referer)
}

// Validate returns the bot configuration when the request origin may use the
// bot, or nil otherwise. Unknown bots, fetch failures and disallowed origins
// all yield nil so callers cannot tell them apart.
//
// requestHostname is the hostname this server was reached at; it is only
// consulted when the origin header is missing, to allow local development
// embeds whose Referrer is stripped.
func (v *Validator) Validate(ctx context.Context, botID, originOrReferer, requestHostname string) *domain.BotConfig {
	bot, err := v.bots.GetBotConfig(ctx, botID)
	if err != nil {
		if !errors.Is(err, domain.ErrBotNotFound) {
			logger.Ctx(ctx).Warn("bot config fetch failed, denying access",
				zap.String("bot_id", botID),
				zap.Error(err),
			)
			metrics.AccessDecisions.WithLabelValues(metrics.ResultError).Inc()
			return nil
		}
		metrics.AccessDecisions.WithLabelValues(metrics.ResultDenied).Inc()
		return nil
	}
	if bot == nil {
		metrics.AccessDecisions.WithLabelValues(metrics.ResultDenied).Inc()
		return nil
	}

	if decide(bot.AccessPolicy(), originOrReferer, requestHostname) {
		metrics.AccessDecisions.WithLabelValues(metrics.ResultAllowed).Inc()
		return bot
	}

	logger.Ctx(ctx).Debug("origin rejected by bot allow-list",
		zap.String("bot_id", botID),
		zap.String("origin", originOrReferer),
	)
	metrics.AccessDecisions.WithLabelValues(metrics.ResultDenied).Inc()
	return nil
}

func decide(policy domain.BotAccessPolicy, originOrReferer, requestHostname string) bool {
	if policy.AllowsAnyOrigin() {
		return true
	}

	localhostAllowed := HasLocalhostInAllowedDomains(policy.AllowedDomains)

	if hostname, ok := HostnameFromURLLike(originOrReferer); ok {
		if IsHostnameAllowed(hostname, policy.AllowedDomains) {
			return true
		}
		return localhostAllowed && IsLocalhostHostname(hostname)
	}

	return localhostAllowed && IsLocalhostHostname(requestHostname)
}
