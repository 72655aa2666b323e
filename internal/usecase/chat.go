// Package usecase provides application use cases.
//
// Use cases are transport-agnostic: handlers translate HTTP into inputs and
// render the returned *errors.AppError values.
package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/access"
	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/llm"
	apperrors "chatpilot.io/pilot/internal/pkg/errors"
	"chatpilot.io/pilot/internal/pkg/logger"
	"chatpilot.io/pilot/internal/ratelimit"
)

// Default in-band replies.
const (
	DefaultRateLimitReply    = "You're sending messages too quickly. Please wait a minute and try again."
	DefaultOutOfCreditsReply = "This assistant is temporarily unavailable. Please try again later."
)

// MaxHistoryTurns caps how much earlier conversation is forwarded.
const MaxHistoryTurns = 20

// ChatInput is one visitor message to a bot.
type ChatInput struct {
	BotID       string
	Origin      string
	RequestHost string
	ClientIP    string
	Message     string
	History     []llm.Turn
}

// ChatOutput is the answer shown in the widget.
type ChatOutput struct {
	Reply string `json:"reply"`
}

// ChatConfig tunes ChatUseCase.
type ChatConfig struct {
	CostPerMessage    int64
	OutOfCreditsReply string
	// RateLimitReply is used for bots without their own throttle message.
	RateLimitReply string
	// CompletionTimeout bounds one model call. Zero means no extra bound.
	CompletionTimeout time.Duration
}

// ChatUseCase runs the metered chat flow: origin gate, rate limit, balance
// pre-check, completion, then the debit that decides whether the answer is
// delivered.
type ChatUseCase struct {
	validator *access.Validator
	limiter   *ratelimit.Limiter
	ledger    *credits.Ledger
	completer llm.Completer
	cfg       ChatConfig
}

// NewChatUseCase creates a ChatUseCase.
func NewChatUseCase(
	validator *access.Validator,
	limiter *ratelimit.Limiter,
	ledger *credits.Ledger,
	completer llm.Completer,
	cfg ChatConfig,
) *ChatUseCase {
	if cfg.CostPerMessage <= 0 {
		cfg.CostPerMessage = 1
	}
	if cfg.OutOfCreditsReply == "" {
		cfg.OutOfCreditsReply = DefaultOutOfCreditsReply
	}
	if cfg.RateLimitReply == "" {
		cfg.RateLimitReply = DefaultRateLimitReply
	}
	return &ChatUseCase{
		validator: validator,
		limiter:   limiter,
		ledger:    ledger,
		completer: completer,
		cfg:       cfg,
	}
}

// PublicBot returns the widget view of a bot if the origin may embed it.
func (uc *ChatUseCase) PublicBot(ctx context.Context, botID, origin, requestHost string) (*domain.PublicBot, error) {
	bot := uc.validator.Validate(ctx, botID, origin, requestHost)
	if bot == nil {
		return nil, apperrors.ErrBotUnavailable()
	}
	view := bot.PublicView()
	return &view, nil
}

// Execute answers one message. The completion runs before the debit; if the
// debit then fails for lack of credits the answer is discarded.
func (uc *ChatUseCase) Execute(ctx context.Context, in ChatInput) (*ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "message is required")
	}

	bot := uc.validator.Validate(ctx, in.BotID, in.Origin, in.RequestHost)
	if bot == nil {
		return nil, apperrors.ErrBotUnavailable()
	}
	log := logger.Ctx(ctx).With(zap.String("bot_id", bot.ID), zap.String("owner_id", bot.OwnerID))

	allowed, err := uc.limiter.Check(ctx, bot.ID, in.ClientIP, bot.Settings.RateLimitPerMinute)
	if err != nil {
		log.Error("rate limit check failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "internal error", http.StatusInternalServerError)
	}
	if !allowed {
		reply := bot.Settings.RateLimitMessage
		if reply == "" {
			reply = uc.cfg.RateLimitReply
		}
		return nil, apperrors.ErrRateLimited(reply)
	}

	balance, found, err := uc.ledger.OwnerBalance(ctx, bot.OwnerID)
	if err != nil {
		log.Error("owner balance read failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "internal error", http.StatusInternalServerError)
	}
	if found && balance < uc.cfg.CostPerMessage {
		return nil, apperrors.ErrOutOfCredits(uc.cfg.OutOfCreditsReply, &credits.OutOfCreditsError{
			OwnerID:   bot.OwnerID,
			Balance:   balance,
			Requested: uc.cfg.CostPerMessage,
		})
	}

	history := in.History
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	completeCtx := ctx
	if uc.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		completeCtx, cancel = context.WithTimeout(ctx, uc.cfg.CompletionTimeout)
		defer cancel()
	}
	answer, err := uc.completer.Complete(completeCtx, llm.Request{
		SystemPrompt: bot.SystemPrompt,
		History:      history,
		Message:      message,
	})
	if err != nil {
		log.Warn("completion failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeCompletionFailed, "the assistant could not answer", http.StatusBadGateway).
			WithReply(bot.FallbackBehavior)
	}

	_, _, err = uc.ledger.Consume(ctx, credits.ConsumeInput{
		OwnerID: bot.OwnerID,
		BotID:   bot.ID,
		Amount:  uc.cfg.CostPerMessage,
		Reason:  "chat_message",
	})
	switch {
	case err == nil:
		return &ChatOutput{Reply: answer}, nil
	case credits.IsOutOfCredits(err):
		log.Info("answer withheld, owner ran out of credits during completion")
		return nil, apperrors.ErrOutOfCredits(uc.cfg.OutOfCreditsReply, err)
	case errors.Is(err, credits.ErrCreditContention):
		log.Warn("credit debit contention", zap.Error(err))
		return nil, apperrors.ErrCreditContention(err)
	default:
		log.Error("credit debit failed", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "internal error", http.StatusInternalServerError)
	}
}
