package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/access"
	"chatpilot.io/pilot/internal/api/handlers"
	"chatpilot.io/pilot/internal/config"
	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/llm"
	"chatpilot.io/pilot/internal/pkg/logger"
	"chatpilot.io/pilot/internal/ratelimit"
	"chatpilot.io/pilot/internal/usecase"
)

// ChatModule wires the public widget flow: origin gate, visitor throttle and
// the completion backend.
type ChatModule struct {
	infra   *Infrastructure
	useCase *usecase.ChatUseCase
}

// NewChatModule creates the chat module on top of the billing ledger.
func NewChatModule(ctx context.Context, infra *Infrastructure, ledger *credits.Ledger) (*ChatModule, error) {
	completer, err := newCompleter(ctx, infra.Config.LLM)
	if err != nil {
		return nil, err
	}

	cfg := infra.Config
	limiter := ratelimit.NewLimiter(infra.RateLimitStore,
		ratelimit.WithDefaultLimit(cfg.RateLimit.DefaultLimit),
	)
	uc := usecase.NewChatUseCase(
		access.NewValidator(infra.Bots),
		limiter,
		ledger,
		completer,
		usecase.ChatConfig{
			CostPerMessage:    cfg.Credits.CostPerMessage,
			OutOfCreditsReply: cfg.Credits.OutOfCreditsReply,
			RateLimitReply:    cfg.RateLimit.DefaultMessage,
			CompletionTimeout: cfg.LLM.Timeout,
		},
	)
	return &ChatModule{infra: infra, useCase: uc}, nil
}

func newCompleter(ctx context.Context, cfg config.LLMConfig) (llm.Completer, error) {
	switch cfg.Provider {
	case config.LLMProviderGemini:
		c, err := llm.NewGeminiCompleter(ctx, llm.GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini completer: %w", err)
		}
		logger.Info("Using Gemini completer", zap.String("model", cfg.Model))
		return c, nil
	case config.LLMProviderStatic, "":
		logger.Warn("Using static completer; every chat gets the same reply")
		return llm.StaticCompleter{Reply: cfg.StaticReply}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func (m *ChatModule) Name() string { return "chat" }

func (m *ChatModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Chat = m.useCase
}

func (m *ChatModule) RegisterWorkers(*river.Workers) {}

func (m *ChatModule) Shutdown(context.Context) error { return nil }
