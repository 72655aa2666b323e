package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot.io/pilot/internal/access"
	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/domain"
	"chatpilot.io/pilot/internal/llm"
	apperrors "chatpilot.io/pilot/internal/pkg/errors"
	"chatpilot.io/pilot/internal/ratelimit"
	"chatpilot.io/pilot/internal/repository/memory"
)

type countingCompleter struct {
	calls atomic.Int64
	reply string
	err   error
	// before runs inside Complete to simulate concurrent activity.
	before func()
}

func (c *countingCompleter) Complete(context.Context, llm.Request) (string, error) {
	c.calls.Add(1)
	if c.before != nil {
		c.before()
	}
	return c.reply, c.err
}

type chatFixture struct {
	uc        *ChatUseCase
	store     *credits.MemoryStore
	ledger    *credits.Ledger
	completer *countingCompleter
}

func newChatFixture(t *testing.T, ownerBalance int64) *chatFixture {
	t.Helper()
	bots := memory.NewBotStore(domain.BotConfig{
		ID:               "bot-1",
		OwnerID:          "owner-1",
		Name:             "Support",
		SystemPrompt:     "Be brief.",
		FallbackBehavior: "Please email support@example.com.",
		Settings: domain.BotSettings{
			AllowedDomains:     []string{"*.example.com"},
			RateLimitPerMinute: 2,
			RateLimitMessage:   "Easy there!",
		},
	})
	store := credits.NewMemoryStore()
	_, err := store.CreateAccount(context.Background(), "owner-1", ownerBalance)
	require.NoError(t, err)
	ledger := credits.NewLedger(store)
	completer := &countingCompleter{reply: "We open at nine."}

	uc := NewChatUseCase(
		access.NewValidator(bots),
		ratelimit.NewLimiter(ratelimit.NewMemoryStore()),
		ledger,
		completer,
		ChatConfig{},
	)
	return &chatFixture{uc: uc, store: store, ledger: ledger, completer: completer}
}

func chatInput(msg string) ChatInput {
	return ChatInput{
		BotID:       "bot-1",
		Origin:      "https://shop.example.com",
		RequestHost: "api.chatpilot.io",
		ClientIP:    "203.0.113.9",
		Message:     msg,
	}
}

func requireAppError(t *testing.T, err error, code string, status int) *apperrors.AppError {
	t.Helper()
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.HTTPStatus)
	return appErr
}

func TestChat_AnswersAndDebits(t *testing.T) {
	f := newChatFixture(t, 10)

	out, err := f.uc.Execute(context.Background(), chatInput("When do you open?"))
	require.NoError(t, err)
	assert.Equal(t, "We open at nine.", out.Reply)

	acct, err := f.store.GetAccount(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), acct.Balance)
}

func TestChat_DisallowedOrigin(t *testing.T) {
	f := newChatFixture(t, 10)
	in := chatInput("hi")
	in.Origin = "https://example.org"

	_, err := f.uc.Execute(context.Background(), in)
	requireAppError(t, err, apperrors.CodeBotUnavailable, http.StatusForbidden)

	in.BotID = "unknown"
	_, err = f.uc.Execute(context.Background(), in)
	requireAppError(t, err, apperrors.CodeBotUnavailable, http.StatusForbidden)
	assert.Zero(t, f.completer.calls.Load())
}

func TestChat_RateLimited(t *testing.T) {
	f := newChatFixture(t, 10)
	ctx := context.Background()

	for range 2 {
		_, err := f.uc.Execute(ctx, chatInput("hi"))
		require.NoError(t, err)
	}
	_, err := f.uc.Execute(ctx, chatInput("hi"))
	appErr := requireAppError(t, err, apperrors.CodeRateLimited, http.StatusTooManyRequests)
	assert.Equal(t, "Easy there!", appErr.Reply)
	assert.Equal(t, int64(2), f.completer.calls.Load())
}

func TestChat_OutOfCreditsBeforeCompletion(t *testing.T) {
	f := newChatFixture(t, 0)

	_, err := f.uc.Execute(context.Background(), chatInput("hi"))
	appErr := requireAppError(t, err, apperrors.CodeOutOfCredits, http.StatusPaymentRequired)
	assert.Equal(t, DefaultOutOfCreditsReply, appErr.Reply)
	assert.True(t, credits.IsOutOfCredits(err))
	assert.Zero(t, f.completer.calls.Load(), "no completion is paid for without credits")
}

func TestChat_OutOfCreditsAfterCompletionWithholdsAnswer(t *testing.T) {
	f := newChatFixture(t, 1)
	// Another request spends the last credit while this completion runs.
	f.completer.before = func() {
		_, _, err := f.ledger.Consume(context.Background(), credits.ConsumeInput{OwnerID: "owner-1", Amount: 1})
		require.NoError(t, err)
	}

	out, err := f.uc.Execute(context.Background(), chatInput("hi"))
	assert.Nil(t, out)
	requireAppError(t, err, apperrors.CodeOutOfCredits, http.StatusPaymentRequired)
}

func TestChat_CompletionFailure(t *testing.T) {
	f := newChatFixture(t, 10)
	f.completer.err = errors.New("upstream 503")

	_, err := f.uc.Execute(context.Background(), chatInput("hi"))
	appErr := requireAppError(t, err, apperrors.CodeCompletionFailed, http.StatusBadGateway)
	assert.Equal(t, "Please email support@example.com.", appErr.Reply)

	acct, err := f.store.GetAccount(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.Balance, "failed completions are not billed")
}

func TestChat_EmptyMessage(t *testing.T) {
	f := newChatFixture(t, 10)
	_, err := f.uc.Execute(context.Background(), chatInput("   "))
	requireAppError(t, err, apperrors.CodeInvalidRequest, http.StatusBadRequest)
}

func TestChat_PublicBot(t *testing.T) {
	f := newChatFixture(t, 10)

	view, err := f.uc.PublicBot(context.Background(), "bot-1", "https://widget.example.com", "api.chatpilot.io")
	require.NoError(t, err)
	assert.Equal(t, "Support", view.Name)

	_, err = f.uc.PublicBot(context.Background(), "bot-1", "https://example.org", "api.chatpilot.io")
	requireAppError(t, err, apperrors.CodeBotUnavailable, http.StatusForbidden)
}

type deadlineCompleter struct {
	hadDeadline bool
}

func (d *deadlineCompleter) Complete(ctx context.Context, _ llm.Request) (string, error) {
	_, d.hadDeadline = ctx.Deadline()
	return "ok", nil
}

func TestChat_CompletionTimeoutBoundsModelCall(t *testing.T) {
	bots := memory.NewBotStore(domain.BotConfig{
		ID:       "bot-1",
		OwnerID:  "owner-1",
		Settings: domain.BotSettings{AllowedDomains: []string{"example.com"}},
	})
	completer := &deadlineCompleter{}
	uc := NewChatUseCase(
		access.NewValidator(bots),
		ratelimit.NewLimiter(ratelimit.NewMemoryStore()),
		credits.NewLedger(credits.NewMemoryStore()),
		completer,
		ChatConfig{CompletionTimeout: 5 * time.Second},
	)

	out, err := uc.Execute(context.Background(), chatInput("hi"))
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Reply)
	assert.True(t, completer.hadDeadline)
}
