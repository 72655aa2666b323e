package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContents(t *testing.T) {
	contents := buildContents(Request{
		History: []Turn{
			{Role: RoleUser, Text: "hi"},
			{Role: RoleAssistant, Text: "hello"},
			{Role: RoleUser, Text: "  "},
		},
		Message: "what are your hours?",
	})

	require.Len(t, contents, 3)
	assert.Equal(t, geminiRoleUser, contents[0].Role)
	assert.Equal(t, geminiRoleModel, contents[1].Role)
	assert.Equal(t, "what are your hours?", contents[2].Parts[0].Text)
}

func TestGeminiBuildConfig(t *testing.T) {
	g := &GeminiCompleter{cfg: GeminiConfig{Temperature: 0.2, MaxTokens: 256}}
	cfg := g.buildConfig(Request{SystemPrompt: "Be brief."})

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "Be brief.", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)

	assert.Nil(t, g.buildConfig(Request{}).SystemInstruction)
}

func TestNewGeminiCompleter_RequiresKey(t *testing.T) {
	_, err := NewGeminiCompleter(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestStaticCompleter(t *testing.T) {
	got, err := StaticCompleter{Reply: "ok"}.Complete(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, err = StaticCompleter{}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StaticCompleter{Reply: "ok"}.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
