// Package llm produces chat answers for bots.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when the backend answers with no text.
var ErrEmptyCompletion = errors.New("completion returned no text")

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one earlier message of the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request is a single completion call.
type Request struct {
	SystemPrompt string
	History      []Turn
	Message      string
}

// Completer answers a visitor message.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
