package llm

import (
	"context"
	"strings"
)

// StaticCompleter answers with a fixed reply. It backs local development and
// tests where no model API key is configured.
type StaticCompleter struct {
	Reply string
}

// Complete implements Completer.
func (s StaticCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply := strings.TrimSpace(s.Reply)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}
