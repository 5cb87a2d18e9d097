// Package llm is the boundary to the language model: one synchronous
// completion call per prompt, and batch text embeddings.
package llm

import (
	"context"
	"errors"
)

var ErrEmptyCompletion = errors.New("model returned no choices")

// Completion is the model's text response and the tokens it consumed
// (prompt plus completion).
type Completion struct {
	Text   string
	Tokens int64
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (Completion, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (Completion, error) {
	return f(ctx, prompt)
}
