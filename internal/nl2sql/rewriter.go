package nl2sql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/observability"
)

// Rewriter asks the model to normalize a candidate statement. Output that
// does not start with select is discarded in favor of the candidate.
type Rewriter struct {
	completer llm.Completer
	logger    *slog.Logger
}

func NewRewriter(completer llm.Completer, logger *slog.Logger) *Rewriter {
	return &Rewriter{completer: completer, logger: observability.OrDiscard(logger)}
}

// Rewrite always returns a usable statement. When the model fails or its
// answer is rejected, candidate is returned unchanged alongside an error
// wrapping ErrRewriteFailed.
func (r *Rewriter) Rewrite(ctx context.Context, candidate Statement) (Statement, error) {
	completion, err := r.completer.Complete(ctx, RewritePrompt(candidate))
	if err != nil {
		return candidate, fmt.Errorf("%w: %w", ErrRewriteFailed, err)
	}
	observability.AddTokens("rewrite", completion.Tokens)

	rewritten, ok := ParseSelect(completion.Text)
	if !ok {
		r.logger.DebugContext(ctx, "rewrite output rejected", slog.String("response", completion.Text))
		return candidate, fmt.Errorf("%w: output does not start with select", ErrRewriteFailed)
	}
	return rewritten, nil
}
