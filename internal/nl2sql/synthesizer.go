package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/observability"
)

// Synthesizer composes the generation prompt, calls the model once and
// extracts the first select statement from the answer.
type Synthesizer struct {
	completer llm.Completer
	logger    *slog.Logger
}

func NewSynthesizer(completer llm.Completer, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{completer: completer, logger: observability.OrDiscard(logger)}
}

func (s *Synthesizer) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, fmt.Errorf("%w: question is required", ErrSynthesisFailed)
	}
	prompt := Compose(req.SchemaText, req.Profile, req.Question)
	completion, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	observability.AddTokens("synthesis", completion.Tokens)

	sql, ok := ExtractSQL(completion.Text)
	if !ok {
		s.logger.WarnContext(ctx, "no select statement in model output",
			slog.String("db_id", req.DatabaseID),
			slog.Int("output_length", len(completion.Text)),
		)
		return Result{Raw: completion.Text, Tokens: completion.Tokens},
			fmt.Errorf("%w: no select statement in model output", ErrSynthesisFailed)
	}
	return Result{SQL: sql, Raw: completion.Text, Tokens: completion.Tokens}, nil
}

var _ Translator = (*Synthesizer)(nil)
