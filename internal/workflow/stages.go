package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sqlrag/sqlrag/internal/answer"
	"github.com/sqlrag/sqlrag/internal/nl2sql"
	"github.com/sqlrag/sqlrag/internal/observability"
	"github.com/sqlrag/sqlrag/internal/query"
	"github.com/sqlrag/sqlrag/internal/query/sqldb"
	"github.com/sqlrag/sqlrag/internal/retrieval"
	"github.com/sqlrag/sqlrag/internal/schema"
)

func (p *Pipeline) inferConstraints(ctx context.Context, state State) State {
	profile, err := p.deps.Inferencer.Infer(ctx, state.Question.Text)
	if err != nil {
		observability.IncrementFallback(observability.FallbackConstraints)
		p.logger.WarnContext(ctx, "constraint inference failed; continuing without hints", slog.Any("error", err))
		profile = nl2sql.ConstraintProfile{}
	}
	state.Profile = profile
	return state
}

func (p *Pipeline) synthesize(ctx context.Context, state State) State {
	dbID, candidates, err := p.selectDatabase(ctx, state.Question)
	state.Candidates = candidates
	if err != nil {
		return p.fail(ctx, state, err, answer.GenerationFailed)
	}
	state.DatabaseID = dbID

	handle, err := p.deps.Catalog.Open(ctx, dbID)
	if err != nil {
		observability.IncrementFallback(observability.FallbackSchema)
		return p.fail(ctx, state, fmt.Errorf("%w: %w", schema.ErrSchemaUnavailable, err), answer.SchemaUnavailable(dbID))
	}
	state.handle = handle

	chunks, err := schema.Chunks(ctx, handle)
	if err != nil {
		observability.IncrementFallback(observability.FallbackSchema)
		return p.fail(ctx, state, err, answer.SchemaUnavailable(dbID))
	}
	chunks = schema.Enrich(chunks, p.deps.Descriptions)

	retrieved, err := p.deps.Retriever.Retrieve(ctx, dbID, state.Question.Text, chunks, p.deps.TopK)
	if err != nil || len(retrieved) == 0 {
		observability.IncrementFallback(observability.FallbackRetrieval)
		p.logger.WarnContext(ctx, "schema retrieval failed; using catalog order",
			slog.String("db_id", dbID),
			slog.Any("error", err),
		)
		retrieved = chunks
		if len(retrieved) > p.deps.TopK {
			retrieved = retrieved[:p.deps.TopK]
		}
	}
	state.Chunks = retrieved

	result, err := p.deps.Translator.Translate(ctx, nl2sql.Request{
		Question:   state.Question.Text,
		DatabaseID: dbID,
		SchemaText: schema.FormatForPrompt(retrieved),
		Profile:    state.Profile,
	})
	if err != nil || result.SQL == "" {
		if err == nil {
			err = fmt.Errorf("%w: empty statement", nl2sql.ErrSynthesisFailed)
		}
		observability.IncrementFallback(observability.FallbackSynthesis)
		return p.fail(ctx, state, err, answer.GenerationFailed)
	}
	state.CandidateSQL = result.SQL
	return state
}

// selectDatabase picks the single target database. Several candidates are
// ranked by embedding similarity; if ranking yields nothing the first
// candidate is used.
func (p *Pipeline) selectDatabase(ctx context.Context, question Question) (string, []retrieval.DatabaseScore, error) {
	candidates := question.DatabaseIDs
	if len(candidates) == 0 {
		listed, err := p.deps.Catalog.List()
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrNoDatabase, err)
		}
		candidates = listed
	}
	switch len(candidates) {
	case 0:
		return "", nil, ErrNoDatabase
	case 1:
		return candidates[0], nil, nil
	}

	if p.deps.Ranker != nil {
		ranked, err := p.deps.Ranker.Rank(ctx, question.Text, candidates, p.deps.TopDatabases)
		if err == nil && len(ranked) > 0 {
			return ranked[0].Database, ranked, nil
		}
		p.logger.WarnContext(ctx, "database ranking unavailable; using first candidate",
			slog.Int("candidates", len(candidates)),
			slog.Any("error", err),
		)
	}
	observability.IncrementFallback(observability.FallbackRanking)
	return candidates[0], nil, nil
}

func (p *Pipeline) rewrite(ctx context.Context, state State) State {
	if state.Failure != nil || state.CandidateSQL == "" {
		return state
	}
	rewritten, err := p.deps.Rewriter.Rewrite(ctx, state.CandidateSQL)
	if err != nil {
		observability.IncrementFallback(observability.FallbackRewrite)
		p.logger.InfoContext(ctx, "rewrite rejected; keeping candidate", slog.Any("error", err))
		rewritten = state.CandidateSQL
	}
	if _, ok := nl2sql.ParseSelect(string(rewritten)); !ok {
		rewritten = state.CandidateSQL
	}
	state.FinalSQL = rewritten
	return state
}

func (p *Pipeline) finalize(ctx context.Context, state State) State {
	if state.Failure != nil || state.FinalSQL == "" || state.handle == nil {
		if state.Answer == "" {
			state.Answer = answer.GenerationFailed
		}
		return state
	}
	executor := query.NewExecutor(sqldb.NewEngine(state.handle.DB, p.deps.QueryTimeout), p.deps.RowLimit, p.logger)
	result := executor.Run(ctx, string(state.FinalSQL))
	state.Execution = &result
	state.Answer = answer.Summarize(result)
	return state
}

func (p *Pipeline) fail(ctx context.Context, state State, err error, text string) State {
	level := slog.LevelWarn
	if errors.Is(err, ErrNoDatabase) {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "question failed",
		slog.String("stage", string(state.Stage)),
		slog.String("db_id", state.DatabaseID),
		slog.Any("error", err),
	)
	state.Failure = err
	state.Answer = text
	return state
}
