// Package workflow drives one question through the fixed pipeline
// START -> INFER_CONSTRAINTS -> SYNTHESIZE -> REWRITE -> FINALIZE -> END.
//
// Each Run builds its own State. Components passed in Dependencies may be
// shared across concurrent runs; the pipeline keeps no per-question state
// of its own.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/sqlrag/sqlrag/internal/answer"
	"github.com/sqlrag/sqlrag/internal/databases"
	"github.com/sqlrag/sqlrag/internal/nl2sql"
	"github.com/sqlrag/sqlrag/internal/observability"
	"github.com/sqlrag/sqlrag/internal/query"
	"github.com/sqlrag/sqlrag/internal/retrieval"
	"github.com/sqlrag/sqlrag/internal/schema"
)

type Stage string

const (
	StageStart            Stage = "START"
	StageInferConstraints Stage = "INFER_CONSTRAINTS"
	StageSynthesize       Stage = "SYNTHESIZE"
	StageRewrite          Stage = "REWRITE"
	StageFinalize         Stage = "FINALIZE"
	StageEnd              Stage = "END"
)

var ErrNoDatabase = errors.New("no candidate database")

// Question is the immutable pipeline input. With more than one candidate
// database the best-ranked one is chosen; with none, every database the
// catalog lists is a candidate.
type Question struct {
	Text        string   `json:"question"`
	DatabaseIDs []string `json:"db_ids"`
}

// Outcome is what a caller sees once the pipeline reaches END.
type Outcome struct {
	SQL        string                    `json:"sql"`
	Answer     string                    `json:"answer"`
	Database   string                    `json:"db_id"`
	Candidates []retrieval.DatabaseScore `json:"candidates,omitempty"`
	Status     string                    `json:"status"`
	Failure    string                    `json:"failure,omitempty"`
}

// Catalog is the subset of databases.Catalog the pipeline needs.
type Catalog interface {
	List() ([]string, error)
	Open(ctx context.Context, dbID string) (*databases.Handle, error)
}

type ConstraintInferencer interface {
	Infer(ctx context.Context, question string) (nl2sql.ConstraintProfile, error)
}

type StatementRewriter interface {
	Rewrite(ctx context.Context, candidate nl2sql.Statement) (nl2sql.Statement, error)
}

type ChunkRetriever interface {
	Retrieve(ctx context.Context, dbID, question string, chunks []schema.Chunk, k int) ([]schema.Chunk, error)
}

type DatabaseRanker interface {
	Rank(ctx context.Context, question string, candidates []string, n int) ([]retrieval.DatabaseScore, error)
}

type Dependencies struct {
	Catalog      Catalog
	Descriptions schema.Descriptions
	Inferencer   ConstraintInferencer
	Translator   nl2sql.Translator
	Rewriter     StatementRewriter
	Retriever    ChunkRetriever
	// Ranker is only consulted when a question has several candidates.
	Ranker DatabaseRanker

	TopK         int
	TopDatabases int
	RowLimit     int
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

type Pipeline struct {
	deps   Dependencies
	logger *slog.Logger
}

func New(deps Dependencies) (*Pipeline, error) {
	switch {
	case deps.Catalog == nil:
		return nil, fmt.Errorf("workflow: catalog is required")
	case deps.Inferencer == nil:
		return nil, fmt.Errorf("workflow: constraint inferencer is required")
	case deps.Translator == nil:
		return nil, fmt.Errorf("workflow: translator is required")
	case deps.Rewriter == nil:
		return nil, fmt.Errorf("workflow: rewriter is required")
	case deps.Retriever == nil:
		return nil, fmt.Errorf("workflow: retriever is required")
	}
	if deps.TopK <= 0 {
		deps.TopK = retrieval.DefaultTopK
	}
	if deps.TopDatabases <= 0 {
		deps.TopDatabases = retrieval.DefaultTopDatabases
	}
	if deps.RowLimit <= 0 {
		deps.RowLimit = query.DefaultRowLimit
	}
	return &Pipeline{deps: deps, logger: observability.OrDiscard(deps.Logger)}, nil
}

type step func(p *Pipeline, ctx context.Context, state State) State

type transition struct {
	next Stage
	run  step
}

// transitions is the whole state machine. Every stage has exactly one
// successor and no stage is revisited.
var transitions = map[Stage]transition{
	StageStart:            {next: StageInferConstraints},
	StageInferConstraints: {next: StageSynthesize, run: (*Pipeline).inferConstraints},
	StageSynthesize:       {next: StageRewrite, run: (*Pipeline).synthesize},
	StageRewrite:          {next: StageFinalize, run: (*Pipeline).rewrite},
	StageFinalize:         {next: StageEnd, run: (*Pipeline).finalize},
}

// Run answers one question. It never returns an error: failures are
// reported through Outcome.Failure and the answer text.
func (p *Pipeline) Run(ctx context.Context, question Question) (outcome Outcome) {
	state := State{Question: question, Stage: StageStart, History: []Stage{StageStart}}
	defer func() {
		if state.handle != nil {
			if err := state.handle.Close(); err != nil {
				p.logger.WarnContext(ctx, "close database handle", slog.String("db_id", state.DatabaseID), slog.Any("error", err))
			}
		}
	}()
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.ErrorContext(ctx, "pipeline panic",
				slog.String("stage", string(state.Stage)),
				slog.Any("panic", recovered),
				slog.String("stack", string(debug.Stack())),
			)
			observability.IncrementRun("panic")
			outcome = Outcome{
				Answer:   answer.GenerationFailed,
				Database: state.DatabaseID,
				Status:   StatusGenerationFailed,
				Failure:  fmt.Sprintf("panic in %s: %v", state.Stage, recovered),
			}
		}
	}()

	for state.Stage != StageEnd {
		t, ok := transitions[state.Stage]
		if !ok {
			panic(fmt.Sprintf("no transition from stage %s", state.Stage))
		}
		if t.run != nil {
			started := time.Now()
			state = t.run(p, ctx, state)
			observability.ObserveStage(string(state.Stage), time.Since(started))
		}
		p.logger.DebugContext(ctx, "stage complete",
			slog.String("stage", string(state.Stage)),
			slog.String("next", string(t.next)),
		)
		state.Stage = t.next
		state.History = append(state.History, t.next)
	}

	observability.IncrementRun(state.Status())
	return state.Outcome()
}
