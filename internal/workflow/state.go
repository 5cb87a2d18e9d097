package workflow

import (
	"github.com/sqlrag/sqlrag/internal/databases"
	"github.com/sqlrag/sqlrag/internal/nl2sql"
	"github.com/sqlrag/sqlrag/internal/query"
	"github.com/sqlrag/sqlrag/internal/retrieval"
	"github.com/sqlrag/sqlrag/internal/schema"
)

const (
	StatusAnswered         = "answered"
	StatusEmpty            = "empty"
	StatusExecutionFailed  = "execution_failed"
	StatusGenerationFailed = "generation_failed"
)

// State is threaded through every stage. Stages only fill in fields they
// own; nothing set by an earlier stage is cleared.
type State struct {
	Question Question
	Stage    Stage
	History  []Stage

	// INFER_CONSTRAINTS
	Profile nl2sql.ConstraintProfile

	// SYNTHESIZE
	DatabaseID   string
	Candidates   []retrieval.DatabaseScore
	Chunks       []schema.Chunk
	CandidateSQL nl2sql.Statement

	// REWRITE
	FinalSQL nl2sql.Statement

	// FINALIZE
	Execution *query.ExecutionResult
	Answer    string

	// Failure is set only for failures that end a question without SQL.
	Failure error

	handle *databases.Handle
}

func (s State) Status() string {
	switch {
	case s.Failure != nil || s.FinalSQL == "":
		return StatusGenerationFailed
	case s.Execution != nil && s.Execution.Failed():
		return StatusExecutionFailed
	case s.Execution == nil || len(s.Execution.Rows) == 0:
		return StatusEmpty
	default:
		return StatusAnswered
	}
}

func (s State) Outcome() Outcome {
	out := Outcome{
		SQL:        string(s.FinalSQL),
		Answer:     s.Answer,
		Database:   s.DatabaseID,
		Candidates: s.Candidates,
		Status:     s.Status(),
	}
	if s.Failure != nil {
		out.Failure = s.Failure.Error()
	}
	return out
}
