package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlrag/sqlrag/internal/observability"
)

// ExecutionError is a failed execution captured as data.
type ExecutionError struct {
	Query   string `json:"query"`
	Message string `json:"message"`
}

func (e *ExecutionError) Error() string {
	return "[Execution Error] " + e.Message
}

// ExecutionResult holds either rows (possibly none) or Err, never both.
type ExecutionResult struct {
	Query     string          `json:"query"`
	Columns   []string        `json:"columns,omitempty"`
	Rows      [][]any         `json:"rows,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
	Err       *ExecutionError `json:"error,omitempty"`
}

func (r ExecutionResult) Failed() bool { return r.Err != nil }

// Executor adapts an Engine to the never-fails execution contract.
type Executor struct {
	engine   Engine
	rowLimit int
	logger   *slog.Logger
}

func NewExecutor(engine Engine, rowLimit int, logger *slog.Logger) *Executor {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	return &Executor{engine: engine, rowLimit: rowLimit, logger: observability.OrDiscard(logger)}
}

// Run executes sql and always returns a result. Engine errors and panics
// are converted into ExecutionError values.
func (e *Executor) Run(ctx context.Context, sql string) (result ExecutionResult) {
	result.Query = sql
	defer func() {
		if recovered := recover(); recovered != nil {
			result = ExecutionResult{Query: sql, Err: &ExecutionError{Query: sql, Message: fmt.Sprint(recovered)}}
		}
		outcome := "ok"
		switch {
		case result.Err != nil:
			outcome = "error"
			e.logger.InfoContext(ctx, "query execution failed",
				slog.String("sql", sql),
				slog.String("error", result.Err.Message),
			)
		case len(result.Rows) == 0:
			outcome = "empty"
		}
		observability.ObserveExecution(outcome)
	}()

	if strings.TrimSpace(sql) == "" {
		result.Err = &ExecutionError{Query: sql, Message: "sql is required"}
		return result
	}
	executed, err := e.engine.Execute(ctx, Request{SQL: sql, RowLimit: e.rowLimit})
	if err != nil {
		result.Err = &ExecutionError{Query: sql, Message: err.Error()}
		return result
	}
	result.Columns = executed.Columns
	result.Rows = executed.Rows
	result.Truncated = executed.Truncated
	if executed.Truncated {
		e.logger.WarnContext(ctx, "query result truncated", slog.Int("row_limit", e.rowLimit))
	}
	return result
}
