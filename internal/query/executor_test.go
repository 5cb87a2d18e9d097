package query

import (
	"context"
	"errors"
	"testing"
)

type engineFunc func(ctx context.Context, request Request) (Result, error)

func (f engineFunc) Execute(ctx context.Context, request Request) (Result, error) {
	return f(ctx, request)
}

func TestExecutorCapturesErrorsAsData(t *testing.T) {
	executor := NewExecutor(engineFunc(func(context.Context, Request) (Result, error) {
		return Result{}, errors.New("no such table: singers")
	}), 0, nil)

	result := executor.Run(context.Background(), "SELECT * FROM singers")
	if !result.Failed() {
		t.Fatal("expected failed result")
	}
	if got := result.Err.Error(); got != "[Execution Error] no such table: singers" {
		t.Fatalf("Err.Error() = %q", got)
	}
	if result.Err.Query != "SELECT * FROM singers" {
		t.Fatalf("Err.Query = %q", result.Err.Query)
	}
}

func TestExecutorRecoversEnginePanic(t *testing.T) {
	executor := NewExecutor(engineFunc(func(context.Context, Request) (Result, error) {
		panic("driver exploded")
	}), 0, nil)

	result := executor.Run(context.Background(), "SELECT 1")
	if !result.Failed() || result.Err.Message != "driver exploded" {
		t.Fatalf("result = %+v", result)
	}
}

func TestExecutorPassesRowLimit(t *testing.T) {
	var seen Request
	executor := NewExecutor(engineFunc(func(_ context.Context, request Request) (Result, error) {
		seen = request
		return Result{Columns: []string{"c"}, Rows: [][]any{{int64(1)}}, Truncated: true}, nil
	}), 25, nil)

	result := executor.Run(context.Background(), "SELECT c FROM t")
	if seen.RowLimit != 25 || seen.SQL != "SELECT c FROM t" {
		t.Fatalf("engine request = %+v", seen)
	}
	if result.Failed() || len(result.Rows) != 1 || !result.Truncated {
		t.Fatalf("result = %+v", result)
	}
}

func TestExecutorDefaultsRowLimit(t *testing.T) {
	var limit int
	executor := NewExecutor(engineFunc(func(_ context.Context, request Request) (Result, error) {
		limit = request.RowLimit
		return Result{}, nil
	}), 0, nil)
	executor.Run(context.Background(), "SELECT 1")
	if limit != DefaultRowLimit {
		t.Fatalf("RowLimit = %d, want %d", limit, DefaultRowLimit)
	}
}

func TestExecutorRejectsBlankSQL(t *testing.T) {
	called := false
	executor := NewExecutor(engineFunc(func(context.Context, Request) (Result, error) {
		called = true
		return Result{}, nil
	}), 0, nil)
	if result := executor.Run(context.Background(), "  "); !result.Failed() {
		t.Fatal("expected failure for blank sql")
	}
	if called {
		t.Fatal("engine should not be called")
	}
}
