// Package query runs a single SQL statement against a target database and
// reports rows or a captured execution error.
package query

import (
	"context"
	"time"
)

// DefaultRowLimit bounds how many rows one execution fetches.
const DefaultRowLimit = 1000

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
