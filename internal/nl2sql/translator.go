// Package nl2sql turns a question plus retrieved schema into a single SQL
// statement: constraint inference, prompt composition, synthesis and the
// rewrite pass.
package nl2sql

import (
	"context"
	"errors"
)

var (
	ErrConstraintInferenceFailed = errors.New("constraint inference failed")
	ErrSynthesisFailed           = errors.New("sql synthesis failed")
	ErrRewriteFailed             = errors.New("sql rewrite failed")
)

type Request struct {
	Question   string            `json:"question"`
	DatabaseID string            `json:"db_id"`
	SchemaText string            `json:"schema_text"`
	Profile    ConstraintProfile `json:"profile"`
}

type Result struct {
	SQL    Statement `json:"sql"`
	Raw    string    `json:"raw"`
	Tokens int64     `json:"tokens"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
