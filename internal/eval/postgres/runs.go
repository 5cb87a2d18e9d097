// Package postgres records evaluation runs in the eval_run table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sqlrag/sqlrag/internal/eval"
)

type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) RecordRun(ctx context.Context, run eval.RunRecord) error {
	var artifact any
	if run.ArtifactKey != "" {
		artifact = run.ArtifactKey
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO eval_run (run_id, started_at, finished_at, question_count, placeholder_count, model, artifact_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID.String(), run.StartedAt, run.FinishedAt, run.QuestionCount, run.PlaceholderCount, run.Model, artifact); err != nil {
		return fmt.Errorf("insert eval run: %w", err)
	}
	return nil
}

// RecentRuns lists the latest runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]eval.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, started_at, finished_at, question_count, placeholder_count, model, COALESCE(artifact_key, '')
FROM eval_run
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select eval runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []eval.RunRecord
	for rows.Next() {
		var (
			id       string
			run      eval.RunRecord
			started  time.Time
			finished time.Time
		)
		if err := rows.Scan(&id, &started, &finished, &run.QuestionCount, &run.PlaceholderCount, &run.Model, &run.ArtifactKey); err != nil {
			return nil, fmt.Errorf("scan eval run: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		run.ID = parsed
		run.StartedAt = started.UTC()
		run.FinishedAt = finished.UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eval runs: %w", err)
	}
	return runs, nil
}

var _ eval.RunStore = (*RunStore)(nil)
