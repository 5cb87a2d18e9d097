package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/sqlrag/sqlrag/internal/eval"
)

func TestRecordRunInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	run := eval.RunRecord{
		ID:               uuid.MustParse("5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a"),
		StartedAt:        time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC),
		FinishedAt:       time.Date(2026, 2, 19, 9, 5, 0, 0, time.UTC),
		QuestionCount:    103,
		PlaceholderCount: 2,
		Model:            "gpt-4o-mini",
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO eval_run")).
		WithArgs(run.ID.String(), run.StartedAt, run.FinishedAt, 103, 2, "gpt-4o-mini", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewRunStore(db).RecordRun(context.Background(), run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentRunsScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	started := time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM eval_run")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "started_at", "finished_at", "question_count", "placeholder_count", "model", "artifact_key"}).
			AddRow("5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a", started, started.Add(time.Minute), 10, 1, "gpt-4o-mini", "eval/date=2026-02-19/x/predictions.tsv"))

	runs, err := NewRunStore(db).RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].QuestionCount != 10 || runs[0].ArtifactKey == "" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].ID.String() != "5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a" {
		t.Fatalf("ID = %s", runs[0].ID)
	}
}
