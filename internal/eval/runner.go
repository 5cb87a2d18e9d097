package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sqlrag/sqlrag/internal/observability"
	"github.com/sqlrag/sqlrag/internal/workflow"
)

// Placeholder stands in for a record whose SQL could not be produced.
const Placeholder = "SELECT 1"

const DefaultConcurrency = 4

// Asker answers one question. *workflow.Pipeline satisfies it.
type Asker interface {
	Run(ctx context.Context, question workflow.Question) workflow.Outcome
}

// Report is the result of one evaluation pass. Lines[i] belongs to the
// i-th input record.
type Report struct {
	RunID        uuid.UUID
	StartedAt    time.Time
	FinishedAt   time.Time
	Lines        []string
	Placeholders int
}

type Runner struct {
	asker       Asker
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

func NewRunner(asker Asker, concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{asker: asker, concurrency: concurrency, logger: observability.OrDiscard(logger), now: time.Now}
}

// Run evaluates every record. Output length always equals input length; a
// record that fails for any reason, including cancellation, gets the
// placeholder query.
func (r *Runner) Run(ctx context.Context, records []Record) Report {
	report := Report{RunID: uuid.New(), StartedAt: r.now().UTC(), Lines: make([]string, len(records))}
	placeholder := make([]bool, len(records))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for i, record := range records {
		group.Go(func() error {
			sql, ok := r.evaluate(groupCtx, i, record)
			if !ok {
				placeholder[i] = true
			}
			report.Lines[i] = FormatLine(sql, record.DatabaseID)
			return nil
		})
	}
	_ = group.Wait()

	for _, p := range placeholder {
		if p {
			report.Placeholders++
		}
	}
	report.FinishedAt = r.now().UTC()
	r.logger.InfoContext(ctx, "evaluation finished",
		slog.String("run_id", report.RunID.String()),
		slog.Int("questions", len(records)),
		slog.Int("placeholders", report.Placeholders),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func (r *Runner) evaluate(ctx context.Context, index int, record Record) (sql string, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.ErrorContext(ctx, "evaluation record panicked",
				slog.Int("index", index),
				slog.String("db_id", record.DatabaseID),
				slog.String("panic", fmt.Sprint(recovered)),
			)
			sql, ok = "", false
		}
	}()
	if err := ctx.Err(); err != nil {
		return "", false
	}
	outcome := r.asker.Run(ctx, workflow.Question{Text: record.Question, DatabaseIDs: []string{record.DatabaseID}})
	r.logger.DebugContext(ctx, "evaluated record",
		slog.Int("index", index),
		slog.String("db_id", record.DatabaseID),
		slog.String("status", outcome.Status),
	)
	if outcome.SQL == "" {
		return "", false
	}
	return outcome.SQL, true
}
