package eval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqlrag/sqlrag/internal/storage"
)

const PredictionsArtifact = "predictions.tsv"

// RunRecord is the persisted summary of one evaluation pass.
type RunRecord struct {
	ID               uuid.UUID
	StartedAt        time.Time
	FinishedAt       time.Time
	QuestionCount    int
	PlaceholderCount int
	Model            string
	ArtifactKey      string
}

type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

func (r Report) Record(model string) RunRecord {
	return RunRecord{
		ID:               r.RunID,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		QuestionCount:    len(r.Lines),
		PlaceholderCount: r.Placeholders,
		Model:            model,
	}
}

// Publish uploads the prediction file and then records the run. If
// recording fails the uploaded artifact is removed again. Either
// destination may be nil.
func Publish(ctx context.Context, objects storage.ObjectStore, runs RunStore, report Report, model string) (RunRecord, error) {
	record := report.Record(model)
	if objects != nil {
		key, err := storage.BuildEvalArtifactPath(report.RunID.String(), report.StartedAt, PredictionsArtifact)
		if err != nil {
			return RunRecord{}, err
		}
		body := []byte(strings.Join(report.Lines, "\n"))
		opts := storage.PutOptions{Metadata: map[string]string{
			"run-id": report.RunID.String(),
			"model":  model,
		}}
		if _, err := storage.PutBytes(ctx, objects, key, body, opts); err != nil {
			return RunRecord{}, fmt.Errorf("upload predictions: %w", err)
		}
		record.ArtifactKey = key
	}
	if runs == nil {
		return record, nil
	}
	if err := runs.RecordRun(ctx, record); err != nil {
		if record.ArtifactKey != "" {
			_ = objects.Delete(ctx, record.ArtifactKey)
		}
		return RunRecord{}, fmt.Errorf("record evaluation run: %w", err)
	}
	return record, nil
}
