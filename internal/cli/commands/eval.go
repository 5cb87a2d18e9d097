package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqlrag/sqlrag/internal/eval"
)

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	var (
		predictions string
		concurrency int
		publish     bool
	)

	cmd := &cobra.Command{
		Use:   "eval <questions.json>",
		Short: "Generate SQL for a question set",
		Long: `Run every question in a JSON array of {"question", "db_id"} records
through the pipeline and write one "<sql>\t<db_id>" line per question, in
input order. Questions that produce no SQL get "SELECT 1".`,
		Example: `  sqlrag eval dev_sample.json --predictions predicted_sql.txt
  sqlrag eval dev.json --concurrency 8 --publish`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args[0], predictions, concurrency, publish)
		},
	}
	cmd.Flags().StringVar(&predictions, "predictions", "predicted_sql.txt", "prediction file to write")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "questions in flight (default from SQLRAG_EVAL_CONCURRENCY)")
	cmd.Flags().BoolVar(&publish, "publish", false, "upload predictions and record the run when configured")
	return cmd
}

func runEval(cmd *cobra.Command, input, predictions string, concurrency int, publish bool) error {
	settings, err := settingsFrom(cmd)
	if err != nil {
		return err
	}
	records, err := eval.LoadRecordsFile(input)
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = settings.Config.Eval.Concurrency
	}

	rt, err := newRuntime(cmd, settings)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	report := eval.NewRunner(rt.Pipeline, concurrency, rt.Logger).Run(cmd.Context(), records)

	file, err := os.Create(predictions)
	if err != nil {
		return fmt.Errorf("create predictions: %w", err)
	}
	if err := eval.WriteLines(file, report.Lines); err != nil {
		_ = file.Close()
		return fmt.Errorf("write predictions: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close predictions: %w", err)
	}

	record := report.Record(rt.Model())
	if publish {
		record, err = eval.Publish(cmd.Context(), rt.Objects, rt.Runs, report, rt.Model())
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if settings.Output == OutputJSON {
		return renderJSON(w, map[string]any{
			"run_id":       record.ID.String(),
			"questions":    record.QuestionCount,
			"placeholders": record.PlaceholderCount,
			"predictions":  predictions,
			"artifact_key": record.ArtifactKey,
		})
	}
	fields := [][2]any{
		{"Run", record.ID.String()},
		{"Questions", record.QuestionCount},
		{"Placeholders", record.PlaceholderCount},
		{"Duration", record.FinishedAt.Sub(record.StartedAt).Round(time.Millisecond)},
		{"Predictions", predictions},
	}
	if record.ArtifactKey != "" {
		fields = append(fields, [2]any{"Artifact", record.ArtifactKey})
	}
	renderFields(w, fields)
	return nil
}
