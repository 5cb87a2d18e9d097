package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sqlrag/sqlrag/internal/workflow"
)

// NewAskCommand creates the ask command.
func NewAskCommand() *cobra.Command {
	var dbIDs []string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Long: `Translate a question into SQL, run it, and summarize the result.

With one --db the question targets that database. With several, the best
match by embedding similarity is used. Without --db every database in the
catalog is a candidate.`,
		Example: `  sqlrag ask --db car_1 "How many car makers are there?"
  sqlrag ask --db concert_singer --db singer "Who is the oldest singer?" -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), dbIDs)
		},
	}
	cmd.Flags().StringSliceVar(&dbIDs, "db", nil, "candidate database id (repeatable)")
	return cmd
}

func runAsk(cmd *cobra.Command, question string, dbIDs []string) error {
	settings, err := settingsFrom(cmd)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd, settings)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	outcome := rt.Pipeline.Run(cmd.Context(), workflow.Question{Text: question, DatabaseIDs: dbIDs})

	w := cmd.OutOrStdout()
	if settings.Output == OutputJSON {
		return renderJSON(w, outcome)
	}

	fields := [][2]any{
		{"Database", outcome.Database},
		{"Status", outcome.Status},
		{"SQL", outcome.SQL},
	}
	if outcome.Failure != "" {
		fields = append(fields, [2]any{"Failure", outcome.Failure})
	}
	renderFields(w, fields)
	if len(outcome.Candidates) > 0 {
		rows := make([]table.Row, len(outcome.Candidates))
		for i, candidate := range outcome.Candidates {
			rows[i] = table.Row{candidate.Database, fmt.Sprintf("%.4f", candidate.Score)}
		}
		renderTable(w, table.Row{"Candidate", "Score"}, rows)
	}
	_, _ = fmt.Fprintln(w, outcome.Answer)
	return nil
}
