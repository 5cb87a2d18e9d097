package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqlrag/sqlrag/internal/eval"
)

// NewSampleCommand creates the sample command.
func NewSampleCommand() *cobra.Command {
	var (
		rate      float64
		seed      int
		questions string
		gold      string
	)

	cmd := &cobra.Command{
		Use:   "sample <dataset.json>",
		Short: "Draw a reproducible evaluation sample",
		Long: `Sample a fraction of a labeled dataset ({"question", "db_id", "query"}
records). Writes the questions without gold queries as JSON and the gold
queries as "<sql>\t<db_id>" lines, both in sample order.`,
		Example: `  sqlrag sample dev.json --rate 0.1 --seed 99`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFrom(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("rate") {
				rate = settings.Config.Eval.SampleRate
			}
			if !cmd.Flags().Changed("seed") {
				seed = settings.Config.Eval.SampleSeed
			}
			return runSample(cmd, settings, args[0], rate, seed, questions, gold)
		},
	}
	cmd.Flags().Float64Var(&rate, "rate", eval.DefaultSampleRate, "fraction of the dataset to keep")
	cmd.Flags().IntVar(&seed, "seed", eval.DefaultSampleSeed, "sampling seed")
	cmd.Flags().StringVar(&questions, "questions", "dev_sample.json", "question file to write")
	cmd.Flags().StringVar(&gold, "gold", "dev_sample_gold.sql", "gold query file to write")
	return cmd
}

func runSample(cmd *cobra.Command, settings Settings, input string, rate float64, seed int, questionsPath, goldPath string) error {
	if seed < 0 {
		return fmt.Errorf("seed must be >= 0, got %d", seed)
	}
	file, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	items, err := eval.LoadDataset(file)
	_ = file.Close()
	if err != nil {
		return err
	}

	sampled, err := eval.Sample(items, rate, uint64(seed))
	if err != nil {
		return err
	}

	out, err := os.Create(questionsPath)
	if err != nil {
		return fmt.Errorf("create questions: %w", err)
	}
	if err := eval.WriteRecords(out, eval.Questions(sampled)); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close questions: %w", err)
	}

	goldFile, err := os.Create(goldPath)
	if err != nil {
		return fmt.Errorf("create gold: %w", err)
	}
	if err := eval.WriteLines(goldFile, eval.GoldLines(sampled)); err != nil {
		_ = goldFile.Close()
		return fmt.Errorf("write gold: %w", err)
	}
	if err := goldFile.Close(); err != nil {
		return fmt.Errorf("close gold: %w", err)
	}

	w := cmd.OutOrStdout()
	if settings.Output == OutputJSON {
		return renderJSON(w, map[string]any{
			"dataset":   len(items),
			"sampled":   len(sampled),
			"questions": questionsPath,
			"gold":      goldPath,
		})
	}
	renderFields(w, [][2]any{
		{"Dataset", len(items)},
		{"Sampled", len(sampled)},
		{"Questions", questionsPath},
		{"Gold", goldPath},
	})
	return nil
}
