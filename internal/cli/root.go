// Package cli provides the local command-line interface for sqlrag.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sqlrag/sqlrag/internal/app"
	"github.com/sqlrag/sqlrag/internal/cli/commands"
	"github.com/sqlrag/sqlrag/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

// NewRootCmd creates the root command. opts lets callers inject model
// clients; the zero value builds them from configuration.
func NewRootCmd(opts app.Options) *cobra.Command {
	var (
		envFile string
		output  string
	)

	rootCmd := &cobra.Command{
		Use:   "sqlrag",
		Short: "Answer natural-language questions with SQL",
		Long: `sqlrag turns natural-language questions into SQL for a catalog of
relational databases, runs the query, and summarizes the result.

Configuration comes from SQLRAG_* environment variables, optionally
loaded from a .env file.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv("sqlrag-cli")
			if err != nil {
				return err
			}
			switch output {
			case commands.OutputTable, commands.OutputJSON:
			default:
				return fmt.Errorf("invalid --output %q: want table or json", output)
			}
			cmd.SetContext(commands.WithSettings(cmd.Context(), commands.Settings{
				Config:  cfg,
				Options: opts,
				Output:  output,
			}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", commands.OutputTable, "Output format (table|json)")
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{commands.OutputTable, commands.OutputJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewAskCommand())
	rootCmd.AddCommand(commands.NewEvalCommand())
	rootCmd.AddCommand(commands.NewSampleCommand())
	rootCmd.AddCommand(commands.NewEmbedCommand())
	rootCmd.AddCommand(commands.NewDatabasesCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd(app.Options{})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadEnvFile loads path if it exists. Variables already in the
// environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
