package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/sqlrag/sqlrag/internal/app"
	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/observability"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// Settings carries the resolved configuration from the root command to
// its subcommands.
type Settings struct {
	Config  config.Config
	Options app.Options
	Output  string
}

type settingsKey struct{}

func WithSettings(ctx context.Context, settings Settings) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, settingsKey{}, settings)
}

func settingsFrom(cmd *cobra.Command) (Settings, error) {
	settings, ok := cmd.Context().Value(settingsKey{}).(Settings)
	if !ok {
		return Settings{}, errors.New("configuration not loaded")
	}
	return settings, nil
}

// newRuntime builds the pipeline runtime. Logs go to stderr so stdout
// stays parseable.
func newRuntime(cmd *cobra.Command, settings Settings) (*app.Runtime, error) {
	logger := observability.NewLogger(settings.Config, cmd.ErrOrStderr())
	return app.Build(cmd.Context(), settings.Config, logger, settings.Options)
}
