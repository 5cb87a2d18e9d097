package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sqlrag/sqlrag/internal/databases"
)

// NewDatabasesCommand creates the databases command.
func NewDatabasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List databases in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := settingsFrom(cmd)
			if err != nil {
				return err
			}
			catalog := databases.NewCatalog(settings.Config.Databases.Root)
			if err := catalog.RegisterAll(settings.Config.Databases.Targets); err != nil {
				return err
			}
			ids, err := catalog.List()
			if err != nil {
				return err
			}

			targets := make([]databases.Target, 0, len(ids))
			for _, id := range ids {
				target, err := catalog.Resolve(id)
				if err != nil {
					return err
				}
				targets = append(targets, target)
			}

			if settings.Output == OutputJSON {
				type listed struct {
					Database string `json:"db_id"`
					Dialect  string `json:"dialect"`
				}
				out := make([]listed, len(targets))
				for i, target := range targets {
					out[i] = listed{Database: target.ID, Dialect: string(target.Dialect)}
				}
				return renderJSON(cmd.OutOrStdout(), out)
			}
			rows := make([]table.Row, len(targets))
			for i, target := range targets {
				rows[i] = table.Row{target.ID, target.Dialect}
			}
			renderTable(cmd.OutOrStdout(), table.Row{"Database", "Dialect"}, rows)
			return nil
		},
	}
}
