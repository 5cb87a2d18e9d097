package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewEmbedCommand creates the embed command.
func NewEmbedCommand() *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "embed [db_id...]",
		Short: "Precompute database embeddings",
		Long: `Embed the full schema text of each database and store the vectors in the
configured embedding store (a parquet file, or Postgres when
SQLRAG_EMBEDDING_DB_DSN is set). These vectors rank candidate databases
when a question names more than one. Without arguments every database in
the catalog is embedded.`,
		Example: `  sqlrag embed
  sqlrag embed car_1 pets_1 --publish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFrom(cmd)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd, settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			items, err := rt.EmbedDatabases(cmd.Context(), args, publish)
			if err != nil {
				return err
			}

			if settings.Output == OutputJSON {
				type embedded struct {
					Database  string `json:"db_id"`
					Model     string `json:"model"`
					Dimension int    `json:"dimension"`
				}
				out := make([]embedded, len(items))
				for i, item := range items {
					out[i] = embedded{Database: item.Database, Model: item.Model, Dimension: len(item.Vector)}
				}
				return renderJSON(cmd.OutOrStdout(), out)
			}
			rows := make([]table.Row, len(items))
			for i, item := range items {
				rows[i] = table.Row{item.Database, item.Model, len(item.Vector)}
			}
			renderTable(cmd.OutOrStdout(), table.Row{"Database", "Model", "Dimension"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "also upload the embeddings file to the object store")
	return cmd
}
