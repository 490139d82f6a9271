package cmd

import (
	"github.com/spf13/cobra"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/engine"
)

// operationsCmd runs the second migration in the sequence.
var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "Run the Operations database migration",
	Long: `Gather the document IDs attached to in-scope supervision cases, then
convert every in-scope Operations table and apply its primary keys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runImporter(cmd.Context(), engine.Operations())
		return err
	},
}

func init() {
	rootCmd.AddCommand(operationsCmd)
}
