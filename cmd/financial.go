package cmd

import (
	"github.com/spf13/cobra"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/engine"
)

// financialCmd runs the third migration in the sequence.
var financialCmd = &cobra.Command{
	Use:   "financial",
	Short: "Run the Financial database migration",
	Long: `Gather the fee and payment IDs attached to in-scope supervision cases,
then convert every in-scope Financial table and apply its primary keys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runImporter(cmd.Context(), engine.Financial())
		return err
	},
}

func init() {
	rootCmd.AddCommand(financialCmd)
}
