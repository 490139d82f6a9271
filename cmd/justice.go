package cmd

import (
	"github.com/spf13/cobra"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/engine"
)

// justiceCmd runs the first migration in the sequence.
var justiceCmd = &cobra.Command{
	Use:   "justice",
	Short: "Run the Justice database migration",
	Long: `Gather the supervision case, charge, party, warrant, hearing and event
IDs in scope, then convert every in-scope Justice table and apply its
primary keys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runImporter(cmd.Context(), engine.Justice())
		return err
	},
}

func init() {
	rootCmd.AddCommand(justiceCmd)
}
