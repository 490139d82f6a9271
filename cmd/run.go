package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/engine"
)

// runCmd sequences the whole conversion. The operator is asked between
// steps unless --yes was given; declining stops the sequence cleanly.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full migration sequence",
	Long: `Run the Justice, Operations and Financial migrations followed by the
LOB column pass, prompting between steps. The sequence stops at the
first failure or the first declined prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sequence := []engine.Definition{engine.Justice(), engine.Operations(), engine.Financial()}
		for _, def := range sequence {
			proceed, err := runImporter(cmd.Context(), def)
			if err != nil {
				return err
			}
			if !proceed {
				color.Yellow("Stopping after the %s migration", def.Name)
				return nil
			}
		}
		return runLOB(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
