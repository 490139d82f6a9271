package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/config"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/lob"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/logging"
)

// lobCmd runs the final pass of the sequence.
var lobCmd = &cobra.Command{
	Use:   "lob",
	Short: "Right-size large-object columns on the migrated tables",
	Long: `Scan the migrated tables for text and oversized varchar columns, measure
their actual content and shrink each column to the smallest type that
fits. Runs after the Financial migration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLOB(cmd.Context())
	},
}

func runLOB(ctx context.Context) error {
	cfg, err := config.Resolve(vip, config.Defaults{LogFile: lob.DefaultLogFile})
	if err != nil {
		return err
	}

	log := logging.NewRunLogger(cfg.LogFile, cfg.Verbose)
	color.Cyan("Starting LOB column pass (run %s)", log.CorrelationID())

	p := lob.New(cfg, log)
	err = p.Run(ctx)

	succeeded, failed := p.Counters.Snapshot()
	fmt.Printf("LOB column pass: %d steps succeeded, %d failed\n", succeeded, failed)
	switch {
	case err != nil:
		color.Red("LOB column pass failed: %v", err)
		color.Red("See %s for details", cfg.LogFile)
	case failed > 0:
		color.Yellow("LOB column pass finished with errors; see %s", cfg.LogFile)
	default:
		color.Green("LOB column pass completed successfully")
	}
	return err
}

func init() {
	rootCmd.AddCommand(lobCmd)
}
