package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/config"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/engine"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/logging"
)

// runImporter resolves configuration, runs one migration and prints the
// final tally. The returned proceed mirrors the operator's answer to the
// completion prompt.
func runImporter(ctx context.Context, def engine.Definition) (bool, error) {
	cfg, err := config.Resolve(vip, config.Defaults{CSVFile: def.DefaultCSVFile, LogFile: def.DefaultLogFile})
	if err != nil {
		return false, err
	}

	log := logging.NewRunLogger(cfg.LogFile, cfg.Verbose)
	color.Cyan("Starting %s migration (run %s)", def.Name, log.CorrelationID())

	eng := engine.New(def, cfg, log)
	eng.Confirm = consoleConfirm(cfg.AssumeYes)

	proceed, err := eng.Run(ctx)

	succeeded, failed := eng.Counters.Snapshot()
	fmt.Printf("%s migration: %d steps succeeded, %d failed\n", def.Name, succeeded, failed)
	switch {
	case err != nil:
		color.Red("%s migration failed: %v", def.Name, err)
		color.Red("See %s for details", cfg.LogFile)
	case failed > 0:
		color.Yellow("%s migration finished with errors; see %s", def.Name, cfg.LogFile)
	default:
		color.Green("%s migration completed successfully", def.Name)
	}
	return proceed, err
}

// consoleConfirm prompts on stdin. With --yes every prompt is answered
// affirmatively; otherwise anything but y/yes stops the sequence, including
// a closed stdin on headless runs.
func consoleConfirm(assumeYes bool) func(string) bool {
	return func(prompt string) bool {
		if assumeYes {
			return true
		}
		fmt.Printf("%s [y/N]: ", prompt)
		answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}
