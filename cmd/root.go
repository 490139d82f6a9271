package cmd

import (
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/config"
)

var (
	vip     = viper.New()
	Version = "1.4.0"
)

func showBanner() {
	header := color.New(color.FgGreen, color.Bold)

	banner := []string{
		"╔══════════════════════════════════════════════╗",
		"║        EJ Supervision Importer               ║",
		"║   Court supervision database migration       ║",
		"╚══════════════════════════════════════════════╝",
	}
	for _, line := range banner {
		header.Println(line)
	}
	color.New(color.FgCyan, color.Bold).Print("Version: ")
	color.New(color.FgYellow, color.Bold).Printf("%s\n", Version)
}

var rootCmd = &cobra.Command{
	Use:   "ejimport",
	Short: "Migrate EJ supervision data between court database servers",
	Long: `
EJ Supervision Importer stages court supervision data for DMS conversion.

The standard sequence migrates three databases and then right-sizes
large-object columns:

  justice     -> operations -> financial -> lob

Each migration gathers the in-scope record IDs, builds its conversion
catalog, imports the site's join definition CSV, converts every in-scope
table and applies primary key constraints. Failed tables are logged and
skipped so one bad table never stops a migration.`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		showBanner()
		_ = cmd.Help()
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config-file", "", "JSON config file overlaying the environment")
	pf.Bool("yes", false, "Answer yes to all prompts")
	pf.Bool("verbose", false, "Enable debug logging")
	pf.Bool("include-empty", false, "Convert tables with no rows in scope")
	pf.Bool("skip-pk-creation", false, "Skip primary key and constraint creation")
	pf.String("csv-file", "", "Join definition CSV (overrides EJ_CSV_DIR default)")
	pf.String("log-file", "", "Error log file (overrides EJ_LOG_DIR default)")
	pf.String("scripts-dir", "", "Directory overriding the embedded SQL scripts")
	pf.Int("sql-timeout", config.DefaultSQLTimeout, "Per-statement timeout in seconds")

	_ = vip.BindPFlag("config_file", pf.Lookup("config-file"))
	_ = vip.BindPFlag("yes", pf.Lookup("yes"))
	_ = vip.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = vip.BindPFlag("include_empty_tables", pf.Lookup("include-empty"))
	_ = vip.BindPFlag("skip_pk_creation", pf.Lookup("skip-pk-creation"))
	_ = vip.BindPFlag("csv_file", pf.Lookup("csv-file"))
	_ = vip.BindPFlag("log_file", pf.Lookup("log-file"))
	_ = vip.BindPFlag("scripts_dir", pf.Lookup("scripts-dir"))
	_ = vip.BindPFlag("sql_timeout", pf.Lookup("sql-timeout"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load(".env.local")
	}
	config.Bind(vip)
}
