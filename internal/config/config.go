// Package config resolves the immutable per-run ImportConfiguration.
// Precedence, highest first: CLI flags, environment variables, JSON config
// file, built-in defaults. Resolution happens once before any database work
// and the struct is never mutated after the run starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable names recognized by every importer.
const (
	EnvTargetConnStr      = "MSSQL_TARGET_CONN_STR"
	EnvCSVDir             = "EJ_CSV_DIR"
	EnvLogDir             = "EJ_LOG_DIR"
	EnvSQLDir             = "EJ_SQL_DIR"
	EnvIncludeEmptyTables = "INCLUDE_EMPTY_TABLES"
	EnvSkipPKCreation     = "SKIP_PK_CREATION"
	EnvSQLTimeout         = "SQL_TIMEOUT"
	EnvProvider           = "EJ_DB_PROVIDER"
)

// DefaultSQLTimeout is the per-statement lock/wait timeout in seconds.
const DefaultSQLTimeout = 300

// ImportConfiguration is resolved once per run and treated as read-only
// afterwards.
type ImportConfiguration struct {
	ConnStr      string
	Provider     string
	DatabaseName string

	CSVFile    string
	LogFile    string
	ScriptsDir string

	IncludeEmptyTables bool
	SkipPKCreation     bool
	SQLTimeout         int

	Verbose   bool
	AssumeYes bool
}

// Defaults carries the per-importer file name defaults supplied by each
// importer definition.
type Defaults struct {
	CSVFile string // empty when the importer has no join CSV
	LogFile string
}

// ConfigurationError enumerates every missing or invalid setting so the
// operator can fix them all in one pass.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "missing or invalid configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// Bind registers defaults and environment bindings on v. Called once from
// command setup; flag bindings are added per command on top of this.
func Bind(v *viper.Viper) {
	v.SetDefault("include_empty_tables", false)
	v.SetDefault("skip_pk_creation", false)
	v.SetDefault("sql_timeout", DefaultSQLTimeout)
	v.SetDefault("provider", "sqlserver")

	_ = v.BindEnv("conn_str", EnvTargetConnStr)
	_ = v.BindEnv("csv_dir", EnvCSVDir)
	_ = v.BindEnv("log_dir", EnvLogDir)
	_ = v.BindEnv("scripts_dir", EnvSQLDir)
	_ = v.BindEnv("include_empty_tables", EnvIncludeEmptyTables)
	_ = v.BindEnv("skip_pk_creation", EnvSkipPKCreation)
	_ = v.BindEnv("sql_timeout", EnvSQLTimeout)
	_ = v.BindEnv("provider", EnvProvider)
}

// Resolve builds the run configuration from v, applying the optional JSON
// config file overlay underneath env and flag values, then validates it.
func Resolve(v *viper.Viper, def Defaults) (*ImportConfiguration, error) {
	if cfgFile := v.GetString("config_file"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigurationError{Problems: []string{
				fmt.Sprintf("config file %s: %v", cfgFile, err),
			}}
		}
	}

	cfg := &ImportConfiguration{
		ConnStr:            v.GetString("conn_str"),
		Provider:           v.GetString("provider"),
		ScriptsDir:         v.GetString("scripts_dir"),
		IncludeEmptyTables: v.GetBool("include_empty_tables"),
		SkipPKCreation:     v.GetBool("skip_pk_creation"),
		SQLTimeout:         v.GetInt("sql_timeout"),
		Verbose:            v.GetBool("verbose"),
		AssumeYes:          v.GetBool("yes"),
	}

	// The historical toggles use "1"; GetBool already accepts that, but an
	// explicit check keeps any other non-empty spelling from enabling them.
	if s := v.GetString("include_empty_tables"); s == "1" {
		cfg.IncludeEmptyTables = true
	}
	if s := v.GetString("skip_pk_creation"); s == "1" {
		cfg.SkipPKCreation = true
	}

	cfg.DatabaseName = v.GetString("database_name")
	if cfg.DatabaseName == "" {
		cfg.DatabaseName = ParseDatabaseName(cfg.ConnStr)
	}

	cfg.LogFile = v.GetString("log_file")
	if cfg.LogFile == "" && def.LogFile != "" {
		cfg.LogFile = filepath.Join(v.GetString("log_dir"), def.LogFile)
	}

	cfg.CSVFile = v.GetString("csv_file")
	if cfg.CSVFile == "" && def.CSVFile != "" {
		cfg.CSVFile = filepath.Join(v.GetString("csv_dir"), def.CSVFile)
	}

	if err := cfg.Validate(def); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration, collecting every problem
// before any database work begins.
func (c *ImportConfiguration) Validate(def Defaults) error {
	var problems []string

	if c.ConnStr == "" {
		problems = append(problems, EnvTargetConnStr+": database connection string is required")
	}
	if c.SQLTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("%s: timeout must be a positive number of seconds, got %d", EnvSQLTimeout, c.SQLTimeout))
	}
	if def.CSVFile != "" {
		if c.CSVFile == "" {
			problems = append(problems, EnvCSVDir+": directory containing the join-definition CSV files is required")
		} else if dir := filepath.Dir(c.CSVFile); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				problems = append(problems, fmt.Sprintf("%s: path does not exist: %s", EnvCSVDir, dir))
			}
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// ParseDatabaseName extracts the database name from a connection string.
// Both key=value strings (Database=..., Initial Catalog=...) and URL forms
// (sqlserver://host?database=...) are recognized.
func ParseDatabaseName(connStr string) string {
	for _, part := range strings.Split(connStr, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		if key == "database" || key == "initial catalog" {
			return strings.TrimSpace(kv[1])
		}
	}
	if idx := strings.Index(connStr, "?"); idx >= 0 {
		for _, part := range strings.Split(connStr[idx+1:], "&") {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) == 2 && strings.EqualFold(strings.TrimSpace(kv[0]), "database") {
				return strings.TrimSpace(kv[1])
			}
		}
	}
	return ""
}
