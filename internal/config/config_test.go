package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	Bind(v)
	return v
}

func TestResolveDefaults(t *testing.T) {
	v := newViper(t)
	v.Set("conn_str", "Server=localhost;Database=ElPaso;")

	cfg, err := Resolve(v, Defaults{LogFile: "PreDMSErrorLog_Justice.txt"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.SQLTimeout != DefaultSQLTimeout {
		t.Errorf("SQLTimeout = %d, want default %d", cfg.SQLTimeout, DefaultSQLTimeout)
	}
	if cfg.IncludeEmptyTables || cfg.SkipPKCreation {
		t.Error("boolean toggles should default to false")
	}
	if cfg.Provider != "sqlserver" {
		t.Errorf("Provider = %q, want sqlserver", cfg.Provider)
	}
	if cfg.DatabaseName != "ElPaso" {
		t.Errorf("DatabaseName = %q, want parsed from conn string", cfg.DatabaseName)
	}
	if cfg.LogFile != "PreDMSErrorLog_Justice.txt" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
}

func TestResolvePrecedenceFileEnvFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "values.json")
	if err := os.WriteFile(cfgPath, []byte(`{"sql_timeout": 60, "include_empty_tables": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	// File overlay only.
	v := newViper(t)
	v.Set("conn_str", "Database=X;")
	v.Set("config_file", cfgPath)
	cfg, err := Resolve(v, Defaults{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.SQLTimeout != 60 || !cfg.IncludeEmptyTables {
		t.Errorf("file overlay not applied: timeout=%d include_empty=%v", cfg.SQLTimeout, cfg.IncludeEmptyTables)
	}

	// Environment beats the file.
	t.Setenv(EnvSQLTimeout, "120")
	v = newViper(t)
	v.Set("conn_str", "Database=X;")
	v.Set("config_file", cfgPath)
	cfg, err = Resolve(v, Defaults{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.SQLTimeout != 120 {
		t.Errorf("env should override file: timeout=%d, want 120", cfg.SQLTimeout)
	}

	// A flag-set value beats both.
	v = newViper(t)
	v.Set("conn_str", "Database=X;")
	v.Set("config_file", cfgPath)
	v.Set("sql_timeout", 45)
	cfg, err = Resolve(v, Defaults{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.SQLTimeout != 45 {
		t.Errorf("explicit value should win: timeout=%d, want 45", cfg.SQLTimeout)
	}
}

func TestResolveIncludeEmptyTablesFromEnvFlag(t *testing.T) {
	t.Setenv(EnvIncludeEmptyTables, "1")
	v := newViper(t)
	v.Set("conn_str", "Database=X;")
	cfg, err := Resolve(v, Defaults{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cfg.IncludeEmptyTables {
		t.Error("INCLUDE_EMPTY_TABLES=1 should enable the flag")
	}
}

func TestResolveCSVPathFromDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvCSVDir, dir)
	v := newViper(t)
	v.Set("conn_str", "Database=X;")

	cfg, err := Resolve(v, Defaults{CSVFile: "EJ_Justice_Selects_ALL.csv"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.CSVFile != filepath.Join(dir, "EJ_Justice_Selects_ALL.csv") {
		t.Errorf("CSVFile = %q", cfg.CSVFile)
	}
}

func TestValidateEnumeratesAllProblems(t *testing.T) {
	cfg := &ImportConfiguration{SQLTimeout: 0}
	err := cfg.Validate(Defaults{CSVFile: "x.csv"})
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *ConfigurationError", err)
	}
	if len(ce.Problems) != 3 {
		t.Errorf("problems = %d, want 3 (conn, timeout, csv):\n%v", len(ce.Problems), ce.Problems)
	}
	msg := err.Error()
	for _, want := range []string{EnvTargetConnStr, EnvSQLTimeout, EnvCSVDir} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %s:\n%s", want, msg)
		}
	}
}

func TestValidateRejectsMissingCSVDir(t *testing.T) {
	cfg := &ImportConfiguration{
		ConnStr:    "Database=X;",
		SQLTimeout: 30,
		CSVFile:    filepath.Join(t.TempDir(), "nope", "file.csv"),
	}
	if err := cfg.Validate(Defaults{CSVFile: "file.csv"}); err == nil {
		t.Error("expected error for missing CSV directory")
	}
}

func TestParseDatabaseName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Server=localhost;Database=ElPaso_TX;Trusted_Connection=yes;", "ElPaso_TX"},
		{"server=h;initial catalog=Courts;uid=sa", "Courts"},
		{"Server=h; Database = Spaced ;", "Spaced"},
		{"sqlserver://sa:pw@localhost:1433?database=Target", "Target"},
		{"Server=localhost;", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ParseDatabaseName(tc.in); got != tc.want {
			t.Errorf("ParseDatabaseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
