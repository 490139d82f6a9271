package database

import (
	"context"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
)

func TestDriverName(t *testing.T) {
	cases := []struct {
		provider string
		want     string
	}{
		{"sqlserver", "sqlserver"},
		{"mssql", "sqlserver"},
		{"postgres", "pgx"},
		{"postgresql", "pgx"},
		{"mysql", "mysql"},
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
	}
	for _, tc := range cases {
		got, err := DriverName(tc.provider)
		if err != nil {
			t.Errorf("DriverName(%q): %v", tc.provider, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DriverName(%q) = %q, want %q", tc.provider, got, tc.want)
		}
	}

	if _, err := DriverName("oracle"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestOpenSQLite(t *testing.T) {
	conn, cleanup, err := Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cleanup()

	if _, err := conn.ExecContext(context.Background(), "CREATE TABLE probe (x INTEGER)"); err != nil {
		t.Fatalf("exec on opened connection: %v", err)
	}
}

func TestOpenUnsupportedProvider(t *testing.T) {
	if _, _, err := Open(context.Background(), "oracle", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestQualify(t *testing.T) {
	cases := []struct {
		provider, db, table, want string
	}{
		{"sqlserver", "ElPaso", "TablesToConvert", "ElPaso.dbo.TablesToConvert"},
		{"mssql", "", "TablesToConvert", "dbo.TablesToConvert"},
		{"postgres", "ElPaso", "TablesToConvert", "TablesToConvert"},
		{"sqlite", "", "TablesToConvert", "TablesToConvert"},
	}
	for _, tc := range cases {
		if got := Qualify(tc.provider, tc.db, tc.table); got != tc.want {
			t.Errorf("Qualify(%q, %q, %q) = %q, want %q", tc.provider, tc.db, tc.table, got, tc.want)
		}
	}
}

func TestPlaceholder(t *testing.T) {
	build := func(provider string) string {
		q, _, err := sq.Select("x").From("t").Where(sq.Eq{"y": 1}).
			PlaceholderFormat(Placeholder(provider)).ToSql()
		if err != nil {
			t.Fatal(err)
		}
		return q
	}
	if q := build("postgres"); !strings.Contains(q, "$1") {
		t.Errorf("postgres placeholder: %s", q)
	}
	if q := build("sqlserver"); !strings.Contains(q, "@p1") {
		t.Errorf("sqlserver placeholder: %s", q)
	}
	if q := build("sqlite"); !strings.Contains(q, "?") {
		t.Errorf("sqlite placeholder: %s", q)
	}
}
