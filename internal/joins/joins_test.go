package joins

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	return db
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "selects.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const header = "DatabaseName|SchemaName|TableName|Freq|InScopeFreq|Select_Only|fConvert|Drop_IfExists|Selection|Select_Into"

func TestImportCSVLoadsRows(t *testing.T) {
	db := openSQLite(t)
	csvPath := writeCSV(t, header+"\n"+
		"Justice|dbo|SupCase|1200|800|0|1|DROP TABLE IF EXISTS SupCase|SELECT * FROM SupCase s|SELECT s.* INTO SupCase FROM Justice.dbo.SupCase s\n"+
		"Justice|dbo|SupParty|300|300|0|1|DROP TABLE IF EXISTS SupParty|SELECT * FROM SupParty p|SELECT p.* INTO SupParty FROM Justice.dbo.SupParty p\n")

	imp := &Importer{Provider: "sqlite"}
	n, err := imp.ImportCSV(context.Background(), db, "", csvPath)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if n != 2 {
		t.Errorf("rows loaded = %d, want 2", n)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM TableUsedSelects").Scan(&count); err != nil {
		t.Fatalf("counting staging rows: %v", err)
	}
	if count != 2 {
		t.Errorf("staging table has %d rows, want 2", count)
	}

	var table, sel string
	err = db.QueryRow("SELECT TableName, Selection FROM TableUsedSelects WHERE TableName = 'SupParty'").Scan(&table, &sel)
	if err != nil {
		t.Fatalf("reading staging row: %v", err)
	}
	if sel != "SELECT * FROM SupParty p" {
		t.Errorf("Selection = %q", sel)
	}
}

func TestImportCSVAppendsSuffixToStagingTable(t *testing.T) {
	db := openSQLite(t)
	csvPath := writeCSV(t, header+"\n"+
		"Ops|dbo|Document|10|10|0|1|DROP TABLE IF EXISTS Document|SELECT * FROM Document d|SELECT d.* INTO Document FROM Ops.dbo.Document d\n")

	imp := &Importer{Provider: "sqlite"}
	if _, err := imp.ImportCSV(context.Background(), db, "_Operations", csvPath); err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM TableUsedSelects_Operations").Scan(&count); err != nil {
		t.Fatalf("suffixed staging table missing: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestImportCSVReplacesExistingStagingTable(t *testing.T) {
	db := openSQLite(t)
	csvPath := writeCSV(t, header+"\n"+
		"J|dbo|T1|1|1|0|1|d|s|si\n")

	imp := &Importer{Provider: "sqlite"}
	ctx := context.Background()
	if _, err := imp.ImportCSV(ctx, db, "", csvPath); err != nil {
		t.Fatalf("first import: %v", err)
	}
	// Second run must drop and rebuild, not append.
	if _, err := imp.ImportCSV(ctx, db, "", csvPath); err != nil {
		t.Fatalf("second import: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM TableUsedSelects").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows after reimport = %d, want 1", count)
	}
}

func TestImportCSVToleratesReorderedColumns(t *testing.T) {
	db := openSQLite(t)
	csvPath := writeCSV(t, "TableName|DatabaseName|SchemaName|Freq|InScopeFreq|Select_Only|fConvert|Drop_IfExists|Selection|Select_Into\n"+
		"SupCase|Justice|dbo|1|1|0|1|d|s|si\n")

	imp := &Importer{Provider: "sqlite"}
	if _, err := imp.ImportCSV(context.Background(), db, "", csvPath); err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	var dbName, tbl string
	err := db.QueryRow("SELECT DatabaseName, TableName FROM TableUsedSelects").Scan(&dbName, &tbl)
	if err != nil {
		t.Fatal(err)
	}
	if dbName != "Justice" || tbl != "SupCase" {
		t.Errorf("columns misprojected: DatabaseName=%q TableName=%q", dbName, tbl)
	}
}

func TestImportCSVMissingFileIsFatal(t *testing.T) {
	db := openSQLite(t)
	imp := &Importer{Provider: "sqlite"}
	_, err := imp.ImportCSV(context.Background(), db, "", filepath.Join(t.TempDir(), "absent.csv"))
	if err == nil {
		t.Fatal("expected error for missing CSV")
	}
	if !strings.Contains(err.Error(), "absent.csv") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestImportCSVMissingColumn(t *testing.T) {
	db := openSQLite(t)
	csvPath := writeCSV(t, "DatabaseName|SchemaName|TableName\nJ|dbo|T\n")
	imp := &Importer{Provider: "sqlite"}
	_, err := imp.ImportCSV(context.Background(), db, "", csvPath)
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	if !strings.Contains(err.Error(), "fConvert") {
		t.Errorf("error should name a missing column: %v", err)
	}
}

func TestImportCSVEmptyFile(t *testing.T) {
	db := openSQLite(t)
	csvPath := writeCSV(t, "")
	imp := &Importer{Provider: "sqlite"}
	if _, err := imp.ImportCSV(context.Background(), db, "", csvPath); err == nil {
		t.Fatal("expected error for empty CSV")
	}
}

func TestImportCSVBatchesLargeFiles(t *testing.T) {
	db := openSQLite(t)
	var b strings.Builder
	b.WriteString(header + "\n")
	for n := 0; n < 7; n++ {
		b.WriteString("J|dbo|T|1|1|0|1|d|s|si\n")
	}
	csvPath := writeCSV(t, b.String())

	imp := &Importer{Provider: "sqlite", BatchSize: 3}
	n, err := imp.ImportCSV(context.Background(), db, "", csvPath)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if n != 7 {
		t.Errorf("rows loaded = %d, want 7", n)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM TableUsedSelects").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 7 {
		t.Errorf("staging rows = %d, want 7", count)
	}
}
