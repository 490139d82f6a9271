package scripts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSubstitutesDatabaseName(t *testing.T) {
	r := New("")
	sql, err := r.Load("justice/gather_caseids.sql", "Courts_Target")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.Contains(sql, "ELPaso_TX") || strings.Contains(sql, "ElPaso_TX") {
		t.Error("placeholder database name survived substitution")
	}
	if !strings.Contains(sql, "Courts_Target.dbo.SupCaseIDs") {
		t.Errorf("target database name not substituted:\n%s", sql)
	}
}

func TestLoadWithoutDatabaseNameKeepsPlaceholder(t *testing.T) {
	r := New("")
	sql, err := r.Load("justice/gather_caseids.sql", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(sql, PlaceholderDB) {
		t.Error("expected placeholder to remain when no database name given")
	}
}

func TestLoadMissingScript(t *testing.T) {
	r := New("")
	if _, err := r.Load("justice/no_such_script.sql", "X"); err == nil {
		t.Fatal("expected error for missing script")
	}
}

func TestLoadPrefersOnDiskOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "justice"), 0o755); err != nil {
		t.Fatal(err)
	}
	override := "SELECT 1 FROM ELPaso_TX.dbo.Override"
	if err := os.WriteFile(filepath.Join(dir, "justice", "gather_caseids.sql"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(dir)
	sql, err := r.Load("justice/gather_caseids.sql", "Target")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sql != "SELECT 1 FROM Target.dbo.Override" {
		t.Errorf("override not used: %q", sql)
	}

	// Scripts absent from the override directory still come from the
	// embedded set.
	if _, err := r.Load("justice/update_joins.sql", "Target"); err != nil {
		t.Errorf("embedded fallback failed: %v", err)
	}
}

func TestEmbeddedScriptSetIsComplete(t *testing.T) {
	names := []string{
		"justice/gather_caseids.sql",
		"justice/gather_chargeids.sql",
		"justice/gather_partyids.sql",
		"justice/gather_warrantids.sql",
		"justice/gather_hearingids.sql",
		"justice/gather_eventids.sql",
		"justice/gather_drops_and_selects.sql",
		"justice/update_joins.sql",
		"justice/create_primarykeys.sql",
		"operations/gather_documentids.sql",
		"operations/gather_drops_and_selects_operations.sql",
		"operations/update_joins_operations.sql",
		"operations/create_primarykeys_operations.sql",
		"financial/gather_feeids.sql",
		"financial/gather_paymentids.sql",
		"financial/gather_drops_and_selects_financial.sql",
		"financial/update_joins_financial.sql",
		"financial/create_primarykeys_financial.sql",
		"lob/gather_lobs.sql",
	}
	r := New("")
	for _, name := range names {
		if _, err := r.Load(name, "X"); err != nil {
			t.Errorf("missing embedded script %s: %v", name, err)
		}
	}
}
