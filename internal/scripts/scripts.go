// Package scripts is the repository of named SQL blobs the importers run.
// Scripts are embedded in the binary and addressed by logical path
// (e.g. "justice/gather_caseids.sql"); an on-disk directory can override
// the embedded set for site-specific script changes.
//
// The script text is written against a placeholder database name which is
// substituted with the actual target database at load time, so the same
// scripts run against any target. The engine never parses script semantics
// beyond statement splitting.
package scripts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed sql_scripts
var embedded embed.FS

// PlaceholderDB is the database name the checked-in scripts are written
// against. Both historical casings appear in the script set.
const PlaceholderDB = "ELPaso_TX"

var placeholderCasings = []string{"ELPaso_TX", "ElPaso_TX"}

// Repository loads scripts by logical name.
type Repository struct {
	dir string // optional on-disk override, empty = embedded only
}

// New returns a Repository. dir may be empty to serve only the embedded
// scripts.
func New(dir string) *Repository {
	return &Repository{dir: dir}
}

// Load reads the named script and substitutes the placeholder database name
// with dbName. An empty dbName leaves the placeholder in place.
func (r *Repository) Load(name, dbName string) (string, error) {
	text, err := r.read(name)
	if err != nil {
		return "", err
	}
	if dbName != "" {
		for _, casing := range placeholderCasings {
			text = strings.ReplaceAll(text, casing, dbName)
		}
	}
	return text, nil
}

func (r *Repository) read(name string) (string, error) {
	if r.dir != "" {
		path := filepath.Join(r.dir, filepath.FromSlash(name))
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("reading SQL script %s: %w", path, err)
		}
		// fall back to the embedded copy
	}

	data, err := embedded.ReadFile("sql_scripts/" + name)
	if err != nil {
		return "", fmt.Errorf("SQL script not found: %s", name)
	}
	return string(data), nil
}
