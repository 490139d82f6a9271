// Package joins loads the per-site join definition CSV into the staging
// table the gather scripts read. The CSV is pipe-delimited and produced by
// the conversion analysts; one staging table exists per importer
// (TableUsedSelects plus the importer's suffix) and is dropped and rebuilt
// on every run so stale definitions never survive.
package joins

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	sq "github.com/Masterminds/squirrel"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/database"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/logging"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/sqlexec"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/sqlsafe"
)

// StagingTableBase is the name the join staging table is built from; each
// importer appends its table suffix.
const StagingTableBase = "TableUsedSelects"

// Columns lists the CSV header columns in canonical order. The staging
// table carries exactly these columns, all as text; typing is deferred to
// the gather scripts that consume them.
var Columns = []string{
	"DatabaseName",
	"SchemaName",
	"TableName",
	"Freq",
	"InScopeFreq",
	"Select_Only",
	"fConvert",
	"Drop_IfExists",
	"Selection",
	"Select_Into",
}

// Importer loads one join definition CSV into the staging table.
type Importer struct {
	Provider     string
	DatabaseName string
	Log          *logging.Logger

	// BatchSize bounds multi-row INSERTs on targets without bulk copy.
	// Zero means the default.
	BatchSize int
}

const defaultBatchSize = 500

// ImportCSV reads the CSV at csvPath, recreates the staging table for the
// given importer suffix and loads every row. A missing or unreadable CSV is
// fatal for the run; the failure is appended to the error log before
// returning. Returns the number of rows loaded.
func (i *Importer) ImportCSV(ctx context.Context, q sqlexec.Querier, suffix, csvPath string) (int, error) {
	table := StagingTableBase + suffix
	if _, err := sqlsafe.ValidateIdentifier(table); err != nil {
		return 0, fmt.Errorf("staging table name: %w", err)
	}

	rows, err := readRows(csvPath)
	if err != nil {
		err = fmt.Errorf("join definition CSV %s: %w", csvPath, err)
		if i.Log != nil {
			i.Log.LogErrorToFile(err.Error())
		}
		return 0, err
	}

	qualified := database.Qualify(i.Provider, i.DatabaseName, table)
	if err := i.recreate(ctx, q, qualified); err != nil {
		return 0, err
	}
	if err := i.load(ctx, q, qualified, rows); err != nil {
		return 0, err
	}

	if i.Log != nil {
		i.Log.Infof("Loaded %d join definitions into %s", len(rows), table)
	}
	return len(rows), nil
}

// readRows parses the pipe-delimited CSV and projects every record into
// canonical column order, so analysts may reorder columns in the file.
func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '|'
	// Selection fragments routinely contain unescaped quotes.
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for pos, name := range header {
		index[strings.TrimSpace(name)] = pos
	}
	order := make([]int, len(Columns))
	var missing []string
	for n, col := range Columns {
		pos, ok := index[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		order[n] = pos
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var rows [][]string
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]string, len(Columns))
		for n, pos := range order {
			row[n] = record[pos]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (i *Importer) recreate(ctx context.Context, q sqlexec.Querier, qualified string) error {
	if _, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+qualified); err != nil {
		return fmt.Errorf("dropping staging table %s: %w", qualified, err)
	}

	cols := make([]string, len(Columns))
	for n, col := range Columns {
		cols[n] = col + " " + i.textType()
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", qualified, strings.Join(cols, ", "))
	if _, err := q.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating staging table %s: %w", qualified, err)
	}
	return nil
}

func (i *Importer) textType() string {
	switch i.Provider {
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	}
	return "TEXT"
}

// preparer is satisfied by *sql.Conn and *sql.Tx; bulk copy needs a
// prepared statement, which the Querier interface does not expose.
type preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (i *Importer) load(ctx context.Context, q sqlexec.Querier, qualified string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	switch i.Provider {
	case "sqlserver", "mssql":
		if p, ok := q.(preparer); ok {
			return i.bulkCopy(ctx, p, qualified, rows)
		}
	}
	return i.batchInsert(ctx, q, qualified, rows)
}

func (i *Importer) bulkCopy(ctx context.Context, p preparer, qualified string, rows [][]string) error {
	stmt, err := p.PrepareContext(ctx, mssql.CopyIn(qualified, mssql.BulkOptions{Tablock: true}, Columns...))
	if err != nil {
		return fmt.Errorf("preparing bulk copy into %s: %w", qualified, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, len(row))
		for n, v := range row {
			args[n] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("bulk copy row into %s: %w", qualified, err)
		}
	}
	// Final exec with no arguments flushes the bulk batch.
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing bulk copy into %s: %w", qualified, err)
	}
	return nil
}

func (i *Importer) batchInsert(ctx context.Context, q sqlexec.Querier, qualified string, rows [][]string) error {
	size := i.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	placeholder := database.Placeholder(i.Provider)

	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		ib := sq.Insert(qualified).Columns(Columns...).PlaceholderFormat(placeholder)
		for _, row := range rows[start:end] {
			vals := make([]any, len(row))
			for n, v := range row {
				vals[n] = v
			}
			ib = ib.Values(vals...)
		}
		sqlText, args, err := ib.ToSql()
		if err != nil {
			return fmt.Errorf("building insert for %s: %w", qualified, err)
		}
		if _, err := q.ExecContext(ctx, sqlText, args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", qualified, err)
		}
	}
	return nil
}
