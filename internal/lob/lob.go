// Package lob right-sizes large-object columns after the table migrations.
// Text and oversized varchar columns are measured against their actual
// content, the derived ALTER statements are recorded in the
// LOB_COLUMN_UPDATES catalog, then executed largest-first so the most
// expensive rewrites surface problems early. Each ALTER runs in its own
// transaction; one failure never stops the rest.
package lob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/config"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/database"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/logging"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/scripts"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/sqlexec"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/sqlsafe"
)

// CatalogTable records the derived column alterations.
const CatalogTable = "LOB_COLUMN_UPDATES"

// GatherScript builds the catalog table.
const GatherScript = "lob/gather_lobs.sql"

// DefaultLogFile is the LOB pass error log default.
const DefaultLogFile = "PreDMSErrorLog_LOB.txt"

// varcharCeiling is the widest VARCHAR the pass will emit; anything longer
// stays a large-object type.
const varcharCeiling = 8000

// Column is one LOB candidate found in the system catalog.
type Column struct {
	SchemaName    string
	TableName     string
	ColumnName    string
	DataType      string
	CurrentLength sql.NullInt64
	RowCnt        sql.NullInt64
	MaxLen        sql.NullInt64
}

// Processor runs the LOB column pass.
type Processor struct {
	Cfg      *config.ImportConfiguration
	Log      *logging.Logger
	Scripts  *scripts.Repository
	Counters *sqlexec.Counters

	Connect func(ctx context.Context) (sqlexec.Conn, func(), error)
}

// New builds a Processor with the production connector.
func New(cfg *config.ImportConfiguration, log *logging.Logger) *Processor {
	p := &Processor{
		Cfg:      cfg,
		Log:      log,
		Scripts:  scripts.New(cfg.ScriptsDir),
		Counters: &sqlexec.Counters{},
	}
	p.Connect = func(ctx context.Context) (sqlexec.Conn, func(), error) {
		conn, cleanup, err := database.Open(ctx, cfg.Provider, cfg.ConnStr)
		if err != nil {
			return nil, nil, err
		}
		return sqlexec.Wrap(conn), cleanup, nil
	}
	return p
}

// Run executes the pass: build the catalog, scan and measure candidates on
// SQL Server targets, then apply the recorded alterations.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.Cfg.Validate(config.Defaults{LogFile: DefaultLogFile}); err != nil {
		return err
	}
	p.Log.Infof("Starting LOB column pass against %s", p.Cfg.DatabaseName)

	conn, cleanup, err := p.Connect(ctx)
	if err != nil {
		return p.fail(fmt.Errorf("connecting to target: %w", err))
	}
	defer cleanup()

	exec := sqlexec.NewExecutor(time.Duration(p.Cfg.SQLTimeout)*time.Second, 0, p.Cfg.Provider, p.Counters, p.Log)

	text, err := p.Scripts.Load(GatherScript, p.Cfg.DatabaseName)
	if err != nil {
		return p.fail(err)
	}
	if err := exec.RunScript(ctx, conn, "build LOB catalog", text); err != nil {
		return p.fail(err)
	}

	switch p.Cfg.Provider {
	case "sqlserver", "mssql":
		if err := p.gather(ctx, conn, exec); err != nil {
			return p.fail(err)
		}
	default:
		// sys.columns is SQL Server only; other targets run whatever the
		// catalog script recorded.
		p.Log.Warnf("LOB column discovery requires a SQL Server target; applying pre-recorded alterations only")
	}

	applied, failed, err := p.applyRecorded(ctx, conn, exec)
	if err != nil {
		return p.fail(err)
	}
	p.Log.Infof("LOB column pass complete: %d alterations applied, %d failed", applied, failed)
	return nil
}

func (p *Processor) fail(err error) error {
	p.Log.Errorf("LOB column pass failed: %v", err)
	p.Log.LogErrorToFile(fmt.Sprintf("LOB column pass failed: %v", err))
	return err
}

func (p *Processor) catalog() string {
	return database.Qualify(p.Cfg.Provider, p.Cfg.DatabaseName, CatalogTable)
}

// gather scans the system catalog for candidates, measures their content
// and records the derived alteration for each.
func (p *Processor) gather(ctx context.Context, conn sqlexec.Conn, exec *sqlexec.Executor) error {
	cols, err := p.scanCandidates(ctx, conn)
	if err != nil {
		return err
	}
	p.Log.Infof("Found %d LOB column candidates", len(cols))

	for n := range cols {
		col := &cols[n]
		maxLen, err := p.measure(ctx, conn, col)
		if err != nil {
			// An unmeasurable column is recorded without an alteration so
			// the catalog still shows it was seen.
			p.Log.Warnf("Could not measure %s.%s.%s: %v", col.SchemaName, col.TableName, col.ColumnName, err)
		} else {
			col.MaxLen = maxLen
		}

		var alter string
		if err == nil {
			alter = BuildAlterColumnSQL(p.Cfg.DatabaseName, col.SchemaName, col.TableName, col.ColumnName, col.MaxLen)
		}
		if recErr := p.record(ctx, conn, col, alter); recErr != nil {
			return recErr
		}
	}
	return nil
}

func (p *Processor) dbPrefix() string {
	if p.Cfg.DatabaseName == "" {
		return ""
	}
	return p.Cfg.DatabaseName + "."
}

// scanCandidates finds text, ntext and (n)varchar columns declared MAX or
// wider than the VARCHAR ceiling.
func (p *Processor) scanCandidates(ctx context.Context, q sqlexec.Querier) ([]Column, error) {
	pre := p.dbPrefix()
	query := fmt.Sprintf(`SELECT S.name, T.name, C.name, TY.name, C.max_length, P.rows
FROM %ssys.columns C
INNER JOIN %ssys.tables T ON T.object_id = C.object_id
INNER JOIN %ssys.schemas S ON S.schema_id = T.schema_id
INNER JOIN %ssys.types TY ON TY.user_type_id = C.user_type_id
INNER JOIN %ssys.partitions P ON P.object_id = T.object_id AND P.index_id IN (0, 1)
WHERE TY.name IN ('text', 'ntext')
   OR (TY.name IN ('varchar', 'nvarchar') AND (C.max_length = -1 OR C.max_length > %d))
ORDER BY S.name, T.name, C.name`, pre, pre, pre, pre, pre, varcharCeiling)

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scanning for LOB columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.SchemaName, &c.TableName, &c.ColumnName, &c.DataType, &c.CurrentLength, &c.RowCnt); err != nil {
			return nil, fmt.Errorf("scanning LOB candidate row: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading LOB candidates: %w", err)
	}
	return cols, nil
}

// measure returns MAX(LEN(column)) for the candidate's table. NULL means
// the table has no rows or only NULLs in the column.
func (p *Processor) measure(ctx context.Context, q sqlexec.Querier, col *Column) (sql.NullInt64, error) {
	var maxLen sql.NullInt64
	for _, id := range []string{col.SchemaName, col.TableName, col.ColumnName} {
		if _, err := sqlsafe.ValidateIdentifier(id); err != nil {
			return maxLen, err
		}
	}
	query := fmt.Sprintf("SELECT MAX(LEN(%s)) FROM %s%s.%s", col.ColumnName, p.dbPrefix(), col.SchemaName, col.TableName)

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return maxLen, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&maxLen); err != nil {
			return maxLen, err
		}
	}
	return maxLen, rows.Err()
}

// BuildAlterColumnSQL derives the right-sizing statement for a measured
// column: unused columns shrink to CHAR(1), content wider than the VARCHAR
// ceiling stays TEXT, everything else becomes an exact-width VARCHAR.
func BuildAlterColumnSQL(dbName, schema, table, column string, maxLen sql.NullInt64) string {
	target := fmt.Sprintf("%s.%s", schema, table)
	if dbName != "" {
		target = dbName + "." + target
	}

	var newType string
	switch {
	case !maxLen.Valid || maxLen.Int64 <= 0:
		newType = "CHAR(1)"
	case maxLen.Int64 > varcharCeiling:
		newType = "TEXT"
	default:
		newType = fmt.Sprintf("VARCHAR(%d)", maxLen.Int64)
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", target, column, newType)
}

func (p *Processor) record(ctx context.Context, q sqlexec.Querier, col *Column, alter string) error {
	query, args, err := sq.
		Insert(p.catalog()).
		Columns("SchemaName", "TableName", "ColumnName", "DataType", "CurrentLength", "RowCnt", "MaxLen", "AlterStatement").
		Values(col.SchemaName, col.TableName, col.ColumnName, col.DataType, col.CurrentLength, col.RowCnt, col.MaxLen, nullIfEmpty(alter)).
		PlaceholderFormat(database.Placeholder(p.Cfg.Provider)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building LOB catalog insert: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("recording LOB column %s.%s.%s: %w", col.SchemaName, col.TableName, col.ColumnName, err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type recordedAlter struct {
	SchemaName string
	TableName  string
	ColumnName string
	RowCnt     sql.NullInt64
	MaxLen     sql.NullInt64
	Statement  string
}

// applyRecorded executes the recorded alterations largest-first with the
// same per-row isolation and empty-table gate the table migrations use.
func (p *Processor) applyRecorded(ctx context.Context, conn sqlexec.Conn, exec *sqlexec.Executor) (applied, failed int, err error) {
	query, args, err := sq.
		Select("SchemaName", "TableName", "ColumnName", "RowCnt", "MaxLen", "AlterStatement").
		From(p.catalog()).
		Where(sq.NotEq{"AlterStatement": nil}).
		OrderBy("MaxLen DESC").
		PlaceholderFormat(database.Placeholder(p.Cfg.Provider)).
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("building LOB catalog query: %w", err)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("querying LOB catalog: %w", err)
	}
	var alters []recordedAlter
	for rows.Next() {
		var a recordedAlter
		if err := rows.Scan(&a.SchemaName, &a.TableName, &a.ColumnName, &a.RowCnt, &a.MaxLen, &a.Statement); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scanning LOB catalog row: %w", err)
		}
		alters = append(alters, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("reading LOB catalog: %w", err)
	}
	rows.Close()

	p.Log.Infof("Applying %d recorded column alterations", len(alters))
	for _, a := range alters {
		label := fmt.Sprintf("%s.%s.%s", a.SchemaName, a.TableName, a.ColumnName)

		stmt := sqlsafe.SanitizeSQL(strings.TrimSpace(a.Statement))
		if stmt == "" {
			p.Counters.RecordFailure()
			p.rowFailure(label, errors.New("alteration rejected by sanitizer"))
			failed++
			continue
		}
		if !p.Cfg.IncludeEmptyTables && (!a.RowCnt.Valid || a.RowCnt.Int64 <= 0) {
			p.Log.Infof("Skipping %s: no rows in scope", label)
			continue
		}

		runErr := sqlexec.TransactionScope(ctx, conn, func(tx sqlexec.Tx) error {
			_, stepErr := exec.RunStepWithRetry(ctx, tx, label+" alter", stmt)
			return stepErr
		})
		if runErr != nil {
			p.rowFailure(label, runErr)
			failed++
			continue
		}
		applied++
	}
	return applied, failed, nil
}

func (p *Processor) rowFailure(label string, err error) {
	p.Log.Errorf("Column alteration failed for %s: %v", label, err)
	p.Log.LogErrorToFile(fmt.Sprintf("LOB column %s: %v", label, err))
}
