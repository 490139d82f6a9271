// Package engine drives one database migration from a Definition: run the
// preprocessing scripts, build the conversion catalog, import the join
// definitions, convert every in-scope table and apply constraints, then ask
// the operator whether to continue the sequence.
//
// Table conversion is deliberately resilient: every catalog row executes in
// its own transaction, and a failed row is rolled back, logged and counted
// without stopping the rows after it. Only failures outside the per-row
// loops abort the run.
package engine

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
	"github.com/HephreePersonal/EJSupervision-Importer/internal/joins"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/logging"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/scripts"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/sqlexec"
	"github.com/HephreePersonal/EJSupervision-Importer/internal/sqlsafe"
)

// Engine runs one migration. The collaborators are injectable so tests can
// substitute connections, prompts and the join importer.
type Engine struct {
	Def      Definition
	Cfg      *config.ImportConfiguration
	Log      *logging.Logger
	Scripts  *scripts.Repository
	Counters *sqlexec.Counters

	// Connect acquires the single exclusive connection for the run.
	Connect func(ctx context.Context) (sqlexec.Conn, func(), error)

	// Confirm asks the operator the completion question. The default
	// answers from the resolved configuration, so a headless run stops
	// the sequence unless --yes was given.
	Confirm func(prompt string) bool

	// ImportJoins loads the join definition CSV into the staging table.
	ImportJoins func(ctx context.Context, q sqlexec.Querier, suffix, csvPath string) (int, error)
}

// New builds an Engine with the production collaborators wired in.
func New(def Definition, cfg *config.ImportConfiguration, log *logging.Logger) *Engine {
	e := &Engine{
		Def:      def,
		Cfg:      cfg,
		Log:      log,
		Scripts:  scripts.New(cfg.ScriptsDir),
		Counters: &sqlexec.Counters{},
	}
	e.Connect = func(ctx context.Context) (sqlexec.Conn, func(), error) {
		conn, cleanup, err := database.Open(ctx, cfg.Provider, cfg.ConnStr)
		if err != nil {
			return nil, nil, err
		}
		return sqlexec.Wrap(conn), cleanup, nil
	}
	e.Confirm = func(string) bool { return cfg.AssumeYes }
	ji := &joins.Importer{Provider: cfg.Provider, DatabaseName: cfg.DatabaseName, Log: log}
	e.ImportJoins = ji.ImportCSV
	return e
}

// Run executes the migration and reports whether the operator chose to
// continue to the next step. Errors outside the per-row loops abort the
// run; they are appended to the error log before returning.
func (e *Engine) Run(ctx context.Context) (bool, error) {
	if err := e.Cfg.Validate(config.Defaults{CSVFile: e.Def.DefaultCSVFile, LogFile: e.Def.DefaultLogFile}); err != nil {
		return false, err
	}

	e.Log.Infof("Starting %s migration against %s", e.Def.Name, e.Cfg.DatabaseName)

	conn, cleanup, err := e.Connect(ctx)
	if err != nil {
		return e.fail(fmt.Errorf("connecting to target: %w", err))
	}
	defer cleanup()

	exec := sqlexec.NewExecutor(time.Duration(e.Cfg.SQLTimeout)*time.Second, 0, e.Cfg.Provider, e.Counters, e.Log)

	for _, step := range e.Def.PreprocessingSteps {
		if err := e.runScript(ctx, conn, exec, step.Name, step.Script); err != nil {
			return e.fail(err)
		}
	}

	if e.Def.StagingScript != "" {
		if err := e.runScript(ctx, conn, exec, "build conversion catalog", e.Def.StagingScript); err != nil {
			return e.fail(err)
		}
	}

	if e.Cfg.CSVFile != "" {
		n, err := e.ImportJoins(ctx, conn, e.Def.TableSuffix, e.Cfg.CSVFile)
		if err != nil {
			return e.fail(fmt.Errorf("importing join definitions: %w", err))
		}
		e.Log.Infof("Imported %d join definitions", n)
	}

	if e.Def.JoinUpdateScript != "" {
		if err := e.runScript(ctx, conn, exec, "apply join definitions", e.Def.JoinUpdateScript); err != nil {
			return e.fail(err)
		}
	}

	converted, failed, err := e.runTableOperations(ctx, conn, exec)
	if err != nil {
		return e.fail(err)
	}
	e.Log.Infof("Table conversion finished: %d converted, %d failed", converted, failed)

	if e.Cfg.SkipPKCreation {
		e.Log.Infof("Skipping primary key and constraint creation")
	} else if e.Def.PKScript != "" {
		if err := e.runScript(ctx, conn, exec, "build constraint catalog", e.Def.PKScript); err != nil {
			return e.fail(err)
		}
		applied, cFailed, err := e.runConstraints(ctx, conn, exec)
		if err != nil {
			return e.fail(err)
		}
		e.Log.Infof("Constraint creation finished: %d applied, %d failed", applied, cFailed)
	}

	succeeded, stepFailures := e.Counters.Snapshot()
	e.Log.Infof("%s migration complete: %d steps succeeded, %d failed", e.Def.Name, succeeded, stepFailures)

	if e.Def.NextStepLabel == "" {
		return false, nil
	}
	prompt := fmt.Sprintf("%s migration complete. Continue to %s?", e.Def.Name, e.Def.NextStepLabel)
	return e.Confirm(prompt), nil
}

// fail records a run-aborting error in the error log and surfaces it.
func (e *Engine) fail(err error) (bool, error) {
	e.Log.Errorf("%s migration failed: %v", e.Def.Name, err)
	e.Log.LogErrorToFile(fmt.Sprintf("%s migration failed: %v", e.Def.Name, err))
	return false, err
}

// runScript loads a script from the repository and executes it. Fragments
// commit as they complete, so a failed script keeps the work done before
// the failure and the phase can be rerun.
func (e *Engine) runScript(ctx context.Context, conn sqlexec.Conn, exec *sqlexec.Executor, name, path string) error {
	text, err := e.Scripts.Load(path, e.Cfg.DatabaseName)
	if err != nil {
		return err
	}
	return exec.RunScript(ctx, conn, name, text)
}

type rowResult int

const (
	rowConverted rowResult = iota
	rowSkipped
	rowFailed
)

type tableOperation struct {
	RowID         int64
	DatabaseName  string
	SchemaName    string
	TableName     string
	ScopeRowCount sql.NullInt64
	Drop          sql.NullString
	SelectInto    sql.NullString
	Joins         sql.NullString
}

func (e *Engine) convertCatalog() string {
	return database.Qualify(e.Cfg.Provider, e.Cfg.DatabaseName, "TablesToConvert"+e.Def.TableSuffix)
}

func (e *Engine) fetchTableOperations(ctx context.Context, q sqlexec.Querier) ([]tableOperation, error) {
	query, args, err := sq.
		Select("RowID", "DatabaseName", "SchemaName", "TableName", "ScopeRowCount", "Drop_IfExists", "Select_Into", "Joins").
		From(e.convertCatalog()).
		Where(sq.Eq{"fConvert": 1}).
		OrderBy("DatabaseName", "SchemaName", "TableName").
		PlaceholderFormat(database.Placeholder(e.Cfg.Provider)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building catalog query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversion catalog: %w", err)
	}
	defer rows.Close()

	var ops []tableOperation
	for rows.Next() {
		var op tableOperation
		if err := rows.Scan(&op.RowID, &op.DatabaseName, &op.SchemaName, &op.TableName,
			&op.ScopeRowCount, &op.Drop, &op.SelectInto, &op.Joins); err != nil {
			return nil, fmt.Errorf("scanning conversion catalog row: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading conversion catalog: %w", err)
	}
	return ops, nil
}

// runTableOperations converts every in-scope table. A failed row is rolled
// back, logged and counted; the loop always reaches the next row.
func (e *Engine) runTableOperations(ctx context.Context, conn sqlexec.Conn, exec *sqlexec.Executor) (converted, failed int, err error) {
	ops, err := e.fetchTableOperations(ctx, conn)
	if err != nil {
		return 0, 0, err
	}
	e.Log.Infof("Converting %d in-scope tables", len(ops))

	for _, op := range ops {
		switch e.convertTable(ctx, conn, exec, op) {
		case rowConverted:
			converted++
		case rowFailed:
			failed++
		}
	}
	return converted, failed, nil
}

func (e *Engine) convertTable(ctx context.Context, conn sqlexec.Conn, exec *sqlexec.Executor, op tableOperation) rowResult {
	label := fmt.Sprintf("%s.%s.%s", op.DatabaseName, op.SchemaName, op.TableName)

	if _, err := sqlsafe.ValidateIdentifier(op.SchemaName); err != nil {
		e.Counters.RecordFailure()
		return e.rowFailure(op.RowID, label, err)
	}
	if _, err := sqlsafe.ValidateIdentifier(op.TableName); err != nil {
		e.Counters.RecordFailure()
		return e.rowFailure(op.RowID, label, err)
	}

	// A blank statement is a row failure, never a skip, and select-into
	// only runs behind a present, clean drop.
	rawDrop := strings.TrimSpace(op.Drop.String)
	if rawDrop == "" {
		e.Counters.RecordFailure()
		return e.rowFailure(op.RowID, label, errors.New("missing drop statement"))
	}
	drop := sqlsafe.SanitizeSQL(rawDrop)
	if drop == "" {
		e.Counters.RecordFailure()
		return e.rowFailure(op.RowID, label, errors.New("drop statement rejected by sanitizer"))
	}

	rawSelect := strings.TrimSpace(op.SelectInto.String)
	if rawSelect == "" {
		e.Counters.RecordFailure()
		return e.rowFailure(op.RowID, label, errors.New("missing select-into statement"))
	}
	if j := strings.TrimSpace(op.Joins.String); j != "" {
		rawSelect += " " + j
	}
	selectInto := sqlsafe.SanitizeSQL(rawSelect)
	if selectInto == "" {
		e.Counters.RecordFailure()
		return e.rowFailure(op.RowID, label, errors.New("select-into statement rejected by sanitizer"))
	}

	if !e.Cfg.IncludeEmptyTables && (!op.ScopeRowCount.Valid || op.ScopeRowCount.Int64 <= 0) {
		e.Log.Infof("Skipping %s: no rows in scope", label)
		return rowSkipped
	}

	err := sqlexec.TransactionScope(ctx, conn, func(tx sqlexec.Tx) error {
		if _, err := exec.RunStepWithRetry(ctx, tx, label+" drop", drop); err != nil {
			return err
		}
		if _, err := exec.RunStepWithRetry(ctx, tx, label+" select into", selectInto); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return e.rowFailure(op.RowID, label, err)
	}
	return rowConverted
}

// rowFailure logs one failed catalog row without aborting the loop.
func (e *Engine) rowFailure(rowID int64, label string, err error) rowResult {
	e.Log.Errorf("Conversion failed for %s (catalog row %d): %v", label, rowID, err)
	e.Log.LogErrorToFile(fmt.Sprintf("catalog row %d (%s): %v", rowID, label, err))
	return rowFailed
}

type constraintStep struct {
	SchemaName    string
	TableName     string
	Script        string
	Rank          int
	ScopeRowCount sql.NullInt64
}

// fetchConstraintSteps reads the constraint catalog joined to the convert
// catalog. NOT NULL alterations rank before primary keys per table, and the
// legacy FLAG type in stored scripts is rewritten to BIT.
func (e *Engine) fetchConstraintSteps(ctx context.Context, q sqlexec.Querier) ([]constraintStep, error) {
	pkCatalog := database.Qualify(e.Cfg.Provider, e.Cfg.DatabaseName, "PrimaryKeyScripts"+e.Def.TableSuffix)

	hint := ""
	switch e.Cfg.Provider {
	case "sqlserver", "mssql":
		hint = " WITH (NOLOCK)"
	}

	query := fmt.Sprintf(`SELECT s.SchemaName, s.TableName,
       REPLACE(s.Script, 'FLAG NOT NULL', 'BIT NOT NULL') AS Script,
       s.ScriptRank, t.ScopeRowCount
FROM (SELECT SchemaName, TableName, Script,
             CASE WHEN ScriptType = 'NOT_NULL' THEN 1 ELSE 2 END AS ScriptRank
      FROM %s%s) s
INNER JOIN %s%s t
        ON t.SchemaName = s.SchemaName AND t.TableName = s.TableName
WHERE t.fConvert = 1
ORDER BY s.SchemaName, s.TableName, s.ScriptRank`, pkCatalog, hint, e.convertCatalog(), hint)

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying constraint catalog: %w", err)
	}
	defer rows.Close()

	var steps []constraintStep
	for rows.Next() {
		var s constraintStep
		if err := rows.Scan(&s.SchemaName, &s.TableName, &s.Script, &s.Rank, &s.ScopeRowCount); err != nil {
			return nil, fmt.Errorf("scanning constraint catalog row: %w", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading constraint catalog: %w", err)
	}
	return steps, nil
}

// runConstraints applies the NOT NULL and primary key scripts with the same
// per-row isolation and empty-table gate as table conversion.
func (e *Engine) runConstraints(ctx context.Context, conn sqlexec.Conn, exec *sqlexec.Executor) (applied, failed int, err error) {
	steps, err := e.fetchConstraintSteps(ctx, conn)
	if err != nil {
		return 0, 0, err
	}
	e.Log.Infof("Applying %d constraint scripts", len(steps))

	for n, step := range steps {
		label := fmt.Sprintf("%s.%s constraint %d", step.SchemaName, step.TableName, step.Rank)
		rowID := int64(n + 1)

		if _, idErr := sqlsafe.ValidateIdentifier(step.SchemaName); idErr != nil {
			e.Counters.RecordFailure()
			e.rowFailure(rowID, label, idErr)
			failed++
			continue
		}
		if _, idErr := sqlsafe.ValidateIdentifier(step.TableName); idErr != nil {
			e.Counters.RecordFailure()
			e.rowFailure(rowID, label, idErr)
			failed++
			continue
		}
		script := sqlsafe.SanitizeSQL(strings.TrimSpace(step.Script))
		if script == "" {
			e.Counters.RecordFailure()
			e.rowFailure(rowID, label, errors.New("constraint script rejected by sanitizer"))
			failed++
			continue
		}
		if !e.Cfg.IncludeEmptyTables && (!step.ScopeRowCount.Valid || step.ScopeRowCount.Int64 <= 0) {
			e.Log.Infof("Skipping %s: no rows in scope", label)
			continue
		}

		runErr := sqlexec.TransactionScope(ctx, conn, func(tx sqlexec.Tx) error {
			_, stepErr := exec.RunStepWithRetry(ctx, tx, label, script)
			return stepErr
		})
		if runErr != nil {
			e.rowFailure(rowID, label, runErr)
			failed++
			continue
		}
		applied++
	}
	return applied, failed, nil
}
