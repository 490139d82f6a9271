// Package sqlexec contains the SQL execution primitives shared by every
// importer: single-step execution with a per-statement timeout, bounded
// retry for transient driver failures, multi-statement script execution and
// a transaction scope that never leaves the connection in an ambiguous
// state. All failures are wrapped into StepError so callers can log the
// offending statement and decide retry eligibility.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/HephreePersonal/EJSupervision-Importer/internal/logging"
)

// Querier is the subset of database/sql behaviour the primitives need.
// *sql.Conn, *sql.DB and *sql.Tx all satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tx is a transaction handle.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Conn is the engine's view of the single run connection.
type Conn interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
}

type sqlConn struct {
	*sql.Conn
}

func (c sqlConn) Begin(ctx context.Context) (Tx, error) {
	return c.Conn.BeginTx(ctx, nil)
}

// Wrap adapts a *sql.Conn to the Conn interface.
func Wrap(conn *sql.Conn) Conn {
	return sqlConn{Conn: conn}
}

// Executor carries the run-scoped execution settings. One Executor serves
// one importer run; the counters it records into are injected, not global.
type Executor struct {
	Timeout    time.Duration
	MaxRetries int
	Dialect    string
	Counters   *Counters
	Log        *logging.Logger

	// sleep is swapped out by retry tests.
	sleep func(time.Duration)
}

// DefaultMaxRetries bounds retry attempts when the caller does not set one.
const DefaultMaxRetries = 3

// NewExecutor builds an Executor for one run.
func NewExecutor(timeout time.Duration, maxRetries int, dialect string, counters *Counters, log *logging.Logger) *Executor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Executor{
		Timeout:    timeout,
		MaxRetries: maxRetries,
		Dialect:    dialect,
		Counters:   counters,
		Log:        log,
		sleep:      time.Sleep,
	}
}

// lockTimeoutStatement returns the dialect statement that applies the
// lock/wait timeout for subsequent statements, or "" when the dialect has
// no session-level equivalent.
func (e *Executor) lockTimeoutStatement() string {
	ms := int(e.Timeout / time.Millisecond)
	switch e.Dialect {
	case "sqlserver", "mssql":
		return fmt.Sprintf("SET LOCK_TIMEOUT %d", ms)
	case "postgres", "postgresql":
		return fmt.Sprintf("SET lock_timeout = %d", ms)
	case "mysql":
		return fmt.Sprintf("SET innodb_lock_wait_timeout = %d", int(e.Timeout/time.Second))
	case "sqlite", "sqlite3":
		return fmt.Sprintf("PRAGMA busy_timeout = %d", ms)
	}
	return ""
}

func (e *Executor) applyLockTimeout(ctx context.Context, q Querier) error {
	stmt := e.lockTimeoutStatement()
	if stmt == "" || e.Timeout <= 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, stmt)
	return err
}

// RunStep executes one statement with the configured lock/wait timeout and
// records the outcome on the run counters. The caller controls transaction
// boundaries; RunStep never commits. The returned count is rows affected
// where the driver reports one (absence of a result is not an error).
func (e *Executor) RunStep(ctx context.Context, q Querier, name, sqlText string) (int64, error) {
	if e.Log != nil {
		e.Log.Infof("Starting step: %s", name)
	}
	start := time.Now()

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	if err := e.applyLockTimeout(ctx, q); err != nil {
		e.Counters.RecordFailure()
		return 0, &StepError{Name: name, SQL: sqlText, Err: err}
	}

	res, err := q.ExecContext(ctx, sqlText)
	elapsed := time.Since(start)
	if err != nil {
		if e.Log != nil {
			e.Log.Errorf("Error executing step %s after %.2fs: %v. SQL: %s", name, elapsed.Seconds(), err, sqlText)
		}
		e.Counters.RecordFailure()
		return 0, &StepError{Name: name, SQL: sqlText, Err: err}
	}

	var rows int64
	if res != nil {
		// Not every statement or driver reports affected rows.
		if n, raErr := res.RowsAffected(); raErr == nil {
			rows = n
		}
	}
	if e.Log != nil {
		e.Log.Infof("Completed step: %s in %.2fs", name, elapsed.Seconds())
	}
	e.Counters.RecordSuccess()
	return rows, nil
}

// RunStepWithRetry wraps RunStep with bounded retry for transient driver
// failures, backing off 2^attempt seconds starting at attempt 0.
// Non-transient causes are re-raised immediately. Only statements that are
// safe to repeat should go through here (e.g. DROP-IF-EXISTS before
// SELECT-INTO).
func (e *Executor) RunStepWithRetry(ctx context.Context, q Querier, name, sqlText string) (int64, error) {
	maxRetries := e.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		rows, err := e.RunStep(ctx, q, name, sqlText)
		if err == nil {
			return rows, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return 0, err
		}
		if attempt == maxRetries-1 {
			break
		}
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if e.Log != nil {
			e.Log.Warnf("Transient failure on attempt %d for %s, retrying in %s", attempt+1, name, delay)
		}
		e.sleep(delay)
	}
	return 0, lastErr
}

// RunScript executes a multi-statement script: split on GO batch separators
// first, then on semicolons, skipping blank and comment-only fragments.
// Each fragment runs in its own transaction with its own statement timeout
// and commits as soon as it succeeds, so a mid-script failure leaves the
// completed fragments in place and a rerun resumes from where the script
// stopped. Execution stops at the first failing fragment and the returned
// StepError carries exactly that fragment, not the whole script.
func (e *Executor) RunScript(ctx context.Context, conn Conn, name, script string) error {
	if e.Log != nil {
		e.Log.Infof("Starting script: %s", name)
	}
	start := time.Now()

	total := 0
	for _, stmt := range SplitScript(script) {
		if err := e.runFragment(ctx, conn, stmt); err != nil {
			if e.Log != nil {
				e.Log.Errorf("Error executing script %s: %v. SQL: %s", name, err, stmt)
			}
			e.Counters.RecordFailure()
			return &StepError{Name: name, SQL: stmt, Err: err}
		}
		total++
	}

	if e.Log != nil {
		e.Log.Infof("Completed script: %s - executed %d statements in %.2fs", name, total, time.Since(start).Seconds())
	}
	e.Counters.RecordSuccess()
	return nil
}

// runFragment commits one script fragment in its own transaction.
func (e *Executor) runFragment(ctx context.Context, conn Conn, stmt string) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return TransactionScope(ctx, conn, func(tx Tx) error {
		if err := e.applyLockTimeout(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, stmt)
		return err
	})
}

// SplitScript breaks a script into executable fragments: GO batch
// separators first, then statement terminators, dropping blanks and
// comment-only fragments.
func SplitScript(script string) []string {
	var out []string
	for _, batch := range splitBatches(script) {
		for _, stmt := range strings.Split(batch, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" || isCommentOnly(stmt) {
				continue
			}
			out = append(out, stmt)
		}
	}
	return out
}

func splitBatches(script string) []string {
	var batches []string
	var current []string
	for _, line := range strings.Split(script, "\n") {
		if strings.EqualFold(strings.TrimSpace(strings.TrimSuffix(line, "\r")), "GO") {
			batches = append(batches, strings.Join(current, "\n"))
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	batches = append(batches, strings.Join(current, "\n"))
	return batches
}

func isCommentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

// TransactionScope begins a transaction on conn, runs fn, commits on a nil
// return and rolls back otherwise. database/sql returns the connection to
// autocommit once the transaction finishes, so the connection is never left
// in an ambiguous transactional state regardless of exit path.
func TransactionScope(ctx context.Context, conn Conn, fn func(tx Tx) error) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
