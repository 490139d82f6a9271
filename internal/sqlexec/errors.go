package sqlexec

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
)

// StepError wraps a failed statement or script fragment with the offending
// SQL text and the logical step name, so failures can be logged with full
// context and classified for retry.
type StepError struct {
	Name string
	SQL  string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("SQL execution failed for %s: %v", e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// SQL Server error numbers considered transient: deadlock victim, lock
// request timeout, general statement timeout and Azure throttling codes.
var transientSQLServerNumbers = map[int32]bool{
	1205:  true,
	1222:  true,
	-2:    true,
	4060:  true,
	10928: true,
	10929: true,
	40197: true,
	40501: true,
	40613: true,
}

// IsTransient reports whether the underlying cause of err is a transient
// database-driver failure worth retrying. Anything else, including
// statement syntax errors and constraint violations, is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se mssql.Error
	if errors.As(err, &se) {
		return transientSQLServerNumbers[se.Number]
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// SQLite reports lock contention as "database is locked"/"busy".
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return true
	}
	return false
}
