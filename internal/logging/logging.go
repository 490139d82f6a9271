// Package logging provides the run-scoped logger used by every importer.
// Each run generates one correlation ID which is prefixed to every console
// line, and failures are additionally appended to a per-run error log file.
package logging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"
)

// Logger writes correlated console output and maintains the append-only
// error log file for a single importer run.
type Logger struct {
	cid        string
	out        *log.Logger
	errLogPath string
	verbose    bool
}

// NewRunLogger creates a logger for one run. errLogPath may be empty, in
// which case error-file writes are skipped.
func NewRunLogger(errLogPath string, verbose bool) *Logger {
	return &Logger{
		cid:        newCorrelationID(),
		out:        log.New(os.Stderr, "", log.LstdFlags),
		errLogPath: errLogPath,
		verbose:    verbose,
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// CorrelationID returns the run's correlation ID.
func (l *Logger) CorrelationID() string { return l.cid }

// ErrorLogPath returns the path of the append-only error log file.
func (l *Logger) ErrorLogPath() string { return l.errLogPath }

func (l *Logger) Infof(format string, args ...any) {
	l.out.Printf("[%s] INFO %s", l.cid, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.out.Printf("[%s] WARN %s", l.cid, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.out.Printf("[%s] ERROR %s", l.cid, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.out.Printf("[%s] DEBUG %s", l.cid, fmt.Sprintf(format, args...))
}

// LogErrorToFile appends one timestamped entry to the error log file. The
// file is never rotated or truncated. A failure to write is itself only
// logged so it can never mask the original error.
func (l *Logger) LogErrorToFile(details string) {
	if l.errLogPath == "" {
		return
	}
	f, err := os.OpenFile(l.errLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.Errorf("failed to open error log file %s: %v", l.errLogPath, err)
		return
	}
	defer f.Close()
	entry := fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), l.cid, details)
	if _, err := f.WriteString(entry); err != nil {
		l.Errorf("failed to write to error log file %s: %v", l.errLogPath, err)
	}
}
