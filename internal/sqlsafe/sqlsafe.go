// Package sqlsafe guards the dynamic SQL fragments this pipeline executes.
// The catalog tables it reads are populated from operator-supplied CSV and
// generated scripts, so identifiers are validated outright and SQL text is
// run through a best-effort denylist. This is a secondary guard layered over
// semi-trusted input, not a substitute for parameterized queries.
package sqlsafe

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// InvalidIdentifierError reports a name rejected by ValidateIdentifier.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid SQL identifier: %q", e.Name)
}

// ValidateIdentifier accepts only [A-Za-z_][A-Za-z0-9_]* and returns the
// name unchanged. Every schema and table name interpolated into dynamic SQL
// goes through this, so no quoting or escaping is needed downstream.
func ValidateIdentifier(name string) (string, error) {
	if !identifierRe.MatchString(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return name, nil
}

var denylist = []*regexp.Regexp{
	// statement terminator followed by a destructive keyword
	regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter)\b`),
	// inline comment marker
	regexp.MustCompile(`--`),
	// classic tautology
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
}

// SanitizeSQL normalizes encoding, strips control characters and rejects
// text matching the injection denylist or carrying unbalanced quotes.
// Benign input passes through unchanged; rejected input comes back as the
// empty string so callers treat it as a row-level failure, never execute it.
func SanitizeSQL(text string) string {
	if text == "" {
		return ""
	}

	cleaned := strings.ToValidUTF8(text, "�")
	cleaned = norm.NFKC.String(cleaned)
	cleaned = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F) {
			return -1
		}
		return r
	}, cleaned)

	for _, re := range denylist {
		if re.MatchString(cleaned) {
			return ""
		}
	}
	if strings.Count(cleaned, "'")%2 != 0 {
		return ""
	}
	return cleaned
}
