// Package sql provides query normalization, parameter screening and the
// default statement builder for resources.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyQuery indicates a definition carries no query text.
	ErrEmptyQuery = errors.New("query is empty")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize prepares a resource query template for use.
//
// The validation order is:
// 1. Collapse whitespace runs outside string literals to a single space
// 2. Strip a trailing semicolon
// 3. Reject multiple statements (any remaining semicolons outside string literals)
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	normalized := NormalizeWhitespace(sqlQuery)
	if normalized == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	normalized = stripTrailingSemicolon(normalized)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// NormalizeWhitespace replaces every run of spaces, tabs and line breaks with a
// single space and trims both ends. Text inside quotes is left untouched.
func NormalizeWhitespace(sqlQuery string) string {
	var b strings.Builder
	b.Grow(len(sqlQuery))

	var quote rune
	pendingSpace := false
	for _, char := range sqlQuery {
		if quote != 0 {
			b.WriteRune(char)
			if char == quote {
				quote = 0
			}
			continue
		}

		switch char {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			pendingSpace = true
			continue
		}

		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false

		if char == '\'' || char == '"' {
			quote = char
		}
		b.WriteRune(char)
	}

	return b.String()
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters, which keeps us in the string.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
