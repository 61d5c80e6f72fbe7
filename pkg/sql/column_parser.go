package sql

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

var (
	aliasPattern    = regexp.MustCompile(`(?i)\s+as\s+["\[]?(\w+)["\]]?\s*$`)
	funcPattern     = regexp.MustCompile(`^(\w+)\s*\(`)
	nonWordPattern  = regexp.MustCompile(`[^\w]`)
	selectEndTokens = []string{" from ", " where ", " group ", " order ", " limit ", " union ", " intersect ", " except ", ";"}
)

// SelectLabels returns the lower-cased result-set column names of a select
// query, in select-list order. ok is false when the names cannot be known
// without the schema, e.g. for "SELECT *" or "SELECT t.*".
//
// This is a token-level scan: it handles aliases, table qualifiers and
// function calls but not subqueries in the select list.
func SelectLabels(query string) (labels []string, ok bool) {
	query = NormalizeWhitespace(query)
	lower := strings.ToLower(query)

	start := strings.Index(lower, "select ")
	if start == -1 {
		return nil, false
	}
	start += len("select ")
	if strings.HasPrefix(lower[start:], "distinct ") {
		start += len("distinct ")
	}

	end := len(query)
	for _, token := range selectEndTokens {
		if idx := strings.Index(lower[start:], token); idx != -1 && start+idx < end {
			end = start + idx
		}
	}

	for _, expr := range splitSelectList(query[start:end]) {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		if expr == "*" || strings.HasSuffix(expr, ".*") {
			return nil, false
		}
		labels = append(labels, columnLabel(expr))
	}
	return labels, len(labels) > 0
}

// MissingReadColumns returns the labels of read columns that the query does
// not select. Nonqueried foreign keys are never expected in the select list.
// It returns nil when the select list cannot be determined.
func MissingReadColumns(meta *models.ResourceMetaData, query string) []string {
	labels, ok := SelectLabels(query)
	if !ok {
		return nil
	}
	selected := make(map[string]bool, len(labels))
	for _, l := range labels {
		selected[l] = true
	}

	var missing []string
	for _, col := range models.OutputColumns(meta.AllReadColumns) {
		if !selected[strings.ToLower(col.ColumnLabel)] {
			missing = append(missing, col.ColumnLabel)
		}
	}
	return missing
}

// splitSelectList splits on commas outside parentheses.
func splitSelectList(list string) []string {
	var parts []string
	var current strings.Builder
	depth := 0

	for _, ch := range list {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, current.String())
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// columnLabel derives the result-set name of one select expression:
//   - "film.title" -> title
//   - "release_year AS year" -> year
//   - "COUNT(*) total" -> total
//   - "MAX(rental_rate)" -> max
func columnLabel(expr string) string {
	if m := aliasPattern.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(m[1])
	}

	// Implicit alias: a trailing bare word after a balanced expression.
	if strings.Count(expr, "(") == strings.Count(expr, ")") {
		fields := strings.Fields(expr)
		if last := fields[len(fields)-1]; len(fields) > 1 && !strings.ContainsAny(last, "()") {
			return strings.ToLower(strings.Trim(last, `"[]`))
		}
	}

	if m := funcPattern.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(m[1])
	}
	if dot := strings.LastIndex(expr, "."); dot != -1 {
		expr = expr[dot+1:]
	}
	return strings.ToLower(nonWordPattern.ReplaceAllString(expr, ""))
}
