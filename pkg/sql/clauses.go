package sql

import "strings"

// clausePositions locates the parts of a select template that filtering
// conditions are spliced around. Offsets index into the template.
type clausePositions struct {
	// where is the offset of the top-level WHERE keyword, -1 when absent.
	where int
	// tail is the offset of the first top-level clause that must follow the
	// WHERE clause (GROUP BY, HAVING, ORDER BY, LIMIT, OFFSET, FETCH), or the
	// template length when there is none.
	tail int
}

// scanClauses finds the top-level WHERE and trailing clauses of query.
// Quoted literals and identifiers, comments and parenthesized text such as
// subqueries and window definitions are skipped.
func scanClauses(query string) clausePositions {
	pos := clausePositions{where: -1, tail: len(query)}
	lower := strings.ToLower(query)
	depth := 0

	for i := 0; i < len(lower); i++ {
		switch c := lower[i]; {
		case c == '\'' || c == '"' || c == '`':
			i = skipPast(lower, i+1, string(c))
			continue
		case c == '[':
			i = skipPast(lower, i+1, "]")
			continue
		case c == '-' && strings.HasPrefix(lower[i:], "--"):
			i = skipPast(lower, i+2, "\n")
			continue
		case c == '/' && strings.HasPrefix(lower[i:], "/*"):
			i = skipPast(lower, i+2, "*/")
			continue
		case c == '(':
			depth++
			continue
		case c == ')':
			if depth > 0 {
				depth--
			}
			continue
		case !isWordChar(c):
			continue
		}

		end := wordEnd(lower, i)
		if depth == 0 && (i == 0 || !isWordChar(lower[i-1])) {
			switch lower[i:end] {
			case "where":
				if pos.where < 0 {
					pos.where = i
				}
			case "group", "order":
				if nextWord(lower, end) == "by" {
					pos.tail = i
					return pos
				}
			case "having", "limit", "offset", "fetch":
				pos.tail = i
				return pos
			}
		}
		i = end - 1
	}
	return pos
}

// skipPast returns the offset of the last byte of the first closer at or
// after from, or the last offset of s when the closer never appears.
func skipPast(s string, from int, closer string) int {
	if from >= len(s) {
		return len(s) - 1
	}
	idx := strings.Index(s[from:], closer)
	if idx < 0 {
		return len(s) - 1
	}
	return from + idx + len(closer) - 1
}

func isWordChar(c byte) bool {
	return c == '_' || c == '$' || c == '@' || c == '#' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func wordEnd(s string, from int) int {
	end := from
	for end < len(s) && isWordChar(s[end]) {
		end++
	}
	return end
}

func nextWord(s string, from int) string {
	for from < len(s) && strings.IndexByte(" \t\r\n\f\v", s[from]) >= 0 {
		from++
	}
	return s[from:wordEnd(s, from)]
}

// applyConditions adds conditions to a select template. An existing top-level
// WHERE predicate is parenthesized and ANDed with them; trailing clauses such
// as ORDER BY stay at the end.
func applyConditions(query string, conditions []string) string {
	if len(conditions) == 0 {
		return query
	}
	pos := scanClauses(query)
	head := strings.TrimRight(query[:pos.tail], " \t\r\n\f\v")
	tail := query[pos.tail:]
	filter := strings.Join(conditions, " AND ")

	if pos.where >= 0 {
		predicate := strings.TrimSpace(head[pos.where+len("where"):])
		head = head[:pos.where] + "WHERE (" + predicate + ") AND " + filter
	} else {
		head += " WHERE " + filter
	}
	if tail == "" {
		return head
	}
	return head + " " + tail
}

// whereClause renders the filtering clause of a generated write statement.
func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
