package dbackend

import (
	"fmt"
	"strings"
)

// placeholderStyle controls how bound-parameter placeholders render,
// since SQLite uses positional "?" and PostgreSQL uses numbered "$N".
type placeholderStyle int

const (
	placeholderQuestion placeholderStyle = iota
	placeholderDollar
)

// placeholder renders the nth (1-indexed) placeholder for style.
func placeholder(style placeholderStyle, n int) string {
	if style == placeholderDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// buildWhere renders a WHERE clause (without the leading "WHERE") from an
// ordered list of equality filters, along with the values to bind in the
// same order. next is the 1-indexed ordinal of the first placeholder to
// use (so callers can continue numbering after an INSERT/UPDATE's own
// placeholders).
func buildWhere(style placeholderStyle, filters []Filter, next int) (clause string, args []any) {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, fmt.Sprintf("%s = %s", f.Column, placeholder(style, next)))
		args = append(args, f.Value)
		next++
	}
	return strings.Join(parts, " AND "), args
}

// buildInsert renders an INSERT statement's column list, placeholder
// list, and ordered bind values from a values map. Column order is not
// guaranteed stable across calls with the same map contents in Go's map
// iteration, so callers that need deterministic column order (tests,
// logging) should sort the returned columns themselves; SQL execution is
// unaffected either way since columns and placeholders are paired.
func buildInsert(style placeholderStyle, values map[string]any) (columns []string, placeholders []string, args []any) {
	i := 1
	for col, val := range values {
		columns = append(columns, col)
		placeholders = append(placeholders, placeholder(style, i))
		args = append(args, val)
		i++
	}
	return columns, placeholders, args
}

// buildSet renders an UPDATE statement's "col = ?, col2 = ?" SET clause
// and ordered bind values, continuing placeholder numbering from 1.
func buildSet(style placeholderStyle, values map[string]any) (clause string, args []any, next int) {
	parts := make([]string, 0, len(values))
	i := 1
	for col, val := range values {
		parts = append(parts, fmt.Sprintf("%s = %s", col, placeholder(style, i)))
		args = append(args, val)
		i++
	}
	return strings.Join(parts, ", "), args, i
}
