package dbackend

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// scanRows reads every row of rows into a JSON-ready map, keyed by column
// name. database/sql's driver has already resolved each column to a
// concrete Go type on Scan (the pure-Go SQLite and pgx drivers both do
// this); rowToJSON's job is to turn that concrete value into something
// encoding/json can serialize directly, preferring a parsed JSON value
// over a literal string when a TEXT column holds JSON-encoded array or
// object data (the gateway's own encoding for array/object columns, set
// by BindValue).
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(cols))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = rowToJSON(*(dest[i].(*any)))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// rowToJSON converts one scanned column value into a JSON-ready value.
func rowToJSON(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		s := string(val)
		if parsed, ok := tryParseJSON(s); ok {
			return parsed
		}
		return s
	case string:
		if parsed, ok := tryParseJSON(val); ok {
			return parsed
		}
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

// tryParseJSON parses s as JSON only when it looks like a JSON array or
// object, matching the original's "sniff before parse" behaviour rather
// than attempting to parse every string column.
func tryParseJSON(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 {
		return nil, false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	return v, true
}
