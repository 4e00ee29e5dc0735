package dbackend

import (
	"encoding/json"
	"strconv"

	"github.com/apiforge/gateway/internal/schema"
)

// BindValue converts a JSON-decoded value into the value bound to a SQL
// placeholder, per the uniform parameter binding policy: nil binds SQL
// NULL; bool binds as-is; a json.Number binds as int64 when it has no
// fractional part (float64 otherwise); string binds as-is; any other
// value (array or object) binds as the JSON text of itself.
//
// For PostgreSQL, every numeric value binds as float64 regardless of
// whether it looks integral, trading integer exactness above 2^53 for
// uniformity across columns whose type may not be known precisely at
// bind time (REAL/NUMERIC columns reject an int64 bind where an integer
// column would have accepted it).
func BindValue(v any, dialect schema.Dialect) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	case json.Number:
		if dialect == schema.PostgreSQL {
			f, err := val.Float64()
			if err != nil {
				return nil, err
			}
			return f, nil
		}
		if i, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case float64:
		if dialect == schema.PostgreSQL {
			return val, nil
		}
		if val == float64(int64(val)) {
			return int64(val), nil
		}
		return val, nil
	case string:
		return val, nil
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}
}

// CoercePrimaryKey coerces a path-parameter string into the value used to
// bind a primary-key lookup: try int64, then float64, else leave as a
// string.
func CoercePrimaryKey(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
