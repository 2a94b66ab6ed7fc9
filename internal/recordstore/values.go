package recordstore

import (
	"fmt"
	"strconv"
	"time"
)

// String reads column as a string; missing or NULL yields "".
func (r Row) String(column string) string {
	switch value := r[column].(type) {
	case nil:
		return ""
	case string:
		return value
	case []byte:
		return string(value)
	default:
		return fmt.Sprint(value)
	}
}

// Int64 reads column as an integer; unparseable values yield 0.
func (r Row) Int64(column string) int64 {
	switch value := r[column].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case int32:
		return int64(value)
	case float64:
		return int64(value)
	case []byte:
		parsed, _ := strconv.ParseInt(string(value), 10, 64)
		return parsed
	case string:
		parsed, _ := strconv.ParseInt(value, 10, 64)
		return parsed
	default:
		return 0
	}
}

// Bool reads column as a boolean; SQLite integers are accepted.
func (r Row) Bool(column string) bool {
	switch value := r[column].(type) {
	case bool:
		return value
	case int64:
		return value != 0
	case int:
		return value != 0
	case float64:
		return value != 0
	case string:
		parsed, _ := strconv.ParseBool(value)
		return parsed
	default:
		return false
	}
}

// Millis reads an epoch-milliseconds column as a UTC time.
func (r Row) Millis(column string) time.Time {
	millis := r.Int64(column)
	if millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}
