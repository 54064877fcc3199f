// Package normalize converts the heterogeneous date strings returned by the
// upstream APIs into time.Time values so every stored record compares dates
// the same way.
package normalize

import (
	"regexp"
	"time"

	"github.com/jonathan/patchnotes/internal/types"
)

// datePattern matches YYYY-MM-DD with an optional THH:MM:SSZ suffix.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}Z)?$`)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05Z"
)

// ParseDate parses a string in either canonical upstream format.
// It reports false when s is not a date or names an impossible day.
func ParseDate(s string) (time.Time, bool) {
	if !datePattern.MatchString(s) {
		return time.Time{}, false
	}
	layout := dateLayout
	if len(s) > len(dateLayout) {
		layout = dateTimeLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Dates returns a copy of record with every date-like string replaced by a
// UTC time.Time. Nested objects and arrays are walked. Values that are already
// time.Time, and strings that do not parse, are left as they are.
func Dates(record types.Record) types.Record {
	if record == nil {
		return nil
	}
	out := make(types.Record, len(record))
	for k, v := range record {
		out[k] = value(v)
	}
	return out
}

// All normalizes every record in place order, dropping nil entries.
func All(records []types.Record) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		out = append(out, Dates(r))
	}
	return out
}

func value(v any) any {
	switch x := v.(type) {
	case string:
		if t, ok := ParseDate(x); ok {
			return t
		}
		return x
	case types.Record:
		return Dates(x)
	case map[string]any:
		return map[string]any(Dates(types.Record(x)))
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = value(item)
		}
		return items
	default:
		return v
	}
}
