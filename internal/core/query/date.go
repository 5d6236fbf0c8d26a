// Package query selects and orders records for reporting views. All
// functions are pure: they never mutate their input slices or records.
package query

import (
	"math"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
)

// DefaultDateField is the record field consulted before falling back to
// the timestamp embedded in the id.
const DefaultDateField = "date"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// ParseDate interprets a field value as a point in time. Strings are tried
// against the known layouts; numbers are Unix milliseconds.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	case int:
		return time.UnixMilli(int64(t)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// EffectiveDate returns the record's date field when it parses, otherwise
// the time embedded in its id.
func EffectiveDate(rec domain.Record, dateField string) (time.Time, bool) {
	if dateField == "" {
		dateField = DefaultDateField
	}
	if v, ok := rec.Get(dateField); ok {
		if t, ok := ParseDate(v); ok {
			return t, true
		}
	}
	return domain.IDTime(rec.ID())
}
