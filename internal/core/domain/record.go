package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	FieldID        = "id"
	FieldEntryType = "entryType"

	// IDLayout is the layout of store-assigned identifiers. Fixed width so
	// that lexical order equals creation order.
	IDLayout = "2006-01-02T15:04:05.000000Z"
)

var ErrInvalidRecord = errors.New("record must be a json object")

// Record is a schema-free stored document. The store owns the "id" key;
// every other key is caller defined.
type Record map[string]any

// ParseRecord decodes a JSON object into a Record. Numbers stay float64,
// matching what json.Unmarshal produces for interface values.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, ErrInvalidRecord
	}
	if rec == nil {
		return nil, ErrInvalidRecord
	}
	return rec, nil
}

func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// EntryType returns the discriminator when it is a string. Absent or
// non-string values yield "".
func (r Record) EntryType() string {
	t, _ := r[FieldEntryType].(string)
	return t
}

func (r Record) Get(field string) (any, bool) {
	v, ok := r[field]
	return v, ok
}

// GetString renders scalar values as text. Objects and arrays yield "".
func (r Record) GetString(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return FormatNumber(t)
	case json.Number:
		return t.String()
	case int:
		return fmt.Sprint(t)
	case int64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// GetFloat applies the lenient numeric coercion used by aggregation:
// unparsable values become 0.
func (r Record) GetFloat(field string) float64 {
	v, ok := r[field]
	if !ok {
		return 0
	}
	return CoerceFloat(v)
}

// HasValue reports whether field is present and neither null nor "".
func (r Record) HasValue(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && s == "" {
		return false
	}
	return true
}

// Clone returns a deep copy so callers never alias stored state.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case Record:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// IDTime parses the timestamp embedded in a store-assigned id.
func IDTime(id string) (time.Time, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, id)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// NextID returns an id for now that sorts strictly after last.
func NextID(now time.Time, last string) string {
	now = now.UTC().Truncate(time.Microsecond)
	if lastAt, ok := IDTime(last); ok && !now.After(lastAt) {
		now = lastAt.Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now.Format(IDLayout)
}
