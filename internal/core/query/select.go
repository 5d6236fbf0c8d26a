package query

import (
	"fmt"
	"sort"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
)

// TypeSelector matches records by entryType. LegacyField, when set,
// admits untyped records that carry that field.
type TypeSelector struct {
	EntryType   string
	LegacyField string
}

func (s TypeSelector) Matches(rec domain.Record) bool {
	v, ok := rec[domain.FieldEntryType]
	if ok {
		if t, isString := v.(string); isString && t == s.EntryType {
			return true
		}
	}
	if !isFalsy(v) {
		return false
	}
	return s.LegacyField != "" && rec.HasValue(s.LegacyField)
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0 || t != t
	case int:
		return t == 0
	default:
		return false
	}
}

func SelectByType(records []domain.Record, sel TypeSelector) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if sel.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// SelectByDate keeps records whose effective date matches every set
// component of f. Records without a usable date only survive an empty
// filter.
func SelectByDate(records []domain.Record, dateField string, f domain.DateFilter) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	if f.IsZero() {
		return append(out, records...)
	}
	for _, rec := range records {
		t, ok := EffectiveDate(rec, dateField)
		if ok && f.Matches(t) {
			out = append(out, rec)
		}
	}
	return out
}

// SortByDate orders records by effective date ascending. Ties keep their
// input order; undated records go last.
func SortByDate(records []domain.Record, dateField string) []domain.Record {
	type keyed struct {
		rec   domain.Record
		at    int64
		dated bool
	}
	items := make([]keyed, len(records))
	for i, rec := range records {
		t, ok := EffectiveDate(rec, dateField)
		items[i] = keyed{rec: rec, at: t.UnixNano(), dated: ok}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.dated != b.dated {
			return a.dated
		}
		return a.dated && a.at < b.at
	})
	out := make([]domain.Record, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}

type Period string

const (
	PeriodYear  Period = "year"
	PeriodMonth Period = "month"
	PeriodDay   Period = "day"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodYear, PeriodMonth, PeriodDay:
		return p, nil
	case "":
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", domain.ErrInvalidFilter, s)
	}
}

func (p Period) layout() string {
	switch p {
	case PeriodYear:
		return "2006"
	case PeriodDay:
		return "2006-01-02"
	default:
		return "2006-01"
	}
}

type Group struct {
	Key     string
	Records []domain.Record
}

// GroupByPeriod buckets dated records by year, month, or day of their
// effective date. Buckets come back in ascending key order; undated
// records are left out.
func GroupByPeriod(records []domain.Record, dateField string, period Period) []Group {
	layout := period.layout()
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, rec := range SortByDate(records, dateField) {
		t, ok := EffectiveDate(rec, dateField)
		if !ok {
			continue
		}
		key := t.Format(layout)
		i, seen := index[key]
		if !seen {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	return groups
}
