package domain

import "time"

// DateFilter selects records by components of their effective date.
// Month is zero-indexed (0 = January). Nil components always match.
type DateFilter struct {
	Year  *int
	Month *int
	Day   *int
}

func (f DateFilter) IsZero() bool {
	return f.Year == nil && f.Month == nil && f.Day == nil
}

func (f DateFilter) Validate() error {
	if f.Month != nil && (*f.Month < 0 || *f.Month > 11) {
		return ErrInvalidFilter
	}
	if f.Day != nil && (*f.Day < 1 || *f.Day > 31) {
		return ErrInvalidFilter
	}
	return nil
}

// Matches compares t's UTC calendar components against the filter.
func (f DateFilter) Matches(t time.Time) bool {
	t = t.UTC()
	if f.Year != nil && t.Year() != *f.Year {
		return false
	}
	if f.Month != nil && int(t.Month())-1 != *f.Month {
		return false
	}
	if f.Day != nil && t.Day() != *f.Day {
		return false
	}
	return true
}

// DateFilterFromCalendar builds a filter from 1-indexed UI input. Zero
// values mean "not set".
func DateFilterFromCalendar(year, month, day int) DateFilter {
	var f DateFilter
	if year != 0 {
		y := year
		f.Year = &y
	}
	if month != 0 {
		m := month - 1
		f.Month = &m
	}
	if day != 0 {
		d := day
		f.Day = &d
	}
	return f
}
