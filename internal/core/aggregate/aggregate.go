// Package aggregate reduces record subsets to scalar KPI values over a
// caller-chosen field.
//
// A value is eligible when the field is present and neither null nor the
// empty string. Eligible values that do not parse as numbers still count
// and contribute 0 to sums.
package aggregate

import (
	"fmt"
	"math"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
)

type Metric string

const (
	MetricCount   Metric = "count"
	MetricSum     Metric = "sum"
	MetricAverage Metric = "average"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricCount, MetricSum, MetricAverage:
		return m, nil
	case "avg":
		return MetricAverage, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidFilter, s)
	}
}

// ParseFloat coerces a field value the way spreadsheet-style input is read:
// numbers pass through, strings contribute their longest numeric prefix,
// anything else is 0.
func ParseFloat(v any) float64 {
	return domain.CoerceFloat(v)
}

func Count(records []domain.Record, field string) int {
	n := 0
	for _, rec := range records {
		if rec.HasValue(field) {
			n++
		}
	}
	return n
}

func Sum(records []domain.Record, field string) float64 {
	total := 0.0
	for _, rec := range records {
		if rec.HasValue(field) {
			total += rec.GetFloat(field)
		}
	}
	return total
}

// Average is Sum/Count rounded to two decimals, or 0 for no eligible values.
func Average(records []domain.Record, field string) float64 {
	n := Count(records, field)
	if n == 0 {
		return 0
	}
	return Round2(Sum(records, field) / float64(n))
}

func Reduce(records []domain.Record, field string, metric Metric) (float64, error) {
	switch metric {
	case MetricCount:
		return float64(Count(records, field)), nil
	case MetricSum:
		return Sum(records, field), nil
	case MetricAverage:
		return Average(records, field), nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidFilter, metric)
	}
}

// Round2 rounds half away from zero to two decimal places.
func Round2(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	return math.Round(f*100) / 100
}
