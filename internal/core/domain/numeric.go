package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CoerceFloat converts a dynamically typed value to a number the way a
// permissive parse-float does: numbers pass through, strings contribute
// their longest numeric prefix, everything else is 0.
func CoerceFloat(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		return ParseFloatPrefix(t.String())
	case string:
		return ParseFloatPrefix(t)
	default:
		return 0
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}

// ParseFloatPrefix parses the longest leading decimal literal of s after
// skipping leading whitespace. "12abc" is 12, "abc" is 0, "-Infinity" is
// negative infinity.
func ParseFloatPrefix(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\r\v\f\u00a0\ufeff")
	if s == "" {
		return 0
	}

	i := 0
	if s[i] == '+' || s[i] == '-' {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	end := i

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expDigits := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			expDigits++
		}
		if expDigits > 0 {
			end = j
		}
	}

	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		// ParseFloat reports range errors with a signed infinity or zero.
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return f
		}
		return 0
	}
	return f
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// FormatNumber renders a float without a trailing ".0" for integral values.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
