package media

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Connective is the unit announced between two number groups.
const Connective = "and"

// Units converts value into the ordered sound units that announce it. Only
// the integer part is spoken. Groups are thousands, hundreds and the 1-99
// remainder; 20-99 is announced units first, then tens. Connective separates
// consecutive groups.
//
// The second result is false for negative or unparsable input.
func Units(value any) ([]string, bool) {
	n, ok := IntegerPart(value)
	if !ok {
		return nil, false
	}
	return unitsOf(n), true
}

func unitsOf(n int64) []string {
	if n == 0 {
		return []string{"0"}
	}

	var groups []int64
	if n >= 1000 {
		groups = append(groups, n/1000*1000)
		n %= 1000
	}
	if n >= 100 {
		groups = append(groups, n/100*100)
		n %= 100
	}
	switch {
	case n == 0:
	case n <= 19:
		groups = append(groups, n)
	default:
		if u := n % 10; u > 0 {
			groups = append(groups, u)
		}
		groups = append(groups, n/10*10)
	}

	units := make([]string, 0, len(groups)*2-1)
	for i, g := range groups {
		if i > 0 {
			units = append(units, Connective)
		}
		units = append(units, strconv.FormatInt(g, 10))
	}
	return units
}

// IntegerPart extracts the non-negative integer part of a number or numeric
// string. "740.70" and 740.7 both yield 740.
func IntegerPart(value any) (int64, bool) {
	var s string
	switch v := value.(type) {
	case nil:
		return 0, false
	case int:
		return int64(v), v >= 0
	case int64:
		return v, v >= 0
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(math.Trunc(v)), true
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return 0, false
	}

	s = strings.TrimSpace(s)
	if whole, _, found := strings.Cut(s, "."); found {
		s = whole
	}
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// DigitsOf returns the 0-9 characters of the stringified value in order.
func DigitsOf(value string) []string {
	var out []string
	for _, r := range value {
		if r >= '0' && r <= '9' {
			out = append(out, string(r))
		}
	}
	return out
}
