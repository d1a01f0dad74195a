package liststate

import (
	"math"
	"strconv"
	"strings"
)

// maxSafeInteger is the largest integer a query value may carry.
const maxSafeInteger = 1<<53 - 1

// ExtractValidPositiveInteger parses s as an integer >= 1. Surrounding spaces
// are ignored and integral decimals such as "3.0" are accepted. Anything else,
// including zero, fractions and out of range values, is rejected.
func ExtractValidPositiveInteger(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return checkPositive(float64(n))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return checkPositive(f)
}

func checkPositive(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < 1 || f > maxSafeInteger {
		return 0, false
	}
	return int(f), true
}
