package filter

import (
	"strconv"
	"strings"
)

// matchEquality performs case-insensitive equality matching.
// This is the default matching behavior for directory string attributes.
func matchEquality(a, b string) bool {
	return strings.EqualFold(a, b)
}

// matchSubstring checks if a value matches a substring filter pattern.
// The pattern consists of optional initial, any (middle), and final components.
func matchSubstring(value, initial string, any []string, final string) bool {
	valueLower := strings.ToLower(value)
	pos := 0

	if initial != "" {
		initialLower := strings.ToLower(initial)
		if !strings.HasPrefix(valueLower, initialLower) {
			return false
		}
		pos = len(initialLower)
	}

	for _, substr := range any {
		if substr == "" {
			continue
		}
		substrLower := strings.ToLower(substr)
		idx := strings.Index(valueLower[pos:], substrLower)
		if idx < 0 {
			return false
		}
		pos += idx + len(substrLower)
	}

	if final != "" {
		if !strings.HasSuffix(valueLower[pos:], strings.ToLower(final)) {
			return false
		}
	}

	return true
}

// CompareValues orders two attribute values. Values that both parse as
// numbers compare numerically; everything else compares lexicographically
// ignoring case. It returns -1, 0 or 1.
func CompareValues(a, b string) int {
	if fa, err := strconv.ParseFloat(strings.TrimSpace(a), 64); err == nil {
		if fb, err := strconv.ParseFloat(strings.TrimSpace(b), 64); err == nil {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// matchGreaterOrEqual reports value >= threshold under CompareValues.
func matchGreaterOrEqual(value, threshold string) bool {
	return CompareValues(value, threshold) >= 0
}

// matchLessOrEqual reports value <= threshold under CompareValues.
func matchLessOrEqual(value, threshold string) bool {
	return CompareValues(value, threshold) <= 0
}

// matchApprox performs approximate matching on whitespace-collapsed,
// lower-cased values.
func matchApprox(a, b string) bool {
	return normalizeForApprox(a) == normalizeForApprox(b)
}

// normalizeForApprox converts to lowercase and collapses runs of whitespace.
func normalizeForApprox(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
