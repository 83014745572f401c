package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSubstring(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		initial string
		any     []string
		final   string
		want    bool
	}{
		{"initial only", "John Smith", "john", nil, "", true},
		{"final only", "John Smith", "", nil, "SMITH", true},
		{"any in order", "a-b-c-d", "", []string{"b", "d"}, "", true},
		{"any out of order", "a-b-c-d", "", []string{"d", "b"}, "", false},
		{"final overlapping initial", "abc", "ab", nil, "bc", false},
		{"empty any ignored", "abc", "", []string{""}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchSubstring(tt.value, tt.initial, tt.any, tt.final))
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"numeric less", "9", "10", -1},
		{"numeric equal with spaces", " 10", "10.0", 0},
		{"numeric greater", "100", "20", 1},
		{"lexical ignoring case", "Apple", "apple", 0},
		{"lexical when one side is text", "9", "a", -1},
		{"lexical greater", "b", "A", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareValues(tt.a, tt.b))
		})
	}
}

func TestNormalizeForApprox(t *testing.T) {
	assert.Equal(t, "hello world", normalizeForApprox("  Hello\t  WORLD \n"))
	assert.True(t, matchApprox("a  b", "A B"))
	assert.False(t, matchApprox("ab", "a b"))
}
