package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimplify(t *testing.T) {
	tests := []struct {
		name  string
		input *Filter
		want  string
	}{
		{"nil", nil, ""},
		{"flatten and", MustParse("(&(a=1)(&(b=2)(c=3)))"), "(&(a=1)(b=2)(c=3))"},
		{"remove duplicates", MustParse("(|(a=1)(a=1)(b=2))"), "(|(a=1)(b=2))"},
		{"unwrap single child", MustParse("(&(a=1)(a=1))"), "(a=1)"},
		{"double negation", MustParse("(!(!(a=1)))"), "(a=1)"},
		{"mixed types kept", MustParse("(&(a=1)(|(b=2)(c=3)))"), "(&(a=1)(|(b=2)(c=3)))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Simplify(tt.input).String())
		})
	}
}

func TestCombine(t *testing.T) {
	a := NewEqualityFilter("a", "1")
	b := NewEqualityFilter("b", "2")

	assert.Nil(t, And())
	assert.Nil(t, Or(nil, nil))
	assert.Same(t, a, And(nil, a))
	assert.Equal(t, "(&(a=1)(b=2))", And(a, b).String())
	assert.Equal(t, "(|(a=1)(b=2))", Or(a, Or(b, a)).String())
}
