package interpreter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

func TestCELEval(t *testing.T) {
	c := MustCEL()

	vars := data.NewAttributeValues()
	vars.Add("users.id", "1")
	vars.Add("users.name", "Alice")
	vars.Add("emails.email", "A@X.com", "b@x.com")
	vars.Add("uid", "alice")

	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"qualified concatenation", `users.name + " #" + users.id`, []string{"Alice #1"}},
		{"plain identifier", `uid`, []string{"alice"}},
		{"multi-valued list", `emails.email`, []string{"A@X.com", "b@x.com"}},
		{"map macro", `emails.email.map(e, e.lowerAscii())`, []string{"a@x.com", "b@x.com"}},
		{"integer arithmetic", `int(users.id) + 41`, []string{"42"}},
		{"boolean", `users.name.startsWith("Al")`, []string{"true"}},
		{"presence test", `has(users.phone) ? users.phone : "none"`, []string{"none"}},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Eval(tt.script, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unbound variable", func(t *testing.T) {
		_, err := c.Eval(`missing + "x"`, vars)
		assert.ErrorIs(t, err, ErrEval)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := c.Eval(`users.name +`, vars)
		assert.ErrorIs(t, err, ErrParse)
	})
}

func TestCELParseVariables(t *testing.T) {
	c := MustCEL()

	tests := []struct {
		script string
		want   []string
	}{
		{`users.name + " #" + users.id`, []string{"users.name", "users.id"}},
		{`uid`, []string{"uid"}},
		{`emails.email.map(e, e.lowerAscii())`, []string{"emails.email"}},
		{`[a, b.c, {"k": d}]`, []string{"a", "b.c", "d"}},
		{`has(users.phone) ? users.phone : users.mobile`, []string{"users.phone", "users.mobile"}},
		{`size(x) > 0 && x.exists(v, v == y)`, []string{"x", "y"}},
		{`"constant"`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			got, err := c.ParseVariables(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := c.ParseVariables("(")
	assert.ErrorIs(t, err, ErrParse)
}

func TestActivation(t *testing.T) {
	vars := data.NewAttributeValues()
	vars.Add("a.x", "1")
	vars.Add("a.y", "2", "3")
	vars.Add("b", "4")
	vars.Add("empty")

	assert.Equal(t, map[string]any{
		"a": map[string]any{"x": "1", "y": []string{"2", "3"}},
		"b": "4",
	}, Activation(vars))
}

func TestCELConcurrentUse(t *testing.T) {
	c := MustCEL()
	vars := data.NewAttributeValues()
	vars.Add("n", "2")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Eval(`int(n) * 2`, vars)
			assert.NoError(t, err)
			assert.Equal(t, []string{"4"}, got)
		}()
	}
	wg.Wait()
}
