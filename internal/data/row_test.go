package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRow(t *testing.T) {
	t.Run("construction order does not matter", func(t *testing.T) {
		a := RowOf("uid", "alice", "ou", "users")
		b := RowOf("ou", "users", "uid", "alice")
		assert.True(t, a.Equal(b))
		assert.Equal(t, a.Key(), b.Key())
		assert.Equal(t, []string{"ou", "uid"}, a.Names())
	})

	t.Run("values compare ignoring case", func(t *testing.T) {
		assert.Equal(t, 0, RowOf("uid", "Alice").Compare(RowOf("uid", "alice")))
	})

	t.Run("ordering", func(t *testing.T) {
		assert.Equal(t, -1, RowOf("id", "1").Compare(RowOf("id", "2")))
		assert.Equal(t, 1, RowOf("id", "1", "x", "a").Compare(RowOf("id", "1")))
		assert.Equal(t, -1, NewRow().Compare(RowOf("id", "1")))
	})

	t.Run("with copies", func(t *testing.T) {
		a := RowOf("id", "1")
		b := a.With("id", "2")
		v, _ := a.Get("id")
		assert.Equal(t, "1", v)
		v, _ = b.Get("id")
		assert.Equal(t, "2", v)
	})

	t.Run("conversions", func(t *testing.T) {
		r := RowOf("a", "1", "b", "2")
		assert.Equal(t, "a=1+b=2", r.String())
		assert.True(t, RowFromMap(r.ToMap()).Equal(r))
		assert.Equal(t, []string{"2"}, r.AttributeValues().Get("b"))
		assert.True(t, NewRow().IsZero())
	})
}

func TestRowSet(t *testing.T) {
	s := NewRowSet(RowOf("id", "2"), RowOf("id", "1"))
	assert.False(t, s.Add(RowOf("id", "1")))
	assert.True(t, s.Add(RowOf("id", "3")))
	assert.True(t, s.Contains(RowOf("id", "2")))

	s.Remove(RowOf("id", "2"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Row{RowOf("id", "1"), RowOf("id", "3")}, s.Rows())
}
