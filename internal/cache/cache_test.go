package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
)

func TestMemoryCacheBounds(t *testing.T) {
	ctx := context.Background()

	t.Run("evicts least recently used", func(t *testing.T) {
		c := NewMemoryEntryCache(2, 0)
		for _, dn := range []string{"id=1,dc=x", "id=2,dc=x"} {
			require.NoError(t, c.Put(ctx, directory.NewEntry(dn)))
		}
		_, ok, _ := c.Get(ctx, "id=1,dc=x")
		require.True(t, ok)
		require.NoError(t, c.Put(ctx, directory.NewEntry("id=3,dc=x")))

		_, ok, _ = c.Get(ctx, "id=2,dc=x")
		assert.False(t, ok)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("replace keeps size", func(t *testing.T) {
		c := NewMemoryEntryCache(2, 0)
		e := directory.NewEntry("id=1,dc=x")
		require.NoError(t, c.Put(ctx, e))
		e.SetAttribute("name", "b")
		require.NoError(t, c.Put(ctx, e))

		got, ok, _ := c.Get(ctx, e.DN)
		require.True(t, ok)
		assert.Equal(t, "b", got.GetFirstAttribute("name"))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("expires", func(t *testing.T) {
		c := NewMemoryFilterCache(0, 20*time.Millisecond)
		key := FilterKey{Mapping: "user", Filter: "(name=a)"}
		require.NoError(t, c.Put(ctx, key, []data.Row{data.RowOf("id", "1")}))
		_, ok, _ := c.Get(ctx, key)
		assert.True(t, ok)

		require.Eventually(t, func() bool {
			_, ok, _ := c.Get(ctx, key)
			return !ok
		}, time.Second, 5*time.Millisecond)
	})
}

func TestMemoryEntryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryEntryCache(10, 0)

	e := directory.NewEntry("id=1,ou=Users,dc=example")
	e.SetAttribute("name", "Alice")
	require.NoError(t, c.Put(ctx, e))

	e.SetAttribute("name", "changed after put")
	got, ok, err := c.Get(ctx, "ID=1,ou=users,DC=example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", got.GetFirstAttribute("name"))

	got.SetAttribute("name", "changed after get")
	again, _, _ := c.Get(ctx, e.DN)
	assert.Equal(t, "Alice", again.GetFirstAttribute("name"))

	require.NoError(t, c.Remove(ctx, e.DN))
	_, ok, _ = c.Get(ctx, e.DN)
	assert.False(t, ok)
}

func TestMemoryFilterCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryFilterCache(0, 0)
	rows := []data.Row{data.RowOf("id", "1"), data.RowOf("id", "2")}

	require.NoError(t, c.Put(ctx, FilterKey{Mapping: "user", Filter: "(name=A)"}, rows))
	require.NoError(t, c.Put(ctx, FilterKey{Mapping: "mailbox", Filter: "(mail=*)"}, rows[:1]))

	got, ok, err := c.Get(ctx, FilterKey{Mapping: "user", Filter: "(NAME=a)"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, got)

	require.NoError(t, c.Invalidate(ctx, "user"))
	_, ok, _ = c.Get(ctx, FilterKey{Mapping: "user", Filter: "(name=A)"})
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, FilterKey{Mapping: "mailbox", Filter: "(mail=*)"})
	assert.True(t, ok)

	require.NoError(t, c.Purge(ctx))
	assert.Zero(t, c.Len())
}
