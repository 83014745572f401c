package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/interpreter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/mapping/mappingtest"
)

func newEngine() *Engine {
	return New(interpreter.MustCEL())
}

func TestEvaluate(t *testing.T) {
	e := newEngine()
	vars := data.FromMap(map[string][]string{
		"mail": {"A@x.com", "b@X.com"},
		"uid":  {"alice"},
	})

	tests := []struct {
		name string
		expr mapping.Expression
		want []string
	}{
		{"constant", mapping.Constant("person"), []string{"person"}},
		{"empty constant", mapping.Constant(""), nil},
		{"variable", mapping.Variable("uid"), []string{"alice"}},
		{"variable ignores case", mapping.Variable("UID"), []string{"alice"}},
		{"missing variable", mapping.Variable("cn"), nil},
		{"script", mapping.Script(`uid.upperAscii()`), []string{"ALICE"}},
		{"foreach script", mapping.Expression{Foreach: "mail", Var: "m", Script: `m.lowerAscii()`}, []string{"a@x.com", "b@x.com"}},
		{"foreach identity", mapping.Expression{Foreach: "mail", Var: "m"}, []string{"A@x.com", "b@X.com"}},
		{"foreach deduplicates", mapping.Expression{Foreach: "mail", Var: "m", Script: `"same"`}, []string{"same"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateToSource(t *testing.T) {
	e := newEngine()
	user := mappingtest.Registry().Entry("user")

	attrs := data.FromMap(map[string][]string{
		"id":    {"1"},
		"name":  {"A"},
		"email": {"a@x.com"},
	})

	fields, keys, err := e.TranslateToSource(user.Source("users"), attrs)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"id": {"1"}, "name": {"A"}}, fields.ToMap())
	assert.Equal(t, []data.Row{data.RowOf("id", "1")}, keys)

	t.Run("missing key yields no rows", func(t *testing.T) {
		emails, keys, err := e.TranslateToSource(user.Source("emails"), attrs)
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x.com"}, emails.Get("email"))
		assert.Nil(t, keys, "user_id is only known after join propagation")
	})

	t.Run("failing key expression aborts", func(t *testing.T) {
		sm := mapping.NewSourceMapping("s", "users",
			&mapping.FieldMapping{Name: "id", Expression: mapping.Script(`nope + 1`), PrimaryKey: true},
		)
		_, _, err := e.TranslateToSource(sm, attrs)
		assert.ErrorIs(t, err, ErrMissingKey)
	})

	t.Run("failing non-key expression is skipped", func(t *testing.T) {
		sm := mapping.NewSourceMapping("s", "users",
			&mapping.FieldMapping{Name: "id", Expression: mapping.Variable("id"), PrimaryKey: true},
			&mapping.FieldMapping{Name: "bad", Expression: mapping.Script(`nope + 1`)},
		)
		fields, keys, err := e.TranslateToSource(sm, attrs)
		require.NoError(t, err)
		assert.False(t, fields.Contains("bad"))
		assert.Len(t, keys, 1)
	})
}

func TestTranslateToEntry(t *testing.T) {
	e := newEngine()
	user := mappingtest.Registry().Entry("user")

	values := data.NewAttributeValues()
	values.Add("users.id", "1")
	values.Add("users.name", "A")
	values.Add("emails.user_id", "1")
	values.Add("emails.email", "a@x.com", "b@x.com")

	attrs, rdns, err := e.TranslateToEntry(user, values)
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, attrs.Get(ObjectClassAttribute))
	assert.Equal(t, []string{"1"}, attrs.Get("id"))
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, attrs.Get("email"))
	assert.Equal(t, []string{"A #1"}, attrs.Get("cn"))
	assert.False(t, attrs.Contains("userPassword"))
	assert.Equal(t, []data.Row{data.RowOf("id", "1")}, rdns)

	t.Run("missing rdn value", func(t *testing.T) {
		_, rdns, err := e.TranslateToEntry(user, data.FromMap(map[string][]string{"emails.email": {"x"}}))
		require.NoError(t, err)
		assert.Nil(t, rdns)
	})
}

// A source with only direct field expressions reproduces the primary key
// after a round trip through the entry level.
func TestRoundTrip(t *testing.T) {
	e := newEngine()
	user := mappingtest.Registry().Entry("user")
	users := user.Source("users")

	original := data.FromMap(map[string][]string{
		"id":           {"7"},
		"name":         {"G"},
		"userPassword": {"secret"},
	})
	fields, keys, err := e.TranslateToSource(users, original)
	require.NoError(t, err)

	attrs, _, err := e.TranslateToEntry(user, fields.Prefixed(users.Alias))
	require.NoError(t, err)

	_, again, err := e.TranslateToSource(users, attrs)
	require.NoError(t, err)
	assert.Equal(t, keys, again)
	assert.Equal(t, []data.Row{data.RowOf("id", "7")}, again)
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name   string
		values map[string][]string
		want   int
	}{
		{"no names", map[string][]string{}, 1},
		{"single", map[string][]string{"a": {"1"}}, 1},
		{"product", map[string][]string{"a": {"1", "2"}, "b": {"x", "y", "z"}}, 6},
		{"empty set counts as one", map[string][]string{"a": {"1", "2"}, "b": {}}, 2},
		{"three names", map[string][]string{"a": {"1", "2"}, "b": {"3", "4"}, "c": {"5", "6"}}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			av := data.FromMap(tt.values)
			rows := Convert(av)
			assert.Len(t, rows, tt.want)
			assert.Equal(t, tt.want, ConvertSize(av))
			assert.Equal(t, tt.want, data.NewRowSet(rows...).Len(), "rows are distinct")
		})
	}

	t.Run("empty set is absent from rows", func(t *testing.T) {
		rows := Convert(data.FromMap(map[string][]string{"a": {"1"}, "b": {}}))
		require.Len(t, rows, 1)
		assert.Equal(t, []string{"a"}, rows[0].Names())
	})
}

func TestKeys(t *testing.T) {
	user := mappingtest.Registry().Entry("user")
	emails := user.Source("emails")

	fields := data.FromMap(map[string][]string{
		"user_id": {"1"},
		"email":   {"a@x.com", "b@x.com"},
	})
	assert.Equal(t, []data.Row{
		data.RowOf("email", "a@x.com", "user_id", "1"),
		data.RowOf("email", "b@x.com", "user_id", "1"),
	}, PrimaryKeys(emails, fields))

	assert.Nil(t, RDNs(user, data.NewAttributeValues()))
}
