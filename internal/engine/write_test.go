package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/mapping/mappingtest"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

func rel(t *testing.T, expr string) mapping.Relationship {
	t.Helper()
	r, err := mapping.ParseRelationship(expr)
	require.NoError(t, err)
	return r
}

func TestPropagate(t *testing.T) {
	rels := []mapping.Relationship{
		rel(t, "a.id = b.a_id"),
		rel(t, "b.a_id = c.ref"),
		rel(t, "a.status = 'active'"),
	}

	values := data.FromMap(map[string][]string{"a.id": {"7"}})
	propagate(values, rels)
	assert.Equal(t, []string{"7"}, values.Get("b.a_id"))
	assert.Equal(t, []string{"7"}, values.Get("c.ref"))
	assert.False(t, values.Contains("a.status"), "literals are not propagated")

	values = data.FromMap(map[string][]string{"c.ref": {"9"}, "a.id": {"1"}})
	propagate(values, rels)
	assert.Equal(t, []string{"1"}, values.Get("b.a_id"))
	assert.Equal(t, []string{"9"}, values.Get("c.ref"), "existing values are kept")
}

func TestInheritedAndLiterals(t *testing.T) {
	parent := data.FromMap(map[string][]string{"users.id": {"1"}})
	values := data.NewAttributeValues()
	inherited(values, parent, []mapping.Relationship{rel(t, "mailboxes.user_id = users.id")})
	assert.Equal(t, []string{"1"}, values.Get("mailboxes.user_id"))

	literals(values, []mapping.Relationship{rel(t, "mailboxes.kind = 'primary'")})
	assert.Equal(t, []string{"primary"}, values.Get("mailboxes.kind"))

	values.Set("mailboxes.kind", "alias")
	literals(values, []mapping.Relationship{rel(t, "mailboxes.kind = 'primary'")})
	assert.Equal(t, []string{"alias"}, values.Get("mailboxes.kind"))
}

func TestWithRDN(t *testing.T) {
	attrs := data.FromMap(map[string][]string{"ID": {"4"}, "name": {"x"}})

	got, err := withRDN(attrs, "id=4,ou=users,dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, got.Get("ID"))
	assert.False(t, got.Contains("id"))

	got, err = withRDN(attrs, "id=5,ou=users,dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, got.Get("ID"))
	assert.Equal(t, []string{"4"}, attrs.Get("ID"), "input is not modified")

	_, err = withRDN(attrs, "broken")
	assert.Equal(t, result.InvalidDNSyntax, result.CodeOf(err))
}

func TestExpandRows(t *testing.T) {
	fields := data.FromMap(map[string][]string{
		"user_id": {"1"},
		"email":   {"a@x.com", "b@x.com"},
	})
	keys := []data.Row{
		data.RowOf("user_id", "1", "email", "a@x.com"),
		data.RowOf("user_id", "1", "email", "b@x.com"),
	}

	rows := expandRows(fields, keys)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a@x.com"}, rows[0].Get("email"))
	assert.Equal(t, []string{"b@x.com"}, rows[1].Get("email"))
	assert.Equal(t, []string{"1"}, rows[1].Get("user_id"))
}

func TestValidAttributes(t *testing.T) {
	user := mappingtest.User()

	tests := []struct {
		name string
		attr string
		code result.Code
	}{
		{"mapped", "email", result.Success},
		{"mapped other case", "USERPASSWORD", result.Success},
		{"object class", "objectClass", result.UnwillingToPerform},
		{"unmapped", "description", result.UndefinedAttributeType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validAttributes(user, []directory.Modification{
				directory.NewModification(directory.ModReplace, tt.attr, "x"),
			})
			assert.Equal(t, tt.code, result.CodeOf(err))
		})
	}
}

func TestChooseMapping(t *testing.T) {
	reg := mappingtest.Registry()

	em, err := chooseMapping(reg, aliceDN, data.NewAttributeValues())
	require.NoError(t, err)
	assert.Equal(t, "user", em.ID)

	_, err = chooseMapping(reg, mappingtest.UsersDN, data.NewAttributeValues())
	assert.Equal(t, result.UnwillingToPerform, result.CodeOf(err))

	_, err = chooseMapping(reg, "cn=x,dc=example,dc=com", data.NewAttributeValues())
	assert.Equal(t, result.NamingViolation, result.CodeOf(err))
}
