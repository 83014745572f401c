package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDN(t *testing.T) {
	t.Run("components leaf first", func(t *testing.T) {
		rdns, err := ParseDN("uid=alice,ou=users,dc=example,dc=com")
		require.NoError(t, err)
		require.Len(t, rdns, 4)
		assert.Equal(t, []string{"uid"}, rdns[0].Types)
		assert.Equal(t, []string{"alice"}, rdns[0].Values)
	})

	t.Run("multi-valued rdn", func(t *testing.T) {
		rdns, err := ParseDN("cn=a+sn=b,dc=com")
		require.NoError(t, err)
		assert.True(t, rdns[0].Row().Equal(RowOf("cn", "a", "sn", "b")))
	})

	t.Run("empty", func(t *testing.T) {
		rdns, err := ParseDN("  ")
		require.NoError(t, err)
		assert.Empty(t, rdns)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseDN("not a dn")
		assert.ErrorIs(t, err, ErrInvalidDN)
	})
}

func TestDNHelpers(t *testing.T) {
	assert.True(t, EqualDN("UID=Alice,OU=Users,DC=Example", "uid=alice,ou=users,dc=example"))
	assert.Equal(t, "uid=alice,ou=users", NormalizeDN("UID=Alice,OU=Users"))

	parent, err := ParentDN("uid=alice,ou=users,dc=com")
	require.NoError(t, err)
	assert.Equal(t, "ou=users,dc=com", parent)

	leaf, err := LeafRDN("uid=alice,ou=users")
	require.NoError(t, err)
	assert.True(t, leaf.Equal(RowOf("uid", "alice")))

	assert.Equal(t, "uid=a\\,b,ou=users", AppendRDN(RowOf("uid", "a,b"), "ou=users"))
	assert.Equal(t, "uid=a", AppendRDN(RowOf("uid", "a"), ""))

	assert.Equal(t, 3, DNDepth("a=1,b=2,c=3"))
	assert.Equal(t, 0, DNDepth(""))

	assert.True(t, IsUnder("uid=a,ou=users,dc=com", "dc=com"))
	assert.True(t, IsUnder("dc=com", "DC=com"))
	assert.True(t, IsUnder("dc=com", ""))
	assert.False(t, IsUnder("dc=org", "dc=com"))

	assert.True(t, IsChildOf("uid=a,ou=users", "ou=users"))
	assert.False(t, IsChildOf("uid=a,ou=x,ou=users", "ou=users"))
}

func TestEscapeDNValue(t *testing.T) {
	tests := map[string]string{
		"plain":     "plain",
		"a,b":       `a\,b`,
		"#lead":     `\#lead`,
		"mid#":      "mid#",
		" padded ":  `\ padded\ `,
		`a+b=c"<>;`: `a\+b\=c\"\<\>\;`,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, EscapeDNValue(in))
		})
	}
}
