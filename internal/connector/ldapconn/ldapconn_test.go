package ldapconn

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

type fakeConn struct {
	searches []*ldap.SearchRequest
	adds     []*ldap.AddRequest
	modifies []*ldap.ModifyRequest
	deletes  []*ldap.DelRequest
	binds    []string
	entries  []*ldap.Entry
	err      error
	bindErr  map[string]error
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches = append(f.searches, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ldap.SearchResult{Entries: f.entries}, nil
}

func (f *fakeConn) Add(req *ldap.AddRequest) error {
	f.adds = append(f.adds, req)
	return f.err
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	f.modifies = append(f.modifies, req)
	return f.err
}

func (f *fakeConn) Del(req *ldap.DelRequest) error {
	f.deletes = append(f.deletes, req)
	return f.err
}

func (f *fakeConn) Bind(username, _ string) error {
	f.binds = append(f.binds, username)
	return f.bindErr[username]
}

func (f *fakeConn) Close() error { return nil }

var people = &mapping.Source{
	Name:   "people",
	Params: map[string]string{"baseDN": "ou=people,dc=corp", "objectClass": "inetOrgPerson"},
	Fields: []mapping.SourceField{
		{Name: "uid", PrimaryKey: true},
		{Name: "cn"},
		{Name: "mail"},
	},
}

func TestSearch(t *testing.T) {
	conn := &fakeConn{entries: []*ldap.Entry{
		ldap.NewEntry("uid=alice,ou=people,dc=corp", map[string][]string{
			"uid":  {"alice"},
			"CN":   {"Alice"},
			"mail": {"a@corp", "alice@corp"},
			"sn":   {"ignored"},
		}),
	}}
	c := New(conn, "", "")
	ctx := context.Background()

	it, err := c.Search(ctx, people, filter.MustParse("(cn=Alice)"))
	require.NoError(t, err)
	rows, err := connector.Collect(ctx, it)
	require.NoError(t, err)

	require.Len(t, conn.searches, 1)
	req := conn.searches[0]
	assert.Equal(t, "ou=people,dc=corp", req.BaseDN)
	assert.Equal(t, ldap.ScopeSingleLevel, req.Scope)
	assert.Equal(t, "(&(cn=Alice)(objectClass=inetOrgPerson))", req.Filter)
	assert.Equal(t, []string{"uid", "cn", "mail"}, req.Attributes)

	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Alice"}, rows[0].Get("cn"))
	assert.Len(t, rows[0].Get("mail"), 2)
	assert.False(t, rows[0].Contains("sn"))
}

func TestSearchMissingBase(t *testing.T) {
	conn := &fakeConn{err: ldap.NewError(ldap.LDAPResultNoSuchObject, nil)}
	c := New(conn, "", "")
	it, err := c.Search(context.Background(), people, nil)
	require.NoError(t, err)
	assert.False(t, it.Next())
}

func TestWrites(t *testing.T) {
	conn := &fakeConn{}
	c := New(conn, "", "")
	ctx := context.Background()

	fields := data.FromMap(map[string][]string{"uid": {"bob"}, "cn": {"Bob"}})
	require.NoError(t, c.Add(ctx, people, fields))
	require.Len(t, conn.adds, 1)
	assert.Equal(t, "uid=bob,ou=people,dc=corp", conn.adds[0].DN)

	changes := data.NewAttributeValues()
	changes.Set("cn", "Robert")
	changes.Set("mail")
	require.NoError(t, c.Modify(ctx, people, data.RowOf("uid", "bob"), changes))
	require.Len(t, conn.modifies, 1)
	assert.Len(t, conn.modifies[0].Changes, 2)

	require.NoError(t, c.Delete(ctx, people, data.RowOf("uid", "bob")))
	assert.Equal(t, "uid=bob,ou=people,dc=corp", conn.deletes[0].DN)

	err := c.Delete(ctx, people, data.RowOf("cn", "Bob"))
	assert.Equal(t, result.UnwillingToPerform, result.CodeOf(err))
}

func TestErrorCodes(t *testing.T) {
	conn := &fakeConn{err: ldap.NewError(ldap.LDAPResultNoSuchObject, nil)}
	c := New(conn, "", "")
	err := c.Delete(context.Background(), people, data.RowOf("uid", "ghost"))
	assert.True(t, result.IsNotFound(err))

	conn.err = ldap.NewError(ldap.LDAPResultEntryAlreadyExists, nil)
	err = c.Add(context.Background(), people, data.FromMap(map[string][]string{"uid": {"x"}}))
	assert.Equal(t, result.EntryAlreadyExists, result.CodeOf(err))
}

func TestBind(t *testing.T) {
	conn := &fakeConn{bindErr: map[string]error{
		"uid=eve,ou=people,dc=corp": ldap.NewError(ldap.LDAPResultInvalidCredentials, nil),
	}}
	c := New(conn, "cn=svc,dc=corp", "pw")
	ctx := context.Background()

	require.NoError(t, c.Bind(ctx, people, data.RowOf("uid", "alice"), "secret"))
	err := c.Bind(ctx, people, data.RowOf("uid", "eve"), "bad")
	assert.Equal(t, result.InvalidCredentials, result.CodeOf(err))

	assert.Equal(t, []string{
		"uid=alice,ou=people,dc=corp", "cn=svc,dc=corp",
		"uid=eve,ou=people,dc=corp", "cn=svc,dc=corp",
	}, conn.binds)
}
