// Package ldapconn implements a connector over an LDAP directory. A source
// maps to the entries below a base DN; fields are LDAP attributes and the
// first primary key field names the RDN attribute.
//
// Source parameters:
//
//	baseDN        subtree holding the rows (required)
//	objectClass   restricts searches and is written on add (optional)
//	rdnAttribute  RDN attribute, default the first primary key field
//	scope         "one" or "sub" (default "one")
package ldapconn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"

	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

// Conn is the part of *ldap.Conn used by the connector.
type Conn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	Bind(username, password string) error
	Close() error
}

// Options configures Dial.
type Options struct {
	URL      string
	BindDN   string
	Password string
}

// Connector reads and writes LDAP entries.
type Connector struct {
	// mu is held exclusively by Bind, which switches the connection identity.
	mu       sync.RWMutex
	conn     Conn
	bindDN   string
	password string
}

var _ connector.Connector = (*Connector)(nil)

// Dial connects and binds with the service credentials when given.
func Dial(opts Options) (*Connector, error) {
	conn, err := ldap.DialURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.URL, err)
	}
	c := New(conn, opts.BindDN, opts.Password)
	if err := c.rebind(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established connection. bindDN and password are restored
// after every Bind; an empty bindDN restores an anonymous bind.
func New(conn Conn, bindDN, password string) *Connector {
	return &Connector{conn: conn, bindDN: bindDN, password: password}
}

func (c *Connector) rebind() error {
	if c.bindDN == "" {
		return nil
	}
	if err := c.conn.Bind(c.bindDN, c.password); err != nil {
		return fmt.Errorf("failed to bind as %s: %w", c.bindDN, err)
	}
	return nil
}

func baseDN(src *mapping.Source) string {
	return src.Param("baseDN", "")
}

func rdnAttribute(src *mapping.Source) string {
	if attr := src.Param("rdnAttribute", ""); attr != "" {
		return attr
	}
	if keys := src.PrimaryKeys(); len(keys) > 0 {
		return keys[0]
	}
	return "cn"
}

// dn returns the DN of the entry addressed by key.
func dn(src *mapping.Source, key data.Row) (string, error) {
	attr := rdnAttribute(src)
	for _, name := range key.Names() {
		if strings.EqualFold(name, attr) {
			v, _ := key.Get(name)
			return data.AppendRDN(data.RowOf(attr, v), baseDN(src)), nil
		}
	}
	return "", result.Errorf(result.UnwillingToPerform, "", "", "%s: key %s lacks %s", src.Name, key, attr)
}

func fieldNames(src *mapping.Source) []string {
	names := make([]string, len(src.Fields))
	for i, f := range src.Fields {
		names[i] = f.Name
	}
	return names
}

// Search runs a search below the source base DN.
func (c *Connector) Search(ctx context.Context, src *mapping.Source, f *filter.Filter) (connector.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope := ldap.ScopeSingleLevel
	if src.Param("scope", "one") == "sub" {
		scope = ldap.ScopeWholeSubtree
	}

	conds := []*filter.Filter{f}
	if oc := src.Param("objectClass", ""); oc != "" {
		conds = append(conds, filter.NewEqualityFilter("objectClass", oc))
	}
	query := filter.And(conds...)
	if query == nil {
		query = filter.NewPresentFilter("objectClass")
	}

	req := ldap.NewSearchRequest(
		baseDN(src),
		scope,
		ldap.NeverDerefAliases,
		0, 0, false,
		query.String(),
		fieldNames(src),
		nil,
	)

	c.mu.RLock()
	res, err := c.conn.Search(req)
	c.mu.RUnlock()
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return connector.NewSliceIterator(nil), nil
		}
		return nil, wrap("search", src, err)
	}

	rows := make([]*data.AttributeValues, 0, len(res.Entries))
	for _, entry := range res.Entries {
		row := data.NewAttributeValues()
		for _, name := range fieldNames(src) {
			if values := entry.GetEqualFoldAttributeValues(name); len(values) > 0 {
				row.Add(name, values...)
			}
		}
		rows = append(rows, row)
	}
	return connector.NewSliceIterator(rows), nil
}

// Add creates the entry of a row.
func (c *Connector) Add(ctx context.Context, src *mapping.Source, fields *data.AttributeValues) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := data.NewRow()
	attr := rdnAttribute(src)
	if v, ok := fields.GetOne(attr); ok {
		key = key.With(attr, v)
	}
	entryDN, err := dn(src, key)
	if err != nil {
		return err
	}

	req := ldap.NewAddRequest(entryDN, nil)
	if oc := src.Param("objectClass", ""); oc != "" {
		req.Attribute("objectClass", []string{oc})
	}
	for _, name := range fields.Names() {
		if values := fields.Get(name); len(values) > 0 {
			req.Attribute(name, values)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return wrap("add", src, c.conn.Add(req))
}

// Modify replaces attributes of the addressed entry. Fields without
// values are deleted.
func (c *Connector) Modify(ctx context.Context, src *mapping.Source, key data.Row, fields *data.AttributeValues) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entryDN, err := dn(src, key)
	if err != nil {
		return err
	}
	req := ldap.NewModifyRequest(entryDN, nil)
	for _, name := range fields.Names() {
		if values := fields.Get(name); len(values) > 0 {
			req.Replace(name, values)
		} else {
			req.Replace(name, []string{})
		}
	}
	if len(req.Changes) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return wrap("modify", src, c.conn.Modify(req))
}

// Delete removes the addressed entry.
func (c *Connector) Delete(ctx context.Context, src *mapping.Source, key data.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entryDN, err := dn(src, key)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return wrap("delete", src, c.conn.Del(ldap.NewDelRequest(entryDN, nil)))
}

// Bind binds as the addressed entry and restores the service identity.
func (c *Connector) Bind(ctx context.Context, src *mapping.Source, key data.Row, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entryDN, err := dn(src, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	bindErr := c.conn.Bind(entryDN, password)
	if err := c.rebind(); err != nil {
		return result.New(result.Unavailable, "bind", "", err)
	}
	if bindErr != nil {
		if ldap.IsErrorWithCode(bindErr, ldap.LDAPResultInvalidCredentials) {
			return connector.InvalidCredentials(src, key)
		}
		return wrap("bind", src, bindErr)
	}
	return nil
}

// Close closes the connection.
func (c *Connector) Close() error {
	return c.conn.Close()
}

// wrap maps LDAP result codes onto engine codes; both follow RFC 4511.
func wrap(op string, src *mapping.Source, err error) error {
	if err == nil {
		return nil
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return result.New(result.Code(ldapErr.ResultCode), op, "", fmt.Errorf("%s: %w", src.Name, err))
	}
	return connector.Failure(op, src, err)
}
