// Package sqldb implements a connector over database/sql. Each source maps
// to one table (the "table" parameter, default the source name) whose
// columns are the source fields. The sqlite driver is registered so that
// "sqlite" DSNs work out of the box.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// DriverSQLite is the driver name registered by modernc.org/sqlite.
const DriverSQLite = "sqlite"

// Connector reads and writes SQL tables.
type Connector struct {
	db *sql.DB
}

var _ connector.Connector = (*Connector)(nil)

// Open opens a database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Connector, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if strings.Contains(dsn, ":memory:") {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return New(db), nil
}

// New wraps an open database.
func New(db *sql.DB) *Connector {
	return &Connector{db: db}
}

// DB returns the underlying database.
func (c *Connector) DB() *sql.DB {
	return c.db
}

func table(src *mapping.Source) string {
	return quote(src.Param("table", src.Name))
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func columns(src *mapping.Source) []string {
	names := make([]string, len(src.Fields))
	for i, f := range src.Fields {
		names[i] = f.Name
	}
	return names
}

func column(src *mapping.Source, name string) (string, bool) {
	for _, f := range src.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Name, true
		}
	}
	return "", false
}

// Search runs a SELECT over the declared columns.
func (c *Connector) Search(ctx context.Context, src *mapping.Source, f *filter.Filter) (connector.Iterator, error) {
	cols := columns(src)
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quote(col)
	}
	query := "SELECT " + strings.Join(quoted, ", ") + " FROM " + table(src)

	var args []any
	if f != nil {
		where, whereArgs := whereClause(src, f)
		query += " WHERE " + where
		args = whereArgs
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, connector.Failure("search", src, err)
	}
	return &rowIterator{rows: rows, cols: cols, src: src}, nil
}

// whereClause renders f as a SQL condition. Attributes that are not
// columns of src never match.
func whereClause(src *mapping.Source, f *filter.Filter) (string, []any) {
	switch f.Type {
	case filter.FilterAnd, filter.FilterOr:
		if len(f.Children) == 0 {
			if f.Type == filter.FilterAnd {
				return "1=1", nil
			}
			return "1=0", nil
		}
		sep := " AND "
		if f.Type == filter.FilterOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(f.Children))
		var args []any
		for _, child := range f.Children {
			part, childArgs := whereClause(src, child)
			parts = append(parts, part)
			args = append(args, childArgs...)
		}
		return "(" + strings.Join(parts, sep) + ")", args

	case filter.FilterNot:
		if f.Child == nil {
			return "1=0", nil
		}
		part, args := whereClause(src, f.Child)
		return "NOT " + part, args
	}

	col, ok := column(src, f.Attribute)
	if !ok {
		return "1=0", nil
	}
	q := quote(col)
	switch f.Type {
	case filter.FilterPresent:
		return "(" + q + " IS NOT NULL)", nil
	case filter.FilterGreaterOrEqual:
		return "(" + q + " >= ?)", []any{f.Value}
	case filter.FilterLessOrEqual:
		return "(" + q + " <= ?)", []any{f.Value}
	case filter.FilterSubstring:
		return "(LOWER(" + q + `) LIKE ? ESCAPE '\')`, []any{likePattern(f.Substring)}
	default:
		return "(LOWER(" + q + ") = LOWER(?))", []any{f.Value}
	}
}

func likePattern(sf *filter.SubstringFilter) string {
	escape := func(s string) string {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, "%", `\%`)
		s = strings.ReplaceAll(s, "_", `\_`)
		return strings.ToLower(s)
	}
	var sb strings.Builder
	sb.WriteString(escape(sf.Initial))
	sb.WriteByte('%')
	for _, a := range sf.Any {
		sb.WriteString(escape(a))
		sb.WriteByte('%')
	}
	sb.WriteString(escape(sf.Final))
	return sb.String()
}

func keyClause(src *mapping.Source, key data.Row) (string, []any) {
	var parts []string
	var args []any
	for _, name := range key.Names() {
		v, _ := key.Get(name)
		col, ok := column(src, name)
		if !ok {
			col = name
		}
		parts = append(parts, "LOWER("+quote(col)+") = LOWER(?)")
		args = append(args, v)
	}
	if len(parts) == 0 {
		return "1=0", nil
	}
	return strings.Join(parts, " AND "), args
}

// Add inserts the first value of every field. A row with the same primary
// key fails with EntryAlreadyExists.
func (c *Connector) Add(ctx context.Context, src *mapping.Source, fields *data.AttributeValues) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return connector.Failure("add", src, err)
	}
	defer func() { _ = tx.Rollback() }()

	if key, ok := primaryKey(src, fields); ok {
		where, args := keyClause(src, key)
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table(src)+" WHERE "+where, args...).Scan(&n); err != nil {
			return connector.Failure("add", src, err)
		}
		if n > 0 {
			return connector.AlreadyExists("add", src, key)
		}
	}

	var cols, marks []string
	var args []any
	for _, name := range fields.Names() {
		v, ok := fields.GetOne(name)
		if !ok {
			continue
		}
		col, known := column(src, name)
		if !known {
			continue
		}
		cols = append(cols, quote(col))
		marks = append(marks, "?")
		args = append(args, v)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table(src), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return connector.Failure("add", src, err)
	}
	if err := tx.Commit(); err != nil {
		return connector.Failure("add", src, err)
	}
	return nil
}

// Modify updates the listed columns; a field without values becomes NULL.
func (c *Connector) Modify(ctx context.Context, src *mapping.Source, key data.Row, fields *data.AttributeValues) error {
	var sets []string
	var args []any
	for _, name := range fields.Names() {
		col, known := column(src, name)
		if !known {
			continue
		}
		sets = append(sets, quote(col)+" = ?")
		if v, ok := fields.GetOne(name); ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	where, keyArgs := keyClause(src, key)
	args = append(args, keyArgs...)

	res, err := c.db.ExecContext(ctx, "UPDATE "+table(src)+" SET "+strings.Join(sets, ", ")+" WHERE "+where, args...)
	if err != nil {
		return connector.Failure("modify", src, err)
	}
	return affected(res, "modify", src, key)
}

// Delete removes the addressed row.
func (c *Connector) Delete(ctx context.Context, src *mapping.Source, key data.Row) error {
	where, args := keyClause(src, key)
	res, err := c.db.ExecContext(ctx, "DELETE FROM "+table(src)+" WHERE "+where, args...)
	if err != nil {
		return connector.Failure("delete", src, err)
	}
	return affected(res, "delete", src, key)
}

// Bind compares password with the password column of the addressed row,
// named by the "passwordField" parameter (default "password").
func (c *Connector) Bind(ctx context.Context, src *mapping.Source, key data.Row, password string) error {
	col := src.Param("passwordField", "password")
	where, args := keyClause(src, key)

	var stored sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT "+quote(col)+" FROM "+table(src)+" WHERE "+where, args...).Scan(&stored)
	if err == sql.ErrNoRows {
		return connector.NotFound("bind", src, key)
	}
	if err != nil {
		return connector.Failure("bind", src, err)
	}
	if !stored.Valid || stored.String != password {
		return connector.InvalidCredentials(src, key)
	}
	return nil
}

// Close closes the database.
func (c *Connector) Close() error {
	return c.db.Close()
}

func affected(res sql.Result, op string, src *mapping.Source, key data.Row) error {
	n, err := res.RowsAffected()
	if err != nil {
		return connector.Failure(op, src, err)
	}
	if n == 0 {
		return connector.NotFound(op, src, key)
	}
	return nil
}

func primaryKey(src *mapping.Source, fields *data.AttributeValues) (data.Row, bool) {
	names := src.PrimaryKeys()
	if len(names) == 0 {
		return data.Row{}, false
	}
	key := data.NewRow()
	for _, name := range names {
		v, ok := fields.GetOne(name)
		if !ok {
			return data.Row{}, false
		}
		key = key.With(name, v)
	}
	return key, true
}

type rowIterator struct {
	rows *sql.Rows
	cols []string
	src  *mapping.Source
	row  *data.AttributeValues
	err  error
}

func (it *rowIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	scan := make([]sql.NullString, len(it.cols))
	dest := make([]any, len(it.cols))
	for i := range scan {
		dest[i] = &scan[i]
	}
	if err := it.rows.Scan(dest...); err != nil {
		it.err = connector.Failure("search", it.src, err)
		return false
	}
	row := data.NewAttributeValues()
	for i, col := range it.cols {
		if scan[i].Valid {
			row.Add(col, scan[i].String)
		}
	}
	it.row = row
	return true
}

func (it *rowIterator) Row() *data.AttributeValues {
	return it.row
}

func (it *rowIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.rows.Err(); err != nil {
		return connector.Failure("search", it.src, err)
	}
	return nil
}

func (it *rowIterator) Close() error {
	return it.rows.Close()
}
