// Package catalog provides read-only access to a live database's
// structural metadata: relation existence, column lists, and column
// types. It is the leaf dependency of both the dynamic versioning engine
// and the static trigger generator; neither inspects pg_catalog directly.
//
// All column queries exclude dropped attributes and system columns, so a
// column that was dropped and never rewritten does not resurface in any
// projection.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Relation identifies a table as a (schema, name) pair. The zero Schema
// means "resolve against the caller's current schema".
type Relation struct {
	Schema string
	Name   string
}

// ParseRelation splits an optionally schema-qualified identifier.
// "public.accounts" becomes {public accounts}; "accounts" takes the
// provided default schema.
func ParseRelation(ident, defaultSchema string) (Relation, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return Relation{}, fmt.Errorf("catalog: empty relation name")
	}
	parts := strings.SplitN(ident, ".", 3)
	switch len(parts) {
	case 1:
		return Relation{Schema: defaultSchema, Name: unquote(parts[0])}, nil
	case 2:
		return Relation{Schema: unquote(parts[0]), Name: unquote(parts[1])}, nil
	default:
		return Relation{}, fmt.Errorf("catalog: malformed relation name %q", ident)
	}
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

// String returns the unquoted schema-qualified name.
func (r Relation) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// Quoted returns the identifier-quoted, schema-qualified name, safe for
// interpolation into DDL and dynamic DML.
func (r Relation) Quoted() string {
	if r.Schema == "" {
		return pq.QuoteIdentifier(r.Name)
	}
	return pq.QuoteIdentifier(r.Schema) + "." + pq.QuoteIdentifier(r.Name)
}

// Accessor is the introspection surface the engine and generator consume.
// Catalog is the live implementation; tests substitute fakes.
type Accessor interface {
	CurrentSchema(ctx context.Context) (string, error)
	RelationExists(ctx context.Context, rel Relation) (bool, error)
	ColumnType(ctx context.Context, rel Relation, column string) (string, error)
	Columns(ctx context.Context, rel Relation) ([]string, error)
	CommonColumns(ctx context.Context, current, history Relation, exclude ...string) ([]string, error)
	CurrentXID(ctx context.Context) (uint64, error)
}

// Catalog reads structural metadata through an Execer. It holds no state
// and caches nothing: every call reflects the schema as of the calling
// transaction's snapshot.
type Catalog struct {
	db Execer
}

// New returns a Catalog over db.
func New(db Execer) *Catalog {
	return &Catalog{db: db}
}

// CurrentSchema returns the first schema on the search path.
func (c *Catalog) CurrentSchema(ctx context.Context) (string, error) {
	var schema string
	if err := c.db.QueryRowContext(ctx, `SELECT current_schema()`).Scan(&schema); err != nil {
		return "", fmt.Errorf("catalog: resolving current schema: %w", err)
	}
	return schema, nil
}

// RelationExists reports whether rel exists as an ordinary or partitioned
// table. Views are deliberately excluded: history rows must be insertable.
func (c *Catalog) RelationExists(ctx context.Context, rel Relation) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = $1
			AND n.nspname = $2
			AND c.relkind IN ('r', 'p')
		)
	`, rel.Name, rel.Schema).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("catalog: checking relation %s: %w", rel, err)
	}
	return exists, nil
}

// ColumnType returns the formatted type of a column, or "" when the
// column does not exist or has been dropped.
func (c *Catalog) ColumnType(ctx context.Context, rel Relation, column string) (string, error) {
	var typ string
	err := c.db.QueryRowContext(ctx, `
		SELECT COALESCE(
			(SELECT format_type(a.atttypid, a.atttypmod)
			 FROM pg_attribute a
			 JOIN pg_class c ON c.oid = a.attrelid
			 JOIN pg_namespace n ON n.oid = c.relnamespace
			 WHERE c.relname = $1
			 AND n.nspname = $2
			 AND a.attname = $3
			 AND a.attnum > 0
			 AND NOT a.attisdropped),
			'')
	`, rel.Name, rel.Schema, column).Scan(&typ)
	if err != nil {
		return "", fmt.Errorf("catalog: resolving type of %s.%s: %w", rel, column, err)
	}
	return typ, nil
}

// Columns returns rel's non-dropped user columns in attribute order.
func (c *Catalog) Columns(ctx context.Context, rel Relation) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT a.attname
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = $1
		AND n.nspname = $2
		AND a.attnum > 0
		AND NOT a.attisdropped
		ORDER BY a.attnum
	`, rel.Name, rel.Schema)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing columns of %s: %w", rel, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]string, 0, 16)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scanning column name: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// CommonColumns returns the name intersection of the two relations'
// non-dropped columns, in current-table attribute order, minus any
// excluded attributes. This is the projection the versioning protocol
// archives; columns on only one side are deliberately dropped from it.
func (c *Catalog) CommonColumns(ctx context.Context, current, history Relation, exclude ...string) ([]string, error) {
	currentCols, err := c.Columns(ctx, current)
	if err != nil {
		return nil, err
	}
	historyCols, err := c.Columns(ctx, history)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}
	inHistory := make(map[string]bool, len(historyCols))
	for _, name := range historyCols {
		inHistory[name] = true
	}

	common := make([]string, 0, len(currentCols))
	for _, name := range currentCols {
		if inHistory[name] && !excluded[name] {
			common = append(common, name)
		}
	}
	return common, nil
}

// CurrentXID returns the current transaction's id, forcing assignment if
// the transaction has not written yet.
func (c *Catalog) CurrentXID(ctx context.Context) (uint64, error) {
	var xid uint64
	if err := c.db.QueryRowContext(ctx, `SELECT txid_current()`).Scan(&xid); err != nil {
		return 0, fmt.Errorf("catalog: resolving transaction id: %w", err)
	}
	return xid, nil
}
