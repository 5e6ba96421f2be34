// Package sqldsl provides a typed SQL DSL for generating versioning
// queries. It models the statements the versioning protocol needs
// directly rather than generic SQL syntax.
package sqldsl

import (
	"fmt"
	"strings"
)

// Expr is the interface that all SQL expression types implement.
type Expr interface {
	SQL() string
}

// Param represents a positional query parameter ($1, $2, ...) or a
// PL/pgSQL variable reference.
type Param string

// SQL renders the parameter.
func (p Param) SQL() string {
	return string(p)
}

// Placeholder returns the positional parameter $n.
func Placeholder(n int) Param {
	return Param(fmt.Sprintf("$%d", n))
}

// Col represents a column reference (e.g. OLD.sys_period). Column names
// are rendered as-is; callers quote identifiers before constructing Cols.
type Col struct {
	Table  string
	Column string
}

// SQL renders the column reference.
func (c Col) SQL() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// Lit represents a literal string value (auto-quoted with single quotes).
type Lit string

// SQL renders the literal with single quotes, doubling embedded quotes.
func (l Lit) SQL() string {
	return "'" + strings.ReplaceAll(string(l), "'", "''") + "'"
}

// Raw is an escape hatch for arbitrary SQL expressions.
type Raw string

// SQL renders the raw SQL as-is.
func (r Raw) SQL() string {
	return string(r)
}

// Int represents an integer literal.
type Int int

// SQL renders the integer.
func (i Int) SQL() string {
	return fmt.Sprintf("%d", i)
}

// Bool represents a boolean literal.
type Bool bool

// SQL renders the boolean.
func (b Bool) SQL() string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Null represents SQL NULL.
type Null struct{}

// SQL renders NULL.
func (Null) SQL() string {
	return "NULL"
}

// FuncCall represents a function invocation.
type FuncCall struct {
	Name string
	Args []Expr
}

// SQL renders the call.
func (f FuncCall) SQL() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.SQL()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

// Call is shorthand for FuncCall.
func Call(name string, args ...Expr) FuncCall {
	return FuncCall{Name: name, Args: args}
}

// Cast renders expr::type.
type Cast struct {
	Expr Expr
	Type string
}

// SQL renders the cast.
func (c Cast) SQL() string {
	return c.Expr.SQL() + "::" + c.Type
}

// RowExpr renders a row constructor (a, b, c). Used for row-wise
// comparisons in change detection.
type RowExpr []Expr

// SQL renders the row constructor.
func (r RowExpr) SQL() string {
	parts := make([]string, len(r))
	for i, e := range r {
		parts[i] = e.SQL()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
