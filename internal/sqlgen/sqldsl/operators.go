package sqldsl

import "strings"

// Eq renders left = right.
type Eq struct {
	Left  Expr
	Right Expr
}

// SQL renders the equality.
func (e Eq) SQL() string {
	return e.Left.SQL() + " = " + e.Right.SQL()
}

// NotDistinct renders left IS NOT DISTINCT FROM right: null-safe
// equality, the comparison the versioning protocol uses everywhere two
// row images are matched column-by-column.
type NotDistinct struct {
	Left  Expr
	Right Expr
}

// SQL renders the comparison.
func (n NotDistinct) SQL() string {
	return n.Left.SQL() + " IS NOT DISTINCT FROM " + n.Right.SQL()
}

// Cmp renders left <op> right for an arbitrary operator.
type Cmp struct {
	Left  Expr
	Op    string
	Right Expr
}

// SQL renders the comparison.
func (c Cmp) SQL() string {
	return c.Left.SQL() + " " + c.Op + " " + c.Right.SQL()
}

// IsNull renders expr IS NULL.
type IsNull struct {
	Expr Expr
}

// SQL renders the test.
func (i IsNull) SQL() string {
	return i.Expr.SQL() + " IS NULL"
}

// andOr joins expressions with an operator, parenthesizing the result.
type andOr struct {
	op    string
	exprs []Expr
}

func (a andOr) SQL() string {
	if len(a.exprs) == 1 {
		return a.exprs[0].SQL()
	}
	parts := make([]string, len(a.exprs))
	for i, e := range a.exprs {
		parts[i] = e.SQL()
	}
	return "(" + strings.Join(parts, " "+a.op+" ") + ")"
}

// And joins expressions with AND.
func And(exprs ...Expr) Expr {
	return andOr{op: "AND", exprs: exprs}
}

// Or joins expressions with OR.
func Or(exprs ...Expr) Expr {
	return andOr{op: "OR", exprs: exprs}
}

// Not negates an expression.
type Not struct {
	Expr Expr
}

// SQL renders the negation.
func (n Not) SQL() string {
	return "NOT (" + n.Expr.SQL() + ")"
}

// Exists renders EXISTS (subquery).
type Exists struct {
	Query SQLer
}

// SQL renders the test.
func (e Exists) SQL() string {
	return "EXISTS (" + e.Query.SQL() + ")"
}
