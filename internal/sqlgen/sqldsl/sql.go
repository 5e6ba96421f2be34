package sqldsl

import (
	"fmt"
	"strings"
)

// SQLer is implemented by complete SQL statements.
type SQLer interface {
	SQL() string
}

// Sqlf formats SQL with automatic dedenting and blank line removal.
// The SQL shape is visible in the format string.
func Sqlf(format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	lines := strings.Split(s, "\n")

	// Find minimum indentation (ignoring empty lines)
	minIndent := 1000
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if indent < minIndent {
			minIndent = indent
		}
	}

	// Remove common indent and empty lines
	var result []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) >= minIndent {
			result = append(result, line[minIndent:])
		} else {
			result = append(result, strings.TrimLeft(line, " \t"))
		}
	}

	return strings.Join(result, "\n")
}

// Optf returns formatted string if condition is true, empty string otherwise.
// Useful for optional SQL clauses.
func Optf(cond bool, format string, args ...any) string {
	if !cond {
		return ""
	}
	return fmt.Sprintf(format, args...)
}

// SelectStmt represents a SELECT query.
type SelectStmt struct {
	Columns []Expr
	From    string // Already-quoted relation name
	Where   Expr
	Limit   int
}

// SQL renders the SELECT statement.
func (s SelectStmt) SQL() string {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c.SQL()
	}
	return Sqlf(`
		SELECT %s
		FROM %s
		%s
		%s`,
		strings.Join(cols, ", "),
		s.From,
		Optf(s.Where != nil, "WHERE %s", whereSQL(s.Where)),
		Optf(s.Limit > 0, "LIMIT %d", s.Limit),
	)
}

// InsertStmt represents an INSERT over an explicit column list. An
// empty column list renders DEFAULT VALUES.
type InsertStmt struct {
	Into    string // Already-quoted relation name
	Columns []string
	Values  []Expr
}

// SQL renders the INSERT statement.
func (s InsertStmt) SQL() string {
	if len(s.Columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", s.Into)
	}
	vals := make([]string, len(s.Values))
	for i, v := range s.Values {
		vals[i] = v.SQL()
	}
	return Sqlf(`
		INSERT INTO %s (%s)
		VALUES (%s)`,
		s.Into,
		strings.Join(s.Columns, ", "),
		strings.Join(vals, ", "),
	)
}

// Assignment is a single SET clause of an UPDATE.
type Assignment struct {
	Column string
	Value  Expr
}

// UpdateStmt represents an UPDATE statement.
type UpdateStmt struct {
	Table string // Already-quoted relation name
	Set   []Assignment
	Where Expr
}

// SQL renders the UPDATE statement.
func (s UpdateStmt) SQL() string {
	sets := make([]string, len(s.Set))
	for i, a := range s.Set {
		sets[i] = a.Column + " = " + a.Value.SQL()
	}
	return Sqlf(`
		UPDATE %s
		SET %s
		%s`,
		s.Table,
		strings.Join(sets, ", "),
		Optf(s.Where != nil, "WHERE %s", whereSQL(s.Where)),
	)
}

func whereSQL(e Expr) string {
	if e == nil {
		return ""
	}
	return e.SQL()
}
