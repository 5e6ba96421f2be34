// Package plpgsql provides PL/pgSQL function builder types.
package plpgsql

import (
	"fmt"
	"strings"

	"github.com/pgchrono/pgchrono/internal/sqlgen/sqldsl"
)

// Decl represents a DECLARE variable declaration.
type Decl struct {
	Name    string
	Type    string
	Default sqldsl.Expr // nil means no initializer
}

// Stmt is a PL/pgSQL statement that can be rendered to SQL.
type Stmt interface {
	StmtSQL() string
}

// Return renders a bare RETURN; statement.
type Return struct{}

func (Return) StmtSQL() string {
	return "RETURN;"
}

// ReturnValue renders RETURN <expr>; in trigger functions the expr is
// usually OLD or NEW.
type ReturnValue struct {
	Value sqldsl.Expr
}

func (r ReturnValue) StmtSQL() string {
	return fmt.Sprintf("RETURN %s;", r.Value.SQL())
}

// ReturnOld renders RETURN OLD;
func ReturnOld() Stmt {
	return ReturnValue{Value: sqldsl.Raw("OLD")}
}

// ReturnNew renders RETURN NEW;
func ReturnNew() Stmt {
	return ReturnValue{Value: sqldsl.Raw("NEW")}
}

// Assign renders name := value;
type Assign struct {
	Name  string
	Value sqldsl.Expr
}

func (a Assign) StmtSQL() string {
	return fmt.Sprintf("%s := %s;", a.Name, a.Value.SQL())
}

// Branch is one arm of an IF/ELSIF chain.
type Branch struct {
	Cond sqldsl.Expr
	Then []Stmt
}

// If renders IF cond THEN ... [ELSIF ...]* [ELSE ...] END IF;
type If struct {
	Cond  sqldsl.Expr
	Then  []Stmt
	ElsIf []Branch
	Else  []Stmt
}

func (i If) StmtSQL() string {
	var sb strings.Builder
	sb.WriteString("IF ")
	sb.WriteString(i.Cond.SQL())
	sb.WriteString(" THEN\n")
	writeBody(&sb, i.Then)

	for _, br := range i.ElsIf {
		sb.WriteString("ELSIF ")
		sb.WriteString(br.Cond.SQL())
		sb.WriteString(" THEN\n")
		writeBody(&sb, br.Then)
	}

	if len(i.Else) > 0 {
		sb.WriteString("ELSE\n")
		writeBody(&sb, i.Else)
	}

	sb.WriteString("END IF;")
	return sb.String()
}

func writeBody(sb *strings.Builder, stmts []Stmt) {
	for _, stmt := range stmts {
		for _, line := range strings.Split(stmt.StmtSQL(), "\n") {
			sb.WriteString("    ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
}

// Exec renders a complete DML statement followed by a semicolon.
type Exec struct {
	Query sqldsl.SQLer
}

func (e Exec) StmtSQL() string {
	return e.Query.SQL() + ";"
}

// SelectInto renders SELECT <exprs> INTO <vars> FROM ...; built from a
// raw query because PL/pgSQL's INTO clause has no SQL-level equivalent.
type SelectInto struct {
	Query    sqldsl.SQLer
	Variable string
}

func (s SelectInto) StmtSQL() string {
	q := s.Query.SQL()
	if strings.HasPrefix(q, "SELECT") {
		return "SELECT INTO " + s.Variable + q[len("SELECT"):] + ";"
	}
	return fmt.Sprintf("SELECT INTO %s (%s);", s.Variable, q)
}

// RawStmt is an escape hatch for SQL that doesn't map cleanly to typed constructs.
// Use sparingly.
type RawStmt struct {
	SQLText string
}

func (r RawStmt) StmtSQL() string {
	return r.SQLText
}

// Raise renders RAISE EXCEPTION 'message' [, args...] USING ERRCODE = 'code';
// The message may contain % placeholders consumed by Args.
type Raise struct {
	Message string
	Args    []sqldsl.Expr
	ErrCode string
}

func (r Raise) StmtSQL() string {
	var sb strings.Builder
	sb.WriteString("RAISE EXCEPTION '")
	sb.WriteString(strings.ReplaceAll(r.Message, "'", "''"))
	sb.WriteString("'")
	for _, a := range r.Args {
		sb.WriteString(", ")
		sb.WriteString(a.SQL())
	}
	if r.ErrCode != "" {
		sb.WriteString(" USING ERRCODE = '")
		sb.WriteString(r.ErrCode)
		sb.WriteString("'")
	}
	sb.WriteString(";")
	return sb.String()
}

// Comment renders a SQL comment line.
type Comment struct {
	Text string
}

func (c Comment) StmtSQL() string {
	return "-- " + c.Text
}

// TriggerFunction represents a complete PL/pgSQL trigger function
// definition: no arguments, RETURNS trigger, VOLATILE.
type TriggerFunction struct {
	Name   string // Already-quoted, schema-qualified
	Decls  []Decl
	Body   []Stmt
	Header []string // Comment lines at the top of the function (without -- prefix)
}

// SQL renders the complete CREATE OR REPLACE FUNCTION statement.
func (f TriggerFunction) SQL() string {
	var sb strings.Builder

	for _, comment := range f.Header {
		sb.WriteString("-- ")
		sb.WriteString(comment)
		sb.WriteString("\n")
	}

	sb.WriteString("CREATE OR REPLACE FUNCTION ")
	sb.WriteString(f.Name)
	sb.WriteString("() RETURNS trigger AS $$\n")

	if len(f.Decls) > 0 {
		sb.WriteString("DECLARE\n")
		for _, d := range f.Decls {
			sb.WriteString("    ")
			sb.WriteString(d.Name)
			sb.WriteString(" ")
			sb.WriteString(d.Type)
			if d.Default != nil {
				sb.WriteString(" := ")
				sb.WriteString(d.Default.SQL())
			}
			sb.WriteString(";\n")
		}
	}

	sb.WriteString("BEGIN\n")
	writeBody(&sb, f.Body)
	sb.WriteString("END;\n")
	sb.WriteString("$$ LANGUAGE plpgsql VOLATILE;")

	return sb.String()
}
