// Package generator is the public API of the static trigger generator.
// It resolves a versioning request against the live catalog, validates
// the schema up front, and compiles a specialized PL/pgSQL trigger
// function plus its binding DDL.
//
// Generated triggers embed the column projection and option flags as
// literals, so they are fast but go stale when the schema changes;
// pkg/listener regenerates them. The dynamic counterpart that never
// goes stale lives in pkg/engine.
package generator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgchrono/pgchrono/internal/sqlgen"
	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/period"
)

// Defaults applied to empty Request fields.
const (
	DefaultSysPeriod     = "sys_period"
	DefaultVersionColumn = "version"
)

// ErrValidation marks a request rejected at generation time: a missing
// relation, a missing or mistyped validity column, or a non-integer
// version column.
var ErrValidation = errors.New("invalid versioning request")

// IsValidationErr reports whether err is a generation-time validation
// failure.
func IsValidationErr(err error) bool {
	return errors.Is(err, ErrValidation)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Request describes one table to version. Table and HistoryTable accept
// optionally schema-qualified, optionally quoted identifiers; bare names
// resolve against the connection's current schema.
type Request struct {
	Table        string
	HistoryTable string

	// SysPeriod is the validity attribute name on both relations.
	// Empty means DefaultSysPeriod.
	SysPeriod string

	IgnoreUnchanged   bool
	IncludeCurrent    bool
	MitigateConflicts bool
	MigrationMode     bool
	IncrementVersion  bool

	// VersionColumn is the version counter attribute, consulted only
	// when IncrementVersion is set. Empty means DefaultVersionColumn.
	VersionColumn string
}

func (r Request) normalized() Request {
	if r.SysPeriod == "" {
		r.SysPeriod = DefaultSysPeriod
	}
	if r.VersionColumn == "" {
		r.VersionColumn = DefaultVersionColumn
	}
	return r
}

// Artifacts are the generated installables for one table.
type Artifacts struct {
	// Function and Trigger are the two DDL sections: the CREATE OR
	// REPLACE FUNCTION statement and the DROP/CREATE trigger pair.
	Function string
	Trigger  string

	// Statements are the individually executable statements in
	// installation order.
	Statements []string

	// FunctionName is the schema-qualified generated function name,
	// TriggerName the unqualified trigger name. Both are deterministic
	// per table, so reinstallation replaces in place.
	FunctionName catalog.Relation
	TriggerName  string
}

// SQL returns the artifacts joined into one installable script.
func (a Artifacts) SQL() string {
	return a.Function + "\n\n" + a.Trigger
}

// Build resolves and validates req against the live catalog and
// compiles the trigger artifacts. Nothing is executed.
func Build(ctx context.Context, db catalog.Execer, req Request) (Artifacts, error) {
	spec, err := resolve(ctx, catalog.New(db), req)
	if err != nil {
		return Artifacts{}, err
	}
	g := sqlgen.Compile(spec)
	return Artifacts{
		Function:     g.Function,
		Trigger:      g.Trigger,
		Statements:   g.Statements(),
		FunctionName: sqlgen.FunctionName(spec.Table),
		TriggerName:  sqlgen.TriggerName(spec.Table),
	}, nil
}

// Generate compiles the trigger function and binding DDL for req and
// returns them as one script.
func Generate(ctx context.Context, db catalog.Execer, req Request) (string, error) {
	a, err := Build(ctx, db, req)
	if err != nil {
		return "", err
	}
	return a.SQL(), nil
}

// Install generates and executes the trigger DDL. When db can begin
// transactions the statements run atomically; *sql.Tx and other
// transaction-scoped Execers run as-is inside their caller's
// transaction.
func Install(ctx context.Context, db catalog.Execer, req Request) error {
	a, err := Build(ctx, db, req)
	if err != nil {
		return err
	}
	return ExecAll(ctx, db, a.Statements)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ExecAll runs DDL statements in order, atomically when db supports
// BeginTx.
func ExecAll(ctx context.Context, db catalog.Execer, stmts []string) error {
	if b, ok := db.(txBeginner); ok {
		tx, err := b.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}
	return execAll(ctx, db, stmts)
}

func execAll(ctx context.Context, db catalog.Execer, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing generated DDL: %w", err)
		}
	}
	return nil
}

// resolve turns a request into a fully resolved compile spec, running
// every schema check the generated trigger will rely on. The checks
// mirror what the dynamic engine verifies per invocation; here they run
// once, at generation time.
func resolve(ctx context.Context, cat catalog.Accessor, req Request) (sqlgen.Spec, error) {
	req = req.normalized()

	schema, err := cat.CurrentSchema(ctx)
	if err != nil {
		return sqlgen.Spec{}, err
	}
	table, err := catalog.ParseRelation(req.Table, schema)
	if err != nil {
		return sqlgen.Spec{}, validationf("table: %v", err)
	}
	history, err := catalog.ParseRelation(req.HistoryTable, table.Schema)
	if err != nil {
		return sqlgen.Spec{}, validationf("history table: %v", err)
	}

	for _, rel := range []catalog.Relation{table, history} {
		exists, err := cat.RelationExists(ctx, rel)
		if err != nil {
			return sqlgen.Spec{}, err
		}
		if !exists {
			return sqlgen.Spec{}, validationf("relation %q does not exist", rel)
		}
		typ, err := cat.ColumnType(ctx, rel, req.SysPeriod)
		if err != nil {
			return sqlgen.Spec{}, err
		}
		if typ == "" {
			return sqlgen.Spec{}, validationf("column %q of relation %q does not exist", req.SysPeriod, rel)
		}
		if typ != period.PGType {
			return sqlgen.Spec{}, validationf("column %q of relation %q is of type %s, expected %s", req.SysPeriod, rel, typ, period.PGType)
		}
	}

	if req.IncrementVersion {
		typ, err := cat.ColumnType(ctx, table, req.VersionColumn)
		if err != nil {
			return sqlgen.Spec{}, err
		}
		if typ == "" {
			return sqlgen.Spec{}, validationf("version column %q of relation %q does not exist", req.VersionColumn, table)
		}
		switch typ {
		case "smallint", "integer", "bigint":
		default:
			return sqlgen.Spec{}, validationf("version column %q of relation %q is of type %s, expected an integer type", req.VersionColumn, table, typ)
		}
	}

	exclude := []string{req.SysPeriod}
	if req.IncrementVersion {
		exclude = append(exclude, req.VersionColumn)
	}
	columns, err := cat.CommonColumns(ctx, table, history, exclude...)
	if err != nil {
		return sqlgen.Spec{}, err
	}

	return sqlgen.Spec{
		Table:             table,
		History:           history,
		SysPeriod:         req.SysPeriod,
		Columns:           columns,
		IgnoreUnchanged:   req.IgnoreUnchanged,
		IncludeCurrent:    req.IncludeCurrent,
		MitigateConflicts: req.MitigateConflicts,
		MigrationMode:     req.MigrationMode,
		IncrementVersion:  req.IncrementVersion,
		VersionColumn:     req.VersionColumn,
	}, nil
}
