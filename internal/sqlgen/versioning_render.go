package sqlgen

import (
	"fmt"
	"strings"

	"github.com/pgchrono/pgchrono/internal/sqlgen/plpgsql"
	"github.com/pgchrono/pgchrono/internal/sqlgen/sqldsl"
)

// renderFunction assembles the trigger function from the statement
// blocks, in protocol order: guards, change detection, archive-then-
// advance, return.
func (s Spec) renderFunction() plpgsql.TriggerFunction {
	body := make([]plpgsql.Stmt, 0, 16)
	body = append(body, s.guardBlock()...)
	body = append(body, s.effectiveTimeBlock())

	if s.IgnoreUnchanged {
		body = append(body, s.changeDetectionBlock())
	}

	archive := make([]plpgsql.Stmt, 0, 8)
	archive = append(archive, s.validityCheckBlock()...)
	if s.IncrementVersion {
		archive = append(archive, s.versionCheckBlock())
	}
	if !s.IncludeCurrent {
		archive = append(archive, s.suppressionBlock())
	}
	archive = append(archive, s.mitigationBlock())
	if s.IncludeCurrent && s.MigrationMode {
		archive = append(archive, s.migrationBlock())
	}
	archive = append(archive, s.archiveBlock()...)

	body = append(body, plpgsql.If{
		Cond: sqldsl.Or(
			sqldsl.Eq{Left: sqldsl.Raw("TG_OP"), Right: sqldsl.Lit("UPDATE")},
			sqldsl.Eq{Left: sqldsl.Raw("TG_OP"), Right: sqldsl.Lit("DELETE")},
		),
		Then: archive,
	})

	advance := make([]plpgsql.Stmt, 0, 4)
	advance = append(advance, s.advanceBlock())
	if s.IncrementVersion {
		advance = append(advance, s.versionBumpBlock())
	}
	if s.IncludeCurrent {
		advance = append(advance, s.appendOpenBlock())
	}
	advance = append(advance, plpgsql.ReturnNew())

	body = append(body, plpgsql.If{
		Cond: sqldsl.Or(
			sqldsl.Eq{Left: sqldsl.Raw("TG_OP"), Right: sqldsl.Lit("INSERT")},
			sqldsl.Eq{Left: sqldsl.Raw("TG_OP"), Right: sqldsl.Lit("UPDATE")},
		),
		Then: advance,
	})

	body = append(body, plpgsql.ReturnOld())

	return plpgsql.TriggerFunction{
		Name:   FunctionName(s.Table).Quoted(),
		Header: s.header(),
		Decls: []plpgsql.Decl{
			{Name: "effective_time", Type: "timestamptz"},
			{Name: "existing_period", Type: "tstzrange"},
		},
		Body: body,
	}
}

func (s Spec) header() []string {
	return []string{
		fmt.Sprintf("Generated versioning trigger for %s", s.Table),
		fmt.Sprintf("History: %s, validity column: %s", s.History, s.SysPeriod),
		fmt.Sprintf("Columns: %s", strings.Join(s.Columns, ", ")),
		fmt.Sprintf("Options: %s", s.optionSummary()),
	}
}

func (s Spec) optionSummary() string {
	opts := make([]string, 0, 5)
	appendIf := func(cond bool, name string) {
		if cond {
			opts = append(opts, name)
		}
	}
	appendIf(s.IgnoreUnchanged, "ignore_unchanged_values")
	appendIf(s.IncludeCurrent, "include_current_version_in_history")
	appendIf(s.MitigateConflicts, "mitigate_update_conflicts")
	appendIf(s.MigrationMode, "enable_migration_mode")
	appendIf(s.IncrementVersion, "increment_version="+s.VersionColumn)
	if len(opts) == 0 {
		return "none"
	}
	return strings.Join(opts, ", ")
}

// renderTrigger emits the DDL binding the function to the table,
// dropping any prior trigger of the same name first so regeneration
// replaces cleanly.
func (s Spec) renderTrigger() string {
	return sqldsl.Sqlf(`
		DROP TRIGGER IF EXISTS %s ON %s;
		CREATE TRIGGER %s
		BEFORE INSERT OR UPDATE OR DELETE ON %s
		FOR EACH ROW EXECUTE FUNCTION %s();`,
		quoted(TriggerName(s.Table)), s.Table.Quoted(),
		quoted(TriggerName(s.Table)),
		s.Table.Quoted(),
		FunctionName(s.Table).Quoted(),
	)
}
