package sqlgen

import (
	"github.com/pgchrono/pgchrono/internal/sqlgen/plpgsql"
	"github.com/pgchrono/pgchrono/internal/sqlgen/sqldsl"
)

// Statement blocks for the generated trigger function, one per protocol
// rule. Each block is a pure function of the Spec; versioning_render.go
// assembles them in protocol order.

func oldCol(name string) sqldsl.Col {
	return sqldsl.Col{Table: "OLD", Column: quoted(name)}
}

func newCol(name string) sqldsl.Col {
	return sqldsl.Col{Table: "NEW", Column: quoted(name)}
}

func oldRow(columns []string) sqldsl.RowExpr {
	row := make(sqldsl.RowExpr, len(columns))
	for i, c := range columns {
		row[i] = oldCol(c)
	}
	return row
}

func newRow(columns []string) sqldsl.RowExpr {
	row := make(sqldsl.RowExpr, len(columns))
	for i, c := range columns {
		row[i] = newCol(c)
	}
	return row
}

// guardBlock enforces the invocation contract: BEFORE, per ROW, and one
// of the three DML operations.
func (s Spec) guardBlock() []plpgsql.Stmt {
	fn := FunctionName(s.Table).Name
	return []plpgsql.Stmt{
		plpgsql.If{
			Cond: sqldsl.Or(
				sqldsl.Cmp{Left: sqldsl.Raw("TG_WHEN"), Op: "<>", Right: sqldsl.Lit("BEFORE")},
				sqldsl.Cmp{Left: sqldsl.Raw("TG_LEVEL"), Op: "<>", Right: sqldsl.Lit("ROW")},
			),
			Then: []plpgsql.Stmt{plpgsql.Raise{
				Message: `function "%" must be fired BEFORE ROW`,
				Args:    []sqldsl.Expr{sqldsl.Lit(fn)},
				ErrCode: CodeProtocol,
			}},
		},
		plpgsql.If{
			Cond: sqldsl.And(
				sqldsl.Cmp{Left: sqldsl.Raw("TG_OP"), Op: "<>", Right: sqldsl.Lit("INSERT")},
				sqldsl.Cmp{Left: sqldsl.Raw("TG_OP"), Op: "<>", Right: sqldsl.Lit("UPDATE")},
				sqldsl.Cmp{Left: sqldsl.Raw("TG_OP"), Op: "<>", Right: sqldsl.Lit("DELETE")},
			),
			Then: []plpgsql.Stmt{plpgsql.Raise{
				Message: `function "%" must be fired for INSERT or UPDATE or DELETE`,
				Args:    []sqldsl.Expr{sqldsl.Lit(fn)},
				ErrCode: CodeProtocol,
			}},
		},
	}
}

// effectiveTimeBlock reads the effective timestamp through the installed
// clock helper, which honors the pgchrono.system_time override.
func (s Spec) effectiveTimeBlock() plpgsql.Stmt {
	return plpgsql.Assign{Name: "effective_time", Value: sqldsl.Call("pgchrono_system_time")}
}

// changeDetectionBlock short-circuits UPDATEs that leave every common
// column untouched. With an empty projection every update is
// indistinguishable and the whole operation is a no-op.
func (s Spec) changeDetectionBlock() plpgsql.Stmt {
	cond := []sqldsl.Expr{sqldsl.Eq{Left: sqldsl.Raw("TG_OP"), Right: sqldsl.Lit("UPDATE")}}
	if len(s.Columns) > 0 {
		cond = append(cond, sqldsl.NotDistinct{Left: oldRow(s.Columns), Right: newRow(s.Columns)})
	}
	return plpgsql.If{
		Cond: sqldsl.And(cond...),
		Then: []plpgsql.Stmt{plpgsql.ReturnOld()},
	}
}

// validityCheckBlock rejects previously corrupted rows: the stored
// validity value must be non-null, non-empty, and open-ended upward.
func (s Spec) validityCheckBlock() []plpgsql.Stmt {
	return []plpgsql.Stmt{
		plpgsql.Assign{Name: "existing_period", Value: oldCol(s.SysPeriod)},
		plpgsql.If{
			Cond: sqldsl.Or(
				sqldsl.IsNull{Expr: sqldsl.Raw("existing_period")},
				sqldsl.Call("isempty", sqldsl.Raw("existing_period")),
				sqldsl.Not{Expr: sqldsl.Call("upper_inf", sqldsl.Raw("existing_period"))},
			),
			Then: []plpgsql.Stmt{plpgsql.Raise{
				Message: `system period value of column "%" on table "%" is not valid: %`,
				Args:    []sqldsl.Expr{sqldsl.Lit(s.SysPeriod), sqldsl.Lit(s.Table.String()), sqldsl.Raw("existing_period")},
				ErrCode: CodeInvalidValidity,
			}},
		},
	}
}

// versionCheckBlock rejects a null stored version when increment-version
// is enabled.
func (s Spec) versionCheckBlock() plpgsql.Stmt {
	return plpgsql.If{
		Cond: sqldsl.IsNull{Expr: oldCol(s.VersionColumn)},
		Then: []plpgsql.Stmt{plpgsql.Raise{
			Message: `version value of column "%" on table "%" is null`,
			Args:    []sqldsl.Expr{sqldsl.Lit(s.VersionColumn), sqldsl.Lit(s.Table.String())},
			ErrCode: CodeNullVersion,
		}},
	}
}

// suppressionBlock passes through rows already modified earlier in the
// same transaction, comparing the stored tuple's xmin against the
// current transaction id. Disabled under include-current, where every
// modification is tracked.
func (s Spec) suppressionBlock() plpgsql.Stmt {
	return plpgsql.If{
		Cond: sqldsl.Eq{
			Left:  sqldsl.Cast{Expr: sqldsl.Cast{Expr: sqldsl.Raw("OLD.xmin"), Type: "text"}, Type: "bigint"},
			Right: sqldsl.Raw("(txid_current() % 4294967296)"),
		},
		Then: []plpgsql.Stmt{
			plpgsql.If{
				Cond: sqldsl.Eq{Left: sqldsl.Raw("TG_OP"), Right: sqldsl.Lit("DELETE")},
				Then: []plpgsql.Stmt{plpgsql.ReturnOld()},
			},
			plpgsql.ReturnNew(),
		},
	}
}

// mitigationBlock keeps validity intervals strictly increasing. With
// mitigation the effective timestamp is nudged one microsecond past the
// existing lower bound; without it the ordering violation is fatal.
func (s Spec) mitigationBlock() plpgsql.Stmt {
	violated := sqldsl.Cmp{
		Left:  sqldsl.Call("lower", sqldsl.Raw("existing_period")),
		Op:    ">=",
		Right: sqldsl.Raw("effective_time"),
	}
	if s.MitigateConflicts {
		return plpgsql.If{
			Cond: violated,
			Then: []plpgsql.Stmt{plpgsql.Assign{
				Name:  "effective_time",
				Value: sqldsl.Raw("lower(existing_period) + interval '1 microsecond'"),
			}},
		}
	}
	return plpgsql.If{
		Cond: violated,
		Then: []plpgsql.Stmt{plpgsql.Raise{
			Message: `system period value of table "%" is out of order: % is not before %`,
			Args:    []sqldsl.Expr{sqldsl.Lit(s.Table.String()), sqldsl.Raw("lower(existing_period)"), sqldsl.Raw("effective_time")},
			ErrCode: CodeOrderingConflict,
		}},
	}
}

// openRowMatch builds the predicate identifying the open-ended history
// row for the old row image: upper-unbounded validity plus null-safe
// equality over every common column.
func (s Spec) openRowMatch() sqldsl.Expr {
	conds := []sqldsl.Expr{sqldsl.Call("upper_inf", sqldsl.Raw(quoted(s.SysPeriod)))}
	for _, c := range s.Columns {
		conds = append(conds, sqldsl.NotDistinct{Left: sqldsl.Raw(quoted(c)), Right: oldCol(c)})
	}
	return sqldsl.And(conds...)
}

// historyInsert builds an INSERT into the history table projecting the
// given row image plus a validity value and, when enabled, a version.
func (s Spec) historyInsert(image func(string) sqldsl.Col, validity sqldsl.Expr, version sqldsl.Expr) sqldsl.InsertStmt {
	columns := make([]string, 0, len(s.Columns)+2)
	values := make([]sqldsl.Expr, 0, len(s.Columns)+2)
	for _, c := range s.Columns {
		columns = append(columns, quoted(c))
		values = append(values, image(c))
	}
	columns = append(columns, quoted(s.SysPeriod))
	values = append(values, validity)
	if s.IncrementVersion {
		columns = append(columns, quoted(s.VersionColumn))
		values = append(values, version)
	}
	return sqldsl.InsertStmt{Into: s.History.Quoted(), Columns: columns, Values: values}
}

func closedPeriod() sqldsl.Expr {
	return sqldsl.Call("tstzrange", sqldsl.Raw("lower(existing_period)"), sqldsl.Raw("effective_time"))
}

func openPeriod() sqldsl.Expr {
	return sqldsl.Call("tstzrange", sqldsl.Raw("effective_time"), sqldsl.Null{})
}

// migrationBlock lazily backfills history for rows that predate
// include-current adoption: when no open-ended history row matches the
// old image, a closed row covering its whole validity span is inserted.
func (s Spec) migrationBlock() plpgsql.Stmt {
	exists := sqldsl.Exists{Query: sqldsl.SelectStmt{
		Columns: []sqldsl.Expr{sqldsl.Int(1)},
		From:    s.History.Quoted(),
		Where:   s.openRowMatch(),
	}}
	return plpgsql.If{
		Cond: sqldsl.Not{Expr: exists},
		Then: []plpgsql.Stmt{plpgsql.Exec{
			Query: s.historyInsert(oldCol, closedPeriod(), oldCol(s.VersionColumn)),
		}},
	}
}

// archiveBlock records the prior row image. Without include-current it
// inserts the closed archive row; with include-current it closes the
// open-ended history row for this identity in place. When no open row
// matched and migration mode has not already backfilled one, the closed
// row is inserted directly so the prior version is never lost.
func (s Spec) archiveBlock() []plpgsql.Stmt {
	closedInsert := plpgsql.Exec{Query: s.historyInsert(oldCol, closedPeriod(), oldCol(s.VersionColumn))}
	if !s.IncludeCurrent {
		return []plpgsql.Stmt{closedInsert}
	}
	stmts := []plpgsql.Stmt{plpgsql.Exec{Query: sqldsl.UpdateStmt{
		Table: s.History.Quoted(),
		Set: []sqldsl.Assignment{{
			Column: quoted(s.SysPeriod),
			Value:  sqldsl.Call("tstzrange", sqldsl.Raw("lower("+quoted(s.SysPeriod)+")"), sqldsl.Raw("effective_time")),
		}},
		Where: s.openRowMatch(),
	}}}
	if !s.MigrationMode {
		stmts = append(stmts, plpgsql.If{
			Cond: sqldsl.Raw("NOT FOUND"),
			Then: []plpgsql.Stmt{closedInsert},
		})
	}
	return stmts
}

// versionBumpBlock sets the written-back version: 1 on first insert,
// old version + 1 on update.
func (s Spec) versionBumpBlock() plpgsql.Stmt {
	target := "NEW." + quoted(s.VersionColumn)
	return plpgsql.If{
		Cond: sqldsl.Eq{Left: sqldsl.Raw("TG_OP"), Right: sqldsl.Lit("INSERT")},
		Then: []plpgsql.Stmt{plpgsql.Assign{Name: target, Value: sqldsl.Int(1)}},
		Else: []plpgsql.Stmt{plpgsql.Assign{
			Name:  target,
			Value: sqldsl.Cmp{Left: oldCol(s.VersionColumn), Op: "+", Right: sqldsl.Int(1)},
		}},
	}
}

// appendOpenBlock mirrors the new current-row image into history as an
// open-ended row (include-current only).
func (s Spec) appendOpenBlock() plpgsql.Stmt {
	return plpgsql.Exec{Query: s.historyInsert(newCol, openPeriod(), newCol(s.VersionColumn))}
}

// advanceBlock rewrites the returned row's validity to start at the
// effective time, open-ended.
func (s Spec) advanceBlock() plpgsql.Stmt {
	return plpgsql.Assign{Name: "NEW." + quoted(s.SysPeriod), Value: openPeriod()}
}
