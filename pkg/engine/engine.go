// Package engine implements the dynamic row-versioning protocol: a
// before-row callback that archives the prior image of every write into
// a paired history table and advances the current row's validity
// interval.
//
// The engine is the interpreted twin of the generated triggers in
// pkg/generator. It introspects the schema fresh on every invocation and
// builds its DML dynamically, so it is always correct immediately after
// a schema change; the generated triggers trade that for speed and are
// kept in sync by pkg/listener.
//
// Callers route each row write through HandleRow inside the writing
// transaction and apply the returned image to the current table.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgchrono/pgchrono/internal/sqlgen/sqldsl"
	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/period"
)

// Engine interprets the versioning protocol against a live database.
type Engine struct {
	db    catalog.Execer
	cat   catalog.Accessor
	clock period.Clock
	log   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Only Debug-level events are
// emitted on the row path.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New returns an Engine executing through db, introspecting through cat,
// and reading effective time from clock.
func New(db catalog.Execer, cat catalog.Accessor, clock period.Clock, opts ...Option) *Engine {
	e := &Engine{db: db, cat: cat, clock: clock, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleRow processes one before-row event and returns the image to
// write back to the current table. For DELETE the returned image is the
// unmodified old row; deletion proceeds as issued.
func (e *Engine) HandleRow(ctx context.Context, ev TriggerEvent) (*RowImage, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}
	opts, err := ParseArgs(ev.Args)
	if err != nil {
		return nil, err
	}
	if err := e.checkCurrentTable(ctx, ev.Table, opts); err != nil {
		return nil, err
	}

	effective := period.Truncate(e.clock.Now(ctx))

	if ev.Op == OpInsert {
		return e.handleInsert(ctx, ev, opts, effective)
	}
	return e.handleWrite(ctx, ev, opts, effective)
}

// validateEvent enforces the invocation contract.
func validateEvent(ev TriggerEvent) error {
	if ev.Timing != Before {
		return protocolf("must be fired BEFORE, got %q", ev.Timing)
	}
	if ev.Level != Row {
		return protocolf("must be fired per ROW, got %q", ev.Level)
	}
	switch ev.Op {
	case OpInsert:
		if ev.New == nil {
			return protocolf("INSERT event carries no new row image")
		}
	case OpUpdate:
		if ev.Old == nil || ev.New == nil {
			return protocolf("UPDATE event must carry both row images")
		}
	case OpDelete:
		if ev.Old == nil {
			return protocolf("DELETE event carries no old row image")
		}
	default:
		return protocolf("must be fired for INSERT or UPDATE or DELETE, got %q", ev.Op)
	}
	return nil
}

// checkCurrentTable verifies the validity attribute and, when enabled,
// the version counter on the current table.
func (e *Engine) checkCurrentTable(ctx context.Context, table catalog.Relation, opts Options) error {
	typ, err := e.cat.ColumnType(ctx, table, opts.SysPeriod)
	if err != nil {
		return err
	}
	if typ == "" {
		return schemaf("column %q of relation %q does not exist", opts.SysPeriod, table)
	}
	if typ != period.PGType {
		return schemaf("column %q of relation %q is of type %s, expected %s", opts.SysPeriod, table, typ, period.PGType)
	}

	if opts.IncrementVersion {
		vt, err := e.cat.ColumnType(ctx, table, opts.VersionColumn)
		if err != nil {
			return err
		}
		if vt == "" {
			return schemaf("version column %q of relation %q does not exist", opts.VersionColumn, table)
		}
		if !integerType(vt) {
			return schemaf("version column %q of relation %q is of type %s, expected an integer type", opts.VersionColumn, table, vt)
		}
	}
	return nil
}

// checkHistory verifies the history relation exists and carries the
// validity attribute with a matching type.
func (e *Engine) checkHistory(ctx context.Context, history catalog.Relation, opts Options) error {
	exists, err := e.cat.RelationExists(ctx, history)
	if err != nil {
		return err
	}
	if !exists {
		return schemaf("history relation %q does not exist", history)
	}
	typ, err := e.cat.ColumnType(ctx, history, opts.SysPeriod)
	if err != nil {
		return err
	}
	if typ == "" {
		return schemaf("column %q of history relation %q does not exist", opts.SysPeriod, history)
	}
	if typ != period.PGType {
		return schemaf("column %q of history relation %q is of type %s, expected %s", opts.SysPeriod, history, typ, period.PGType)
	}
	return nil
}

// resolveHistory normalizes the history identifier against the current
// table's schema, validates it, and computes the common-column
// projection. Both are recomputed on every invocation; nothing survives
// a schema change.
func (e *Engine) resolveHistory(ctx context.Context, ev TriggerEvent, opts Options) (catalog.Relation, []string, error) {
	defaultSchema := ev.Table.Schema
	if defaultSchema == "" {
		var err error
		if defaultSchema, err = e.cat.CurrentSchema(ctx); err != nil {
			return catalog.Relation{}, nil, err
		}
	}
	history, err := opts.History(defaultSchema)
	if err != nil {
		return catalog.Relation{}, nil, protocolf("%v", err)
	}
	if err := e.checkHistory(ctx, history, opts); err != nil {
		return catalog.Relation{}, nil, err
	}
	common, err := e.cat.CommonColumns(ctx, ev.Table, history, opts.excluded()...)
	if err != nil {
		return catalog.Relation{}, nil, err
	}
	return history, common, nil
}

// handleInsert sets the new row's validity interval and, under
// include-current, mirrors it into history as an open-ended row.
func (e *Engine) handleInsert(ctx context.Context, ev TriggerEvent, opts Options, effective time.Time) (*RowImage, error) {
	ret := ev.New.clone()
	ret.Values[opts.SysPeriod] = period.From(effective)
	if opts.IncrementVersion {
		ret.Values[opts.VersionColumn] = int64(1)
	}

	if opts.IncludeCurrent {
		history, common, err := e.resolveHistory(ctx, ev, opts)
		if err != nil {
			return nil, err
		}
		if err := e.insertHistory(ctx, history, common, opts, ret, period.From(effective)); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// handleWrite runs the archive-then-advance path for UPDATE and DELETE.
func (e *Engine) handleWrite(ctx context.Context, ev TriggerEvent, opts Options, effective time.Time) (*RowImage, error) {
	oldPeriod, err := e.oldValidity(ev, opts)
	if err != nil {
		return nil, err
	}

	var oldVersion int64
	if opts.IncrementVersion {
		v, ok := asInt(ev.Old.Values[opts.VersionColumn])
		if !ok {
			return nil, dataf("version value of column %q on table %q is null or not an integer", opts.VersionColumn, ev.Table)
		}
		oldVersion = v
	}

	// Rows already written by this transaction pass through untouched,
	// unless include-current tracks every modification.
	if !opts.IncludeCurrent && ev.Old.XID != 0 {
		xid, err := e.cat.CurrentXID(ctx)
		if err != nil {
			return nil, err
		}
		if ev.Old.XID == xid%(1<<32) {
			e.log.DebugContext(ctx, "suppressing re-archive within transaction", "table", ev.Table.String())
			if ev.Op == OpDelete {
				return ev.Old, nil
			}
			return ev.New.clone(), nil
		}
	}

	history, common, err := e.resolveHistory(ctx, ev, opts)
	if err != nil {
		return nil, err
	}

	if opts.IgnoreUnchanged && ev.Op == OpUpdate {
		same := true
		for _, c := range common {
			eq, err := valuesEqual(c, ev.Old.Values[c], ev.New.Values[c])
			if err != nil {
				return nil, err
			}
			if !eq {
				same = false
				break
			}
		}
		if same {
			return ev.Old, nil
		}
	}

	if !effective.After(oldPeriod.Lower()) {
		if !opts.MitigateConflicts {
			return nil, conflictf("system period of table %q is out of order: %s is not before %s",
				ev.Table, oldPeriod.Lower().Format(time.RFC3339Nano), effective.Format(time.RFC3339Nano))
		}
		effective = oldPeriod.Lower().Add(time.Microsecond)
	}

	if opts.IncludeCurrent {
		backfilled := false
		if opts.MigrationMode {
			backfilled, err = e.backfill(ctx, history, common, opts, ev.Old, oldPeriod, effective, oldVersion)
			if err != nil {
				return nil, err
			}
		}
		closedOpen, err := e.closeOpenRow(ctx, history, common, opts, ev.Old, effective)
		if err != nil {
			return nil, err
		}
		if !closedOpen && !backfilled {
			// No open mirror row matched the old image: it predates
			// adoption. Archive it as a closed row directly so the
			// prior version is never lost.
			closed := period.Between(oldPeriod.Lower(), effective)
			if err := e.archive(ctx, history, common, opts, ev.Old, closed, oldVersion); err != nil {
				return nil, err
			}
		}
	} else {
		closed := period.Between(oldPeriod.Lower(), effective)
		if err := e.archive(ctx, history, common, opts, ev.Old, closed, oldVersion); err != nil {
			return nil, err
		}
	}

	if ev.Op == OpDelete {
		return ev.Old, nil
	}

	ret := ev.New.clone()
	ret.Values[opts.SysPeriod] = period.From(effective)
	if opts.IncrementVersion {
		ret.Values[opts.VersionColumn] = oldVersion + 1
	}
	if opts.IncludeCurrent {
		if err := e.insertHistory(ctx, history, common, opts, ret, period.From(effective)); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// oldValidity parses and validates the stored validity value: non-null,
// non-empty, open-ended upward. Anything else is prior corruption.
func (e *Engine) oldValidity(ev TriggerEvent, opts Options) (period.Period, error) {
	p, err := asPeriod(ev.Old.Values[opts.SysPeriod])
	if err != nil {
		return period.Period{}, dataf("system period value of column %q on table %q is malformed: %v", opts.SysPeriod, ev.Table, err)
	}
	if p.IsZero() || p.Empty() || !p.UpperUnbounded() {
		return period.Period{}, dataf("system period value of column %q on table %q is not valid: %s", opts.SysPeriod, ev.Table, p)
	}
	return p, nil
}

// archive inserts the closed prior-image row into history.
func (e *Engine) archive(ctx context.Context, history catalog.Relation, common []string, opts Options, old *RowImage, closed period.Period, version int64) error {
	if err := e.insertRow(ctx, history, common, opts, old, closed, version); err != nil {
		return fmt.Errorf("archiving into %s: %w", history, err)
	}
	e.log.DebugContext(ctx, "archived row", "history", history.String(), "period", closed.String())
	return nil
}

// insertHistory inserts an open-ended mirror of a current-row image
// (include-current paths).
func (e *Engine) insertHistory(ctx context.Context, history catalog.Relation, common []string, opts Options, image *RowImage, p period.Period) error {
	var version int64
	if opts.IncrementVersion {
		version, _ = asInt(image.Values[opts.VersionColumn])
	}
	if err := e.insertRow(ctx, history, common, opts, image, p, version); err != nil {
		return fmt.Errorf("mirroring current row into %s: %w", history, err)
	}
	return nil
}

// insertRow builds and executes the dynamic INSERT over the common
// columns plus validity and, when enabled, version.
func (e *Engine) insertRow(ctx context.Context, history catalog.Relation, common []string, opts Options, image *RowImage, p period.Period, version int64) error {
	columns := make([]string, 0, len(common)+2)
	values := make([]sqldsl.Expr, 0, len(common)+2)
	args := make([]any, 0, len(common)+2)

	for _, c := range common {
		columns = append(columns, catalog.Relation{Name: c}.Quoted())
		values = append(values, sqldsl.Placeholder(len(args)+1))
		args = append(args, image.Values[c])
	}
	columns = append(columns, catalog.Relation{Name: opts.SysPeriod}.Quoted())
	values = append(values, sqldsl.Cast{Expr: sqldsl.Placeholder(len(args) + 1), Type: period.PGType})
	args = append(args, p.String())
	if opts.IncrementVersion {
		columns = append(columns, catalog.Relation{Name: opts.VersionColumn}.Quoted())
		values = append(values, sqldsl.Placeholder(len(args)+1))
		args = append(args, version)
	}

	stmt := sqldsl.InsertStmt{Into: history.Quoted(), Columns: columns, Values: values}
	if _, err := e.db.ExecContext(ctx, stmt.SQL(), args...); err != nil {
		return err
	}
	return nil
}

// openRowPredicate matches the open-ended history row for the old image:
// upper-unbounded validity plus null-safe equality over every common
// column. Returns the predicate and its ordered arguments.
func openRowPredicate(common []string, opts Options, old *RowImage, firstArg int) (sqldsl.Expr, []any) {
	conds := []sqldsl.Expr{sqldsl.Call("upper_inf", sqldsl.Raw(catalog.Relation{Name: opts.SysPeriod}.Quoted()))}
	args := make([]any, 0, len(common))
	for _, c := range common {
		conds = append(conds, sqldsl.NotDistinct{
			Left:  sqldsl.Raw(catalog.Relation{Name: c}.Quoted()),
			Right: sqldsl.Placeholder(firstArg + len(args)),
		})
		args = append(args, old.Values[c])
	}
	return sqldsl.And(conds...), args
}

// backfill lazily inserts the closed history row for old images that
// predate include-current adoption, when no open-ended row matches.
// Reports whether a row was inserted.
func (e *Engine) backfill(ctx context.Context, history catalog.Relation, common []string, opts Options, old *RowImage, oldPeriod period.Period, effective time.Time, version int64) (bool, error) {
	pred, args := openRowPredicate(common, opts, old, 1)
	query := sqldsl.Sqlf(`
		SELECT EXISTS (
		%s)`, sqldsl.SelectStmt{
		Columns: []sqldsl.Expr{sqldsl.Int(1)},
		From:    history.Quoted(),
		Where:   pred,
	}.SQL())

	var exists bool
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking for open history row in %s: %w", history, err)
	}
	if exists {
		return false, nil
	}
	closed := period.Between(oldPeriod.Lower(), effective)
	if err := e.insertRow(ctx, history, common, opts, old, closed, version); err != nil {
		return false, fmt.Errorf("backfilling history row into %s: %w", history, err)
	}
	e.log.DebugContext(ctx, "backfilled pre-adoption history row", "history", history.String(), "period", closed.String())
	return true, nil
}

// closeOpenRow closes the open-ended history row for the old image in
// place, recording the end of that version's validity. Reports whether
// a row matched.
func (e *Engine) closeOpenRow(ctx context.Context, history catalog.Relation, common []string, opts Options, old *RowImage, effective time.Time) (bool, error) {
	sys := catalog.Relation{Name: opts.SysPeriod}.Quoted()
	pred, predArgs := openRowPredicate(common, opts, old, 2)
	stmt := sqldsl.UpdateStmt{
		Table: history.Quoted(),
		Set: []sqldsl.Assignment{{
			Column: sys,
			Value:  sqldsl.Call("tstzrange", sqldsl.Call("lower", sqldsl.Raw(sys)), sqldsl.Placeholder(1)),
		}},
		Where: pred,
	}
	args := append([]any{effective}, predArgs...)
	res, err := e.db.ExecContext(ctx, stmt.SQL(), args...)
	if err != nil {
		return false, fmt.Errorf("closing open history row in %s: %w", history, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("closing open history row in %s: %w", history, err)
	}
	return n > 0, nil
}

func asPeriod(v any) (period.Period, error) {
	switch t := v.(type) {
	case period.Period:
		return t, nil
	case string:
		return period.Parse(t)
	case []byte:
		return period.Parse(string(t))
	case nil:
		return period.Period{}, nil
	}
	return period.Period{}, fmt.Errorf("unsupported validity value of type %T", v)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func integerType(t string) bool {
	switch t {
	case "smallint", "integer", "bigint":
		return true
	}
	return false
}
