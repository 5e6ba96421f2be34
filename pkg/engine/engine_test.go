package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/period"
)

// fakeAccessor serves introspection results from maps, so validation
// paths can be exercised without a database. Paths that reach the
// Execer are covered by the integration tests under test/.
type fakeAccessor struct {
	schema    string
	relations map[string]bool
	types     map[string]string // "schema.table.column" -> type
	columns   map[string][]string
	xid       uint64
}

func (f *fakeAccessor) CurrentSchema(context.Context) (string, error) { return f.schema, nil }

func (f *fakeAccessor) RelationExists(_ context.Context, rel catalog.Relation) (bool, error) {
	return f.relations[rel.String()], nil
}

func (f *fakeAccessor) ColumnType(_ context.Context, rel catalog.Relation, column string) (string, error) {
	return f.types[rel.String()+"."+column], nil
}

func (f *fakeAccessor) Columns(_ context.Context, rel catalog.Relation) ([]string, error) {
	return f.columns[rel.String()], nil
}

func (f *fakeAccessor) CommonColumns(ctx context.Context, current, history catalog.Relation, exclude ...string) ([]string, error) {
	excluded := make(map[string]bool)
	for _, e := range exclude {
		excluded[e] = true
	}
	inHistory := make(map[string]bool)
	for _, c := range f.columns[history.String()] {
		inHistory[c] = true
	}
	var out []string
	for _, c := range f.columns[current.String()] {
		if inHistory[c] && !excluded[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeAccessor) CurrentXID(context.Context) (uint64, error) { return f.xid, nil }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now(context.Context) time.Time { return c.t }

var (
	accounts = catalog.Relation{Schema: "public", Name: "accounts"}
	history  = catalog.Relation{Schema: "public", Name: "accounts_history"}
)

func testAccessor() *fakeAccessor {
	return &fakeAccessor{
		schema:    "public",
		relations: map[string]bool{"public.accounts": true, "public.accounts_history": true},
		types: map[string]string{
			"public.accounts.sys_period":         "tstzrange",
			"public.accounts.version":            "integer",
			"public.accounts_history.sys_period": "tstzrange",
		},
		columns: map[string][]string{
			"public.accounts":         {"id", "balance", "version", "sys_period"},
			"public.accounts_history": {"id", "balance", "version", "sys_period"},
		},
		xid: 700,
	}
}

func testEngine(cat catalog.Accessor, at time.Time) *Engine {
	return New(nil, cat, fixedClock{t: at})
}

func baseEvent(op Op) TriggerEvent {
	return TriggerEvent{
		Op:     op,
		Timing: Before,
		Level:  Row,
		Table:  accounts,
		Args:   []string{"sys_period", "accounts_history"},
	}
}

func TestHandleRowRejectsWrongTiming(t *testing.T) {
	e := testEngine(testAccessor(), time.Now())

	ev := baseEvent(OpInsert)
	ev.New = &RowImage{Values: map[string]any{"id": int64(1)}}
	ev.Timing = After
	_, err := e.HandleRow(context.Background(), ev)
	assert.True(t, IsProtocolErr(err))

	ev.Timing = Before
	ev.Level = Statement
	_, err = e.HandleRow(context.Background(), ev)
	assert.True(t, IsProtocolErr(err))
}

func TestHandleRowRejectsUnknownOp(t *testing.T) {
	e := testEngine(testAccessor(), time.Now())
	ev := baseEvent("TRUNCATE")
	_, err := e.HandleRow(context.Background(), ev)
	assert.True(t, IsProtocolErr(err))
}

func TestHandleRowRejectsMissingImages(t *testing.T) {
	e := testEngine(testAccessor(), time.Now())

	_, err := e.HandleRow(context.Background(), baseEvent(OpInsert))
	assert.True(t, IsProtocolErr(err))

	ev := baseEvent(OpUpdate)
	ev.New = &RowImage{Values: map[string]any{}}
	_, err = e.HandleRow(context.Background(), ev)
	assert.True(t, IsProtocolErr(err))

	_, err = e.HandleRow(context.Background(), baseEvent(OpDelete))
	assert.True(t, IsProtocolErr(err))
}

func TestHandleRowRejectsMissingValidityColumn(t *testing.T) {
	cat := testAccessor()
	delete(cat.types, "public.accounts.sys_period")
	e := testEngine(cat, time.Now())

	ev := baseEvent(OpInsert)
	ev.New = &RowImage{Values: map[string]any{"id": int64(1)}}
	_, err := e.HandleRow(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, IsSchemaErr(err))
	assert.Contains(t, err.Error(), `"sys_period"`)
}

func TestHandleRowRejectsWrongValidityType(t *testing.T) {
	cat := testAccessor()
	cat.types["public.accounts.sys_period"] = "tsrange"
	e := testEngine(cat, time.Now())

	ev := baseEvent(OpInsert)
	ev.New = &RowImage{Values: map[string]any{"id": int64(1)}}
	_, err := e.HandleRow(context.Background(), ev)
	assert.True(t, IsSchemaErr(err))
	assert.Contains(t, err.Error(), "tsrange")
}

func TestHandleRowRejectsBadVersionColumn(t *testing.T) {
	cat := testAccessor()
	cat.types["public.accounts.version"] = "text"
	e := testEngine(cat, time.Now())

	ev := baseEvent(OpInsert)
	ev.Args = []string{"sys_period", "accounts_history", "f", "f", "f", "f", "true"}
	ev.New = &RowImage{Values: map[string]any{"id": int64(1)}}
	_, err := e.HandleRow(context.Background(), ev)
	assert.True(t, IsSchemaErr(err))
	assert.Contains(t, err.Error(), `"version"`)
}

func TestHandleRowInsertSetsValidityAndVersion(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e := testEngine(testAccessor(), at)

	ev := baseEvent(OpInsert)
	ev.Args = []string{"sys_period", "accounts_history", "f", "f", "f", "f", "true"}
	ev.New = &RowImage{Values: map[string]any{"id": int64(1), "balance": int64(100)}}

	got, err := e.HandleRow(context.Background(), ev)
	require.NoError(t, err)

	p, ok := got.Values["sys_period"].(period.Period)
	require.True(t, ok)
	assert.True(t, p.UpperUnbounded())
	assert.Equal(t, at, p.Lower().UTC())
	assert.Equal(t, int64(1), got.Values["version"])
	// Caller's image is not mutated.
	assert.NotContains(t, ev.New.Values, "sys_period")
}

func TestHandleRowMissingHistoryRelation(t *testing.T) {
	cat := testAccessor()
	cat.relations["public.accounts_history"] = false
	e := testEngine(cat, time.Now())

	ev := baseEvent(OpDelete)
	ev.Old = &RowImage{Values: map[string]any{
		"id":         int64(1),
		"sys_period": period.From(time.Now().Add(-time.Hour)),
	}}
	_, err := e.HandleRow(context.Background(), ev)
	assert.True(t, IsSchemaErr(err))
	assert.Contains(t, err.Error(), "accounts_history")
}

func TestHandleRowCorruptedValidity(t *testing.T) {
	e := testEngine(testAccessor(), time.Now())

	for _, bad := range []any{nil, "empty", period.Between(time.Now().Add(-time.Hour), time.Now())} {
		ev := baseEvent(OpDelete)
		ev.Old = &RowImage{Values: map[string]any{"id": int64(1), "sys_period": bad}}
		_, err := e.HandleRow(context.Background(), ev)
		require.Error(t, err, "value %v", bad)
		assert.True(t, IsDataErr(err), "value %v", bad)
	}
}

func TestHandleRowNullVersion(t *testing.T) {
	e := testEngine(testAccessor(), time.Now())

	ev := baseEvent(OpDelete)
	ev.Args = []string{"sys_period", "accounts_history", "f", "f", "f", "f", "true"}
	ev.Old = &RowImage{Values: map[string]any{
		"id":         int64(1),
		"sys_period": period.From(time.Now().Add(-time.Hour)),
	}}
	_, err := e.HandleRow(context.Background(), ev)
	assert.True(t, IsDataErr(err))
	assert.Contains(t, err.Error(), `"version"`)
}

func TestHandleRowSameTransactionSuppression(t *testing.T) {
	cat := testAccessor()
	cat.xid = 700
	e := testEngine(cat, time.Now())

	old := &RowImage{
		XID:    700,
		Values: map[string]any{"id": int64(1), "sys_period": period.From(time.Now().Add(-time.Minute))},
	}

	ev := baseEvent(OpUpdate)
	ev.Old = old
	ev.New = &RowImage{Values: map[string]any{"id": int64(1), "balance": int64(5)}}
	got, err := e.HandleRow(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Values["balance"])
	assert.NotContains(t, got.Values, "sys_period")

	del := baseEvent(OpDelete)
	del.Old = old
	got, err = e.HandleRow(context.Background(), del)
	require.NoError(t, err)
	assert.Same(t, old, got)
}

func TestHandleRowIgnoreUnchanged(t *testing.T) {
	e := testEngine(testAccessor(), time.Now())

	old := &RowImage{Values: map[string]any{
		"id":         int64(1),
		"balance":    int64(100),
		"version":    int64(3),
		"sys_period": period.From(time.Now().Add(-time.Hour)),
	}}
	ev := baseEvent(OpUpdate)
	ev.Args = []string{"sys_period", "accounts_history", "f", "true"}
	ev.Old = old
	ev.New = &RowImage{Values: map[string]any{"id": int64(1), "balance": int64(100), "version": int64(3)}}

	got, err := e.HandleRow(context.Background(), ev)
	require.NoError(t, err)
	assert.Same(t, old, got)
}

func TestHandleRowOrderingConflict(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e := testEngine(testAccessor(), at)

	ev := baseEvent(OpUpdate)
	ev.Old = &RowImage{Values: map[string]any{
		"id":         int64(1),
		"sys_period": period.From(at), // same microsecond: not strictly before
	}}
	ev.New = &RowImage{Values: map[string]any{"id": int64(1), "balance": int64(5)}}

	_, err := e.HandleRow(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, IsConflictErr(err))
}
