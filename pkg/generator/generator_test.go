package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgchrono/pgchrono/pkg/catalog"
)

type fakeAccessor struct {
	schema    string
	relations map[string]bool
	types     map[string]string
	columns   map[string][]string
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

func (f *fakeAccessor) CommonColumns(_ context.Context, current, history catalog.Relation, exclude ...string) ([]string, error) {
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

func (f *fakeAccessor) CurrentXID(context.Context) (uint64, error) { return 0, nil }

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
	}
}

func TestResolveDefaultsAndProjection(t *testing.T) {
	spec, err := resolve(context.Background(), testAccessor(), Request{
		Table:        "accounts",
		HistoryTable: "accounts_history",
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.Relation{Schema: "public", Name: "accounts"}, spec.Table)
	assert.Equal(t, catalog.Relation{Schema: "public", Name: "accounts_history"}, spec.History)
	assert.Equal(t, "sys_period", spec.SysPeriod)
	// Validity is excluded from the projection, the version counter is
	// not unless incrementing is on.
	assert.Equal(t, []string{"id", "balance", "version"}, spec.Columns)
}

func TestResolveExcludesVersionColumn(t *testing.T) {
	spec, err := resolve(context.Background(), testAccessor(), Request{
		Table:            "accounts",
		HistoryTable:     "accounts_history",
		IncrementVersion: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "balance"}, spec.Columns)
	assert.Equal(t, "version", spec.VersionColumn)
}

func TestResolveHistoryInheritsTableSchema(t *testing.T) {
	cat := testAccessor()
	cat.relations = map[string]bool{"audit.accounts": true, "audit.accounts_history": true}
	cat.types = map[string]string{
		"audit.accounts.sys_period":         "tstzrange",
		"audit.accounts_history.sys_period": "tstzrange",
	}
	cat.columns = map[string][]string{
		"audit.accounts":         {"id", "sys_period"},
		"audit.accounts_history": {"id", "sys_period"},
	}

	spec, err := resolve(context.Background(), cat, Request{
		Table:        "audit.accounts",
		HistoryTable: "accounts_history",
	})
	require.NoError(t, err)
	assert.Equal(t, "audit", spec.History.Schema)
}

func TestResolveMissingRelation(t *testing.T) {
	cat := testAccessor()
	cat.relations["public.accounts_history"] = false

	_, err := resolve(context.Background(), cat, Request{
		Table:        "accounts",
		HistoryTable: "accounts_history",
	})
	require.Error(t, err)
	assert.True(t, IsValidationErr(err))
	assert.Contains(t, err.Error(), "accounts_history")
}

func TestResolveWrongValidityType(t *testing.T) {
	cat := testAccessor()
	cat.types["public.accounts_history.sys_period"] = "tsrange"

	_, err := resolve(context.Background(), cat, Request{
		Table:        "accounts",
		HistoryTable: "accounts_history",
	})
	assert.True(t, IsValidationErr(err))
	assert.Contains(t, err.Error(), "tsrange")
}

func TestResolveBadVersionColumn(t *testing.T) {
	cat := testAccessor()
	cat.types["public.accounts.version"] = "text"

	_, err := resolve(context.Background(), cat, Request{
		Table:            "accounts",
		HistoryTable:     "accounts_history",
		IncrementVersion: true,
	})
	assert.True(t, IsValidationErr(err))

	delete(cat.types, "public.accounts.version")
	_, err = resolve(context.Background(), cat, Request{
		Table:            "accounts",
		HistoryTable:     "accounts_history",
		IncrementVersion: true,
	})
	assert.True(t, IsValidationErr(err))
}

func TestResolveMalformedIdentifier(t *testing.T) {
	_, err := resolve(context.Background(), testAccessor(), Request{
		Table:        "a.b.c",
		HistoryTable: "accounts_history",
	})
	assert.True(t, IsValidationErr(err))
}
