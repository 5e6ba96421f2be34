package test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/engine"
	"github.com/pgchrono/pgchrono/pkg/period"
	"github.com/pgchrono/pgchrono/test/testutil"
)

var accountsRel = catalog.Relation{Schema: "public", Name: "accounts"}

func newEngine(db *sql.DB) *engine.Engine {
	return engine.New(db, catalog.New(db), period.SystemClock{})
}

// seedRow inserts a current row with an open validity and returns its
// stored validity text, the shape the engine receives from a trigger
// binding.
func seedRow(t *testing.T, db *sql.DB, id int64, balance int64, since time.Time) string {
	t.Helper()
	_, err := db.Exec(`INSERT INTO accounts (id, owner, balance, sys_period)
		VALUES ($1, 'alice', $2, tstzrange($3, NULL))`, id, balance, since)
	require.NoError(t, err)

	var sysPeriod string
	require.NoError(t, db.QueryRow(`SELECT sys_period::text FROM accounts WHERE id = $1`, id).Scan(&sysPeriod))
	return sysPeriod
}

func TestEngineUpdateArchivesLive(t *testing.T) {
	db := testutil.DB(t)
	eng := newEngine(db)

	since := time.Now().Add(-time.Hour).UTC()
	sysPeriod := seedRow(t, db, 1, 100, since)

	ret, err := eng.HandleRow(context.Background(), engine.TriggerEvent{
		Op:     engine.OpUpdate,
		Timing: engine.Before,
		Level:  engine.Row,
		Table:  accountsRel,
		Args:   []string{"sys_period", "accounts_history"},
		Old: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(100), "sys_period": sysPeriod,
		}},
		New: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(200),
		}},
	})
	require.NoError(t, err)

	// The returned image carries the advanced validity.
	p, ok := ret.Values["sys_period"].(period.Period)
	require.True(t, ok)
	assert.True(t, p.UpperUnbounded())
	assert.True(t, p.Lower().After(since))

	// The prior image is archived, closed at the new lower bound.
	var balance int64
	var lo, hi time.Time
	require.NoError(t, db.QueryRow(`
		SELECT balance, lower(sys_period), upper(sys_period)
		FROM accounts_history`).Scan(&balance, &lo, &hi))
	assert.Equal(t, int64(100), balance)
	assert.Equal(t, since.Truncate(time.Microsecond), lo.UTC())
	assert.Equal(t, p.Lower().UTC(), hi.UTC())
}

func TestEngineDeleteArchivesLive(t *testing.T) {
	db := testutil.DB(t)
	eng := newEngine(db)

	sysPeriod := seedRow(t, db, 1, 100, time.Now().Add(-time.Hour).UTC())

	old := &engine.RowImage{Values: map[string]any{
		"id": int64(1), "owner": "alice", "balance": int64(100), "sys_period": sysPeriod,
	}}
	ret, err := eng.HandleRow(context.Background(), engine.TriggerEvent{
		Op:     engine.OpDelete,
		Timing: engine.Before,
		Level:  engine.Row,
		Table:  accountsRel,
		Args:   []string{"sys_period", "accounts_history"},
		Old:    old,
	})
	require.NoError(t, err)
	assert.Same(t, old, ret, "DELETE proceeds with the unmodified old image")

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM accounts_history WHERE NOT upper_inf(sys_period)`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestEngineSurvivesSchemaChange(t *testing.T) {
	db := testutil.DB(t)
	eng := newEngine(db)

	sysPeriod := seedRow(t, db, 1, 100, time.Now().Add(-time.Hour).UTC())

	// Widen both tables after the engine was constructed. The engine
	// introspects per invocation, so the new column is archived without
	// any regeneration step.
	_, err := db.Exec(`ALTER TABLE accounts ADD COLUMN note text`)
	require.NoError(t, err)
	_, err = db.Exec(`ALTER TABLE accounts_history ADD COLUMN note text`)
	require.NoError(t, err)

	_, err = eng.HandleRow(context.Background(), engine.TriggerEvent{
		Op:     engine.OpUpdate,
		Timing: engine.Before,
		Level:  engine.Row,
		Table:  accountsRel,
		Args:   []string{"sys_period", "accounts_history"},
		Old: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(100), "note": "archived", "sys_period": sysPeriod,
		}},
		New: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(200), "note": "current",
		}},
	})
	require.NoError(t, err)

	var note string
	require.NoError(t, db.QueryRow(`SELECT note FROM accounts_history`).Scan(&note))
	assert.Equal(t, "archived", note)
}

func TestEngineZeroCommonColumns(t *testing.T) {
	db := testutil.DB(t)
	eng := newEngine(db)

	_, err := db.Exec(`CREATE TABLE beacons (id bigint PRIMARY KEY, sys_period tstzrange)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE beacons_log (sys_period tstzrange)`)
	require.NoError(t, err)

	since := time.Now().Add(-time.Hour).UTC()
	_, err = db.Exec(`INSERT INTO beacons (id, sys_period) VALUES (1, tstzrange($1, NULL))`, since)
	require.NoError(t, err)
	var sysPeriod string
	require.NoError(t, db.QueryRow(`SELECT sys_period::text FROM beacons WHERE id = 1`).Scan(&sysPeriod))

	_, err = eng.HandleRow(context.Background(), engine.TriggerEvent{
		Op:     engine.OpDelete,
		Timing: engine.Before,
		Level:  engine.Row,
		Table:  catalog.Relation{Schema: "public", Name: "beacons"},
		Args:   []string{"sys_period", "beacons_log"},
		Old: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "sys_period": sysPeriod,
		}},
	})
	require.NoError(t, err)

	// With an empty projection the archive records only the validity.
	var lo, hi time.Time
	require.NoError(t, db.QueryRow(`SELECT lower(sys_period), upper(sys_period) FROM beacons_log`).Scan(&lo, &hi))
	assert.Equal(t, since.Truncate(time.Microsecond), lo.UTC())
	assert.True(t, lo.Before(hi))
}

func TestEngineIncludeCurrentArchivesUnmirroredRow(t *testing.T) {
	db := testutil.DB(t)
	eng := newEngine(db)

	// The row predates include-current adoption, so history holds no
	// open mirror to close in place.
	since := time.Now().Add(-time.Hour).UTC()
	sysPeriod := seedRow(t, db, 1, 100, since)

	_, err := eng.HandleRow(context.Background(), engine.TriggerEvent{
		Op:     engine.OpDelete,
		Timing: engine.Before,
		Level:  engine.Row,
		Table:  accountsRel,
		Args:   []string{"sys_period", "accounts_history", "f", "f", "true"},
		Old: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(100), "sys_period": sysPeriod,
		}},
	})
	require.NoError(t, err)

	// The prior image is archived as a closed row instead of vanishing.
	var balance int64
	var lo time.Time
	var upperInf bool
	require.NoError(t, db.QueryRow(`
		SELECT balance, lower(sys_period), upper_inf(sys_period)
		FROM accounts_history`).Scan(&balance, &lo, &upperInf))
	assert.Equal(t, int64(100), balance)
	assert.Equal(t, since.Truncate(time.Microsecond), lo.UTC())
	assert.False(t, upperInf)
}

func TestEngineIncludeCurrentLive(t *testing.T) {
	db := testutil.DB(t)
	eng := newEngine(db)

	args := []string{"sys_period", "accounts_history", "f", "f", "true"}

	// INSERT mirrors the new row into history as an open row.
	ret, err := eng.HandleRow(context.Background(), engine.TriggerEvent{
		Op:     engine.OpInsert,
		Timing: engine.Before,
		Level:  engine.Row,
		Table:  accountsRel,
		Args:   args,
		New: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(100),
		}},
	})
	require.NoError(t, err)

	p := ret.Values["sys_period"].(period.Period)
	_, err = db.Exec(`INSERT INTO accounts (id, owner, balance, sys_period)
		VALUES (1, 'alice', 100, $1::tstzrange)`, p.String())
	require.NoError(t, err)

	var open int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM accounts_history WHERE upper_inf(sys_period)`).Scan(&open))
	assert.Equal(t, 1, open)

	// UPDATE closes the mirror and appends the new version.
	var sysPeriod string
	require.NoError(t, db.QueryRow(`SELECT sys_period::text FROM accounts WHERE id = 1`).Scan(&sysPeriod))

	_, err = eng.HandleRow(context.Background(), engine.TriggerEvent{
		Op:     engine.OpUpdate,
		Timing: engine.Before,
		Level:  engine.Row,
		Table:  accountsRel,
		Args:   args,
		Old: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(100), "sys_period": sysPeriod,
		}},
		New: &engine.RowImage{Values: map[string]any{
			"id": int64(1), "owner": "alice", "balance": int64(200),
		}},
	})
	require.NoError(t, err)

	var total int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM accounts_history`).Scan(&total))
	assert.Equal(t, 2, total)
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM accounts_history WHERE upper_inf(sys_period)`).Scan(&open))
	assert.Equal(t, 1, open)
}
