package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgchrono/pgchrono/pkg/catalog"
)

func TestConfigRequest(t *testing.T) {
	cfg := Config{
		TableName:          "accounts",
		TableSchema:        "public",
		HistoryTable:       "accounts_history",
		HistoryTableSchema: "audit",
		SysPeriod:          "sys_period",
		IgnoreUnchanged:    true,
		IncrementVersion:   true,
		VersionColumnName:  "revision",
	}

	req := cfg.Request()
	assert.Equal(t, `"public"."accounts"`, req.Table)
	assert.Equal(t, `"audit"."accounts_history"`, req.HistoryTable)
	assert.Equal(t, "sys_period", req.SysPeriod)
	assert.True(t, req.IgnoreUnchanged)
	assert.False(t, req.IncludeCurrent)
	assert.True(t, req.IncrementVersion)
	assert.Equal(t, "revision", req.VersionColumn)
}

func TestConfigRelations(t *testing.T) {
	cfg := Config{TableName: "accounts", TableSchema: "public", HistoryTable: "accounts_history", HistoryTableSchema: "public"}
	assert.Equal(t, catalog.Relation{Schema: "public", Name: "accounts"}, cfg.Table())
	assert.Equal(t, catalog.Relation{Schema: "public", Name: "accounts_history"}, cfg.History())
}

// The quoted request identifiers must survive a round trip through
// identifier parsing, including names that need quoting.
func TestConfigRequestRoundTrip(t *testing.T) {
	cfg := Config{TableName: "Order Items", TableSchema: "Sales", HistoryTable: "Order Items History", HistoryTableSchema: "Sales"}
	req := cfg.Request()

	table, err := catalog.ParseRelation(req.Table, "public")
	assert.NoError(t, err)
	assert.Equal(t, cfg.Table(), table)

	history, err := catalog.ParseRelation(req.HistoryTable, "public")
	assert.NoError(t, err)
	assert.Equal(t, cfg.History(), history)
}
