package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgchrono/pgchrono/pkg/catalog"
)

func TestParseArgsDefaults(t *testing.T) {
	opts, err := ParseArgs([]string{"sys_period", "accounts_history"})
	require.NoError(t, err)

	assert.Equal(t, "sys_period", opts.SysPeriod)
	assert.Equal(t, "accounts_history", opts.HistoryTable)
	assert.False(t, opts.MitigateConflicts)
	assert.False(t, opts.IgnoreUnchanged)
	assert.False(t, opts.IncludeCurrent)
	assert.False(t, opts.MigrationMode)
	assert.False(t, opts.IncrementVersion)
	assert.Equal(t, "version", opts.VersionColumn)
}

func TestParseArgsFull(t *testing.T) {
	opts, err := ParseArgs([]string{"validity", "audit.accounts_history", "true", "t", "on", "1", "yes", "revision"})
	require.NoError(t, err)

	assert.True(t, opts.MitigateConflicts)
	assert.True(t, opts.IgnoreUnchanged)
	assert.True(t, opts.IncludeCurrent)
	assert.True(t, opts.MigrationMode)
	assert.True(t, opts.IncrementVersion)
	assert.Equal(t, "revision", opts.VersionColumn)
}

func TestParseArgsCount(t *testing.T) {
	_, err := ParseArgs([]string{"sys_period"})
	assert.True(t, IsProtocolErr(err))

	_, err = ParseArgs([]string{"a", "b", "f", "f", "f", "f", "f", "version", "extra"})
	assert.True(t, IsProtocolErr(err))
}

func TestParseArgsBadBool(t *testing.T) {
	_, err := ParseArgs([]string{"sys_period", "h", "maybe"})
	require.Error(t, err)
	assert.True(t, IsProtocolErr(err))
	assert.Contains(t, err.Error(), "argument 3")
}

func TestParseArgsEmptyRequired(t *testing.T) {
	_, err := ParseArgs([]string{"", "h"})
	assert.True(t, IsProtocolErr(err))

	_, err = ParseArgs([]string{"sys_period", ""})
	assert.True(t, IsProtocolErr(err))
}

func TestOptionsHistory(t *testing.T) {
	opts := Options{HistoryTable: "audit.accounts_history"}
	rel, err := opts.History("public")
	require.NoError(t, err)
	assert.Equal(t, catalog.Relation{Schema: "audit", Name: "accounts_history"}, rel)

	opts.HistoryTable = "accounts_history"
	rel, err = opts.History("public")
	require.NoError(t, err)
	assert.Equal(t, catalog.Relation{Schema: "public", Name: "accounts_history"}, rel)
}

func TestOptionsExcluded(t *testing.T) {
	opts := Options{SysPeriod: "sys_period", VersionColumn: "version"}
	assert.Equal(t, []string{"sys_period"}, opts.excluded())

	opts.IncrementVersion = true
	assert.Equal(t, []string{"sys_period", "version"}, opts.excluded())
}
