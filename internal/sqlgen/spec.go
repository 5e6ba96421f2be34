package sqlgen

import (
	"github.com/lib/pq"

	"github.com/pgchrono/pgchrono/pkg/catalog"
)

// Spec is a fully resolved versioning specification: both relations
// normalized to (schema, table) pairs, the common-column projection
// computed, and every option flag decided. Compile is a pure function of
// a Spec; all introspection happens before one is built.
type Spec struct {
	Table   catalog.Relation
	History catalog.Relation

	// SysPeriod is the validity attribute, present on both relations
	// with type tstzrange.
	SysPeriod string

	// Columns is the common-column projection: name-matching,
	// non-dropped columns of both relations, excluding SysPeriod and,
	// when IncrementVersion is set, VersionColumn. May be empty.
	Columns []string

	IgnoreUnchanged   bool
	IncludeCurrent    bool
	MitigateConflicts bool
	MigrationMode     bool
	IncrementVersion  bool
	VersionColumn     string
}

// FunctionName returns the deterministic name of the generated trigger
// function for a table, so regeneration replaces rather than duplicates.
func FunctionName(rel catalog.Relation) catalog.Relation {
	return catalog.Relation{Schema: rel.Schema, Name: rel.Name + "_versioning"}
}

// TriggerName returns the deterministic trigger name for a table.
func TriggerName(rel catalog.Relation) string {
	return rel.Name + "_versioning_trigger"
}

// quoted returns the identifier-quoted column name.
func quoted(column string) string {
	return pq.QuoteIdentifier(column)
}
