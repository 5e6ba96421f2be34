package engine

import "github.com/pgchrono/pgchrono/pkg/catalog"

// Op is the data-modification operation that fired the event.
type Op string

// Supported operations.
const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Timing is the trigger timing relative to the row write.
type Timing string

// Trigger timings. The protocol requires Before.
const (
	Before Timing = "BEFORE"
	After  Timing = "AFTER"
)

// Level is the trigger granularity.
type Level string

// Trigger levels. The protocol requires Row.
const (
	Row       Level = "ROW"
	Statement Level = "STATEMENT"
)

// RowImage is one row image: its column values plus the stored tuple's
// transaction-visibility marker. XID is the low 32 bits of the
// transaction that last wrote the tuple; zero means unknown, which
// disables same-transaction suppression for that row.
type RowImage struct {
	Values map[string]any
	XID    uint64
}

// clone returns a shallow copy with its own value map, so the engine can
// rewrite validity and version without mutating the caller's image.
func (r *RowImage) clone() *RowImage {
	out := &RowImage{XID: r.XID, Values: make(map[string]any, len(r.Values)+1)}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// TriggerEvent describes one before-row invocation against a current
// table. Old is set for UPDATE and DELETE, New for INSERT and UPDATE.
// Args carries the positional trigger arguments described in ParseArgs.
type TriggerEvent struct {
	Op     Op
	Timing Timing
	Level  Level
	Table  catalog.Relation
	Args   []string
	Old    *RowImage
	New    *RowImage
}
