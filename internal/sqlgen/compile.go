package sqlgen

// Generated holds the source artifacts for one versioned table.
type Generated struct {
	// Function is the CREATE OR REPLACE FUNCTION statement for the
	// specialized trigger procedure.
	Function string

	// Trigger is the DROP TRIGGER IF EXISTS / CREATE TRIGGER pair that
	// binds the procedure to the table.
	Trigger string
}

// Compile renders the specialized trigger procedure and its binding DDL
// for a resolved spec. Pure: identical specs yield byte-identical output,
// which is what makes listener-driven regeneration idempotent.
func Compile(spec Spec) Generated {
	return Generated{
		Function: spec.renderFunction().SQL(),
		Trigger:  spec.renderTrigger(),
	}
}

// InstallSQL returns the concatenation applied when installing: the
// procedure definition followed by the trigger binding.
func (g Generated) InstallSQL() string {
	return g.Function + "\n\n" + g.Trigger
}

// Statements returns the individually executable statements in
// installation order. CREATE FUNCTION must run before CREATE TRIGGER;
// the DROP/CREATE trigger pair is split so each statement can go through
// a single Exec call.
func (g Generated) Statements() []string {
	stmts := []string{g.Function}
	stmts = append(stmts, splitTriggerDDL(g.Trigger)...)
	return stmts
}

// splitTriggerDDL separates the DROP and CREATE statements of the
// trigger DDL. The renderer always emits exactly one of each, in order,
// separated by ";\n".
func splitTriggerDDL(ddl string) []string {
	const sep = ";\nCREATE TRIGGER"
	for i := 0; i+len(sep) <= len(ddl); i++ {
		if ddl[i:i+len(sep)] == sep {
			return []string{ddl[:i], ddl[i+2:]}
		}
	}
	return []string{ddl}
}
