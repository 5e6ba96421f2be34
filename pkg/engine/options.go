package engine

import (
	"fmt"
	"strings"

	"github.com/pgchrono/pgchrono/pkg/catalog"
)

// DefaultVersionColumn is the version-counter attribute name used when
// the eighth argument is omitted.
const DefaultVersionColumn = "version"

// Argument count bounds for this protocol version.
const (
	minArgs = 2
	maxArgs = 8
)

// Options is the decoded positional argument list:
//
//	(sys_period, history_table, mitigate_conflicts = false,
//	 ignore_unchanged = false, include_current = false,
//	 migration_mode = false, increment_version = false,
//	 version_column = "version")
type Options struct {
	SysPeriod         string
	HistoryTable      string
	MitigateConflicts bool
	IgnoreUnchanged   bool
	IncludeCurrent    bool
	MigrationMode     bool
	IncrementVersion  bool
	VersionColumn     string
}

// ParseArgs decodes the positional trigger arguments, applying defaults
// for the optional tail. Argument count outside [2, 8] is a protocol
// violation.
func ParseArgs(args []string) (Options, error) {
	if len(args) < minArgs || len(args) > maxArgs {
		return Options{}, protocolf("expected between %d and %d arguments, got %d", minArgs, maxArgs, len(args))
	}

	opts := Options{
		SysPeriod:     args[0],
		HistoryTable:  args[1],
		VersionColumn: DefaultVersionColumn,
	}
	if opts.SysPeriod == "" {
		return Options{}, protocolf("system period attribute name (argument 1) is empty")
	}
	if opts.HistoryTable == "" {
		return Options{}, protocolf("history table name (argument 2) is empty")
	}

	bools := []struct {
		pos  int
		dest *bool
	}{
		{2, &opts.MitigateConflicts},
		{3, &opts.IgnoreUnchanged},
		{4, &opts.IncludeCurrent},
		{5, &opts.MigrationMode},
		{6, &opts.IncrementVersion},
	}
	for _, b := range bools {
		if len(args) <= b.pos {
			break
		}
		v, err := parseBool(args[b.pos])
		if err != nil {
			return Options{}, protocolf("argument %d: %v", b.pos+1, err)
		}
		*b.dest = v
	}

	if len(args) > 7 && args[7] != "" {
		opts.VersionColumn = args[7]
	}
	return opts, nil
}

// History resolves the history-table argument against a default schema.
func (o Options) History(defaultSchema string) (catalog.Relation, error) {
	return catalog.ParseRelation(o.HistoryTable, defaultSchema)
}

// excluded returns the attributes removed from the common-column
// projection: the validity attribute and, when version incrementing is
// on, the version counter.
func (o Options) excluded() []string {
	if o.IncrementVersion {
		return []string{o.SysPeriod, o.VersionColumn}
	}
	return []string{o.SysPeriod}
}

// parseBool accepts the boolean spellings PostgreSQL accepts in trigger
// arguments.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "on", "yes", "y":
		return true, nil
	case "f", "false", "0", "off", "no", "n", "":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}
