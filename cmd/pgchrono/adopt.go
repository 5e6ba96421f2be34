package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pgchrono/pgchrono/internal/cli"
	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/generator"
	"github.com/pgchrono/pgchrono/pkg/temporal"
)

// versioningFlags are the option flags shared by adopt and generate.
type versioningFlags struct {
	sysPeriod         string
	ignoreUnchanged   bool
	includeCurrent    bool
	mitigateConflicts bool
	migrationMode     bool
	incrementVersion  bool
	versionColumn     string
}

func addVersioningFlags(f *pflag.FlagSet, o *versioningFlags) {
	f.StringVar(&o.sysPeriod, "sys-period", "", "validity column name (default from config, then sys_period)")
	f.BoolVar(&o.ignoreUnchanged, "ignore-unchanged", false, "skip archiving when UPDATE changes nothing")
	f.BoolVar(&o.includeCurrent, "include-current", false, "mirror the current version into history")
	f.BoolVar(&o.mitigateConflicts, "mitigate-conflicts", false, "nudge the effective time forward on ordering conflicts")
	f.BoolVar(&o.migrationMode, "migration-mode", false, "backfill history rows for pre-adoption data")
	f.BoolVar(&o.incrementVersion, "increment-version", false, "maintain an integer version counter")
	f.StringVar(&o.versionColumn, "version-column", "", "version counter column name (default from config, then version)")
}

func (o versioningFlags) request(table, history string) generator.Request {
	return generator.Request{
		Table:             table,
		HistoryTable:      history,
		SysPeriod:         resolveString(o.sysPeriod, cfg.Defaults.SysPeriod),
		IgnoreUnchanged:   o.ignoreUnchanged,
		IncludeCurrent:    o.includeCurrent,
		MitigateConflicts: o.mitigateConflicts,
		MigrationMode:     o.migrationMode,
		IncrementVersion:  o.incrementVersion,
		VersionColumn:     resolveString(o.versionColumn, cfg.Defaults.VersionColumn),
	}
}

var (
	adoptDB    string
	adoptFlags versioningFlags
)

var adoptCmd = &cobra.Command{
	Use:   "adopt <table> <history-table>",
	Short: "Register a table for versioning and install its trigger",
	Long: `Register a table for versioning: store its configuration and install
the generated trigger. Both identifiers may be schema-qualified; bare
names resolve against the connection's current schema.`,
	Example: `  # Version public.accounts into public.accounts_history
  pgchrono adopt accounts accounts_history --db postgres://localhost/mydb

  # With a version counter and unchanged-row suppression
  pgchrono adopt accounts accounts_history --increment-version --ignore-unchanged`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(adoptDB)
		if err != nil {
			return err
		}
		return runAdopt(dsn, args[0], args[1], adoptFlags)
	},
}

func init() {
	f := adoptCmd.Flags()
	f.StringVar(&adoptDB, "db", "", "database URL")
	addVersioningFlags(f, &adoptFlags)
}

func runAdopt(dsn, table, history string, flags versioningFlags) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	req := flags.request(table, history)

	// Validate and install before persisting, so a bad request leaves
	// no configuration behind.
	if err := generator.Install(ctx, db, req); err != nil {
		if generator.IsValidationErr(err) {
			return cli.ValidationError("invalid versioning request", err)
		}
		return cli.GeneralError("installing trigger", err)
	}

	cat := catalog.New(db)
	schema, err := cat.CurrentSchema(ctx)
	if err != nil {
		return cli.GeneralError("resolving current schema", err)
	}
	tableRel, err := catalog.ParseRelation(table, schema)
	if err != nil {
		return cli.ValidationError("table", err)
	}
	historyRel, err := catalog.ParseRelation(history, tableRel.Schema)
	if err != nil {
		return cli.ValidationError("history table", err)
	}

	store := temporal.NewStore(db)
	err = store.Put(ctx, temporal.Config{
		TableName:          tableRel.Name,
		TableSchema:        tableRel.Schema,
		HistoryTable:       historyRel.Name,
		HistoryTableSchema: historyRel.Schema,
		SysPeriod:          req.SysPeriod,
		IgnoreUnchanged:    req.IgnoreUnchanged,
		IncludeCurrent:     req.IncludeCurrent,
		MitigateConflicts:  req.MitigateConflicts,
		MigrationMode:      req.MigrationMode,
		IncrementVersion:   req.IncrementVersion,
		VersionColumnName:  req.VersionColumn,
	})
	if err != nil {
		return cli.GeneralError("storing configuration", err)
	}

	if !quiet {
		fmt.Printf("Adopted %s -> %s\n", tableRel, historyRel)
	}
	return nil
}
