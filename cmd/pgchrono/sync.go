package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgchrono/pgchrono/internal/cli"
	"github.com/pgchrono/pgchrono/pkg/installer"
)

var (
	syncDB     string
	syncDryRun bool
	syncForce  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Regenerate every configured trigger",
	Long: `Regenerate and reinstall the trigger for every stored configuration,
and drop versioning functions whose configuration row is gone.

Run after schema migrations to bring generated triggers back in line
with the tables they version.`,
	Example: `  # Regenerate all triggers
  pgchrono sync --db postgres://localhost/mydb

  # Preview the SQL without applying
  pgchrono sync --db postgres://localhost/mydb --dry-run

  # Skip configurations that fail validation instead of aborting
  pgchrono sync --db postgres://localhost/mydb --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun := resolveBool(syncDryRun, cfg.Sync.DryRun)
		force := resolveBool(syncForce, cfg.Sync.Force)

		dsn, err := resolveDSN(syncDB)
		if err != nil {
			return err
		}
		return runSync(dsn, dryRun, force)
	},
}

func init() {
	f := syncCmd.Flags()
	f.StringVar(&syncDB, "db", "", "database URL")
	f.BoolVar(&syncDryRun, "dry-run", false, "output SQL without applying")
	f.BoolVar(&syncForce, "force", false, "skip invalid configurations instead of aborting")
}

func runSync(dsn string, dryRun, force bool) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	opts := installer.Options{Force: force}
	if dryRun {
		opts.DryRun = os.Stdout
		if !quiet {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
			fmt.Fprintln(os.Stderr, "")
		}
	} else if !quiet {
		fmt.Println("Synchronizing versioning triggers...")
	}

	inst := installer.New(db, slog.Default())
	if err := inst.SyncAll(context.Background(), opts); err != nil {
		return cli.GeneralError("sync failed", err)
	}

	if !dryRun && !quiet {
		fmt.Println("Triggers synchronized.")
	}
	return nil
}
