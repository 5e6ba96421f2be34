package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgchrono/pgchrono/internal/cli"
	"github.com/pgchrono/pgchrono/pkg/installer"
)

var setupDB string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install the base database objects",
	Long: `Install the configuration store table and the system-time functions.

Idempotent: safe to run on every deployment.`,
	Example: `  # Install base objects
  pgchrono setup --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(setupDB)
		if err != nil {
			return err
		}
		return runSetup(dsn)
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupDB, "db", "", "database URL")
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, cli.DBConnectError("connecting to database", err)
	}
	return db, nil
}

func runSetup(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	inst := installer.New(db, slog.Default())
	if err := inst.Setup(context.Background()); err != nil {
		return cli.GeneralError("setup failed", err)
	}

	if !quiet {
		fmt.Println("Base objects installed.")
	}
	return nil
}
