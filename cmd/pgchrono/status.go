package main

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgchrono/pgchrono/internal/cli"
	"github.com/pgchrono/pgchrono/pkg/installer"
)

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installation status",
	Long:  `Show whether the base objects are installed and, per configured table, whether its generated trigger is in place.`,
	Example: `  # Check status
  pgchrono status --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(statusDB)
		if err != nil {
			return err
		}
		return runStatus(dsn)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "database URL")
}

func runStatus(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	inst := installer.New(db, slog.Default())
	s, err := inst.Status(context.Background())
	if err != nil {
		return cli.GeneralError("getting status", err)
	}

	if s.BaseInstalled {
		fmt.Println("Base objects:  installed")
	} else {
		fmt.Println("Base objects:  missing")
		fmt.Println("\nRun 'pgchrono setup' to install them.")
		return nil
	}

	if len(s.Tables) == 0 {
		fmt.Println("Configured:    no tables")
		fmt.Println("\nRun 'pgchrono adopt <table> <history-table>' to version a table.")
		return nil
	}

	fmt.Printf("Configured:    %d table(s)\n\n", len(s.Tables))
	for _, t := range s.Tables {
		state := "ok"
		switch {
		case !t.FunctionExists && !t.TriggerExists:
			state = "missing (run 'pgchrono sync')"
		case !t.FunctionExists:
			state = "function missing (run 'pgchrono sync')"
		case !t.TriggerExists:
			state = "trigger missing (run 'pgchrono sync')"
		}
		fmt.Printf("  %-40s %s\n", t.Table.String(), state)
	}
	return nil
}
