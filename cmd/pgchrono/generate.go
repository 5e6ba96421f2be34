package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgchrono/pgchrono/internal/cli"
	"github.com/pgchrono/pgchrono/pkg/generator"
)

var (
	generateDB      string
	generateInstall bool
	generateFlags   versioningFlags
)

var generateCmd = &cobra.Command{
	Use:   "generate <table> <history-table>",
	Short: "Print the generated trigger SQL for a table",
	Long: `Generate the specialized trigger function and binding DDL for a table
and print it. With --install the DDL is also applied. Unlike adopt, no
configuration row is stored.`,
	Example: `  # Print the trigger SQL
  pgchrono generate accounts accounts_history --db postgres://localhost/mydb

  # Generate and apply
  pgchrono generate accounts accounts_history --install`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(generateDB)
		if err != nil {
			return err
		}
		return runGenerate(dsn, args[0], args[1], generateFlags, generateInstall)
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateDB, "db", "", "database URL")
	f.BoolVar(&generateInstall, "install", false, "apply the generated DDL after printing")
	addVersioningFlags(f, &generateFlags)
}

func runGenerate(dsn, table, history string, flags versioningFlags, install bool) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	a, err := generator.Build(ctx, db, flags.request(table, history))
	if err != nil {
		if generator.IsValidationErr(err) {
			return cli.ValidationError("invalid versioning request", err)
		}
		return cli.GeneralError("generating trigger", err)
	}

	fmt.Println(a.SQL())

	if install {
		if err := generator.ExecAll(ctx, db, a.Statements); err != nil {
			return cli.GeneralError("installing trigger", err)
		}
		if !quiet {
			fmt.Printf("-- Installed %s\n", a.FunctionName)
		}
	}
	return nil
}
