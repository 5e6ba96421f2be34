// Package pgchrono provides system-versioned (temporal) tables for
// PostgreSQL: every write to a versioned table archives the prior row
// image into a paired history table together with the interval during
// which that version was current.
//
// # How versioning works
//
// A versioned table carries a validity column of type tstzrange
// (sys_period by default). The current version of a row holds an
// open-ended interval ["since", infinity); each archived version in the
// history table holds the closed interval during which it was current.
// Consecutive versions are contiguous: the upper bound of one is the
// lower bound of the next.
//
// # Generated triggers and the dynamic engine
//
// The primary mechanism is a specialized PL/pgSQL trigger compiled per
// table by pkg/generator: the column projection and option flags are
// baked in as literals, so the row path does no introspection. After a
// schema migration, pkg/listener regenerates the trigger from the
// stored configuration.
//
// The dynamic counterpart in pkg/engine interprets the same protocol in
// Go, introspecting the schema on every invocation. It is slower but
// never stale, and it is the executable reference the generated
// triggers are tested against.
//
// # Basic usage
//
//	err := pgchrono.Setup(ctx, db)
//	err = pgchrono.Adopt(ctx, db, pgchrono.Config{
//		TableName:    "accounts",
//		TableSchema:  "public",
//		HistoryTable: "accounts_history",
//		HistoryTableSchema: "public",
//		SysPeriod:    "sys_period",
//	})
//
// After a schema migration:
//
//	err := pgchrono.Sync(ctx, db)
//
// # Time travel
//
// Querying the state as of a past moment is plain SQL:
//
//	SELECT * FROM accounts_history WHERE sys_period @> $1::timestamptz
//
// For deterministic timestamps in tests, set the session override:
//
//	SELECT set_system_time('2020-01-01 00:00:00+00');
package pgchrono

import (
	"context"
	"fmt"

	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/generator"
	"github.com/pgchrono/pgchrono/pkg/installer"
	"github.com/pgchrono/pgchrono/pkg/temporal"
)

// Config is an alias for the stored versioning configuration.
type Config = temporal.Config

// Request is an alias for a trigger generation request.
type Request = generator.Request

// Setup installs the base objects: the configuration store table,
// pgchrono_system_time(), and set_system_time(). Idempotent.
func Setup(ctx context.Context, db catalog.Execer) error {
	return installer.New(db, nil).Setup(ctx)
}

// Adopt stores the versioning configuration for a table and installs
// its generated trigger. The trigger is validated and installed first;
// a rejected configuration leaves nothing behind.
func Adopt(ctx context.Context, db catalog.Execer, cfg Config) error {
	if err := generator.Install(ctx, db, cfg.Request()); err != nil {
		return err
	}
	if err := temporal.NewStore(db).Put(ctx, cfg); err != nil {
		return fmt.Errorf("storing configuration for %s: %w", cfg.Table(), err)
	}
	return nil
}

// Abandon removes a table's versioning configuration. The generated
// trigger is dropped on the next Sync. Returns false when the table had
// no configuration.
func Abandon(ctx context.Context, db catalog.Execer, rel catalog.Relation) (bool, error) {
	return temporal.NewStore(db).Delete(ctx, rel)
}

// Sync regenerates every configured trigger and drops orphaned
// versioning functions. Run after schema migrations.
func Sync(ctx context.Context, db catalog.Execer) error {
	return installer.New(db, nil).SyncAll(ctx, installer.Options{})
}

// Generate returns the trigger DDL for a request without executing it.
func Generate(ctx context.Context, db catalog.Execer, req Request) (string, error) {
	return generator.Generate(ctx, db, req)
}
