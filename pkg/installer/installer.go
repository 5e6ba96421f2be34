// Package installer manages the database-side lifecycle: the base DDL
// (configuration store and system-time functions), bulk regeneration of
// every configured trigger, orphan cleanup, and status reporting.
//
// The installer is idempotent. Setup and SyncAll are safe to run on
// every application startup; unchanged configurations regenerate to
// byte-identical SQL and CREATE OR REPLACE leaves them untouched.
package installer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/generator"
	"github.com/pgchrono/pgchrono/pkg/temporal"
)

// systemTimeDDL defines the effective-time functions generated triggers
// call. pgchrono_system_time() reads the session override set by
// set_system_time() and falls back to the transaction timestamp when it
// is unset or unparseable.
const systemTimeDDL = `CREATE OR REPLACE FUNCTION pgchrono_system_time() RETURNS timestamptz AS $$
DECLARE
    raw text;
BEGIN
    raw := current_setting('pgchrono.system_time', true);
    IF raw IS NULL OR raw = '' THEN
        RETURN CURRENT_TIMESTAMP;
    END IF;
    BEGIN
        RETURN raw::timestamptz;
    EXCEPTION WHEN others THEN
        RETURN CURRENT_TIMESTAMP;
    END;
END;
$$ LANGUAGE plpgsql STABLE;

CREATE OR REPLACE FUNCTION set_system_time(ts text) RETURNS void AS $$
BEGIN
    PERFORM set_config('pgchrono.system_time', COALESCE(ts, ''), false);
END;
$$ LANGUAGE plpgsql VOLATILE;`

// Options controls SyncAll behavior.
type Options struct {
	// DryRun writes the SQL that would be applied to the provided
	// writer instead of executing it.
	DryRun io.Writer

	// Force continues past configurations that fail generation-time
	// validation, logging and skipping them instead of aborting the
	// sync.
	Force bool
}

// Installer applies and maintains the pgchrono objects in one database.
type Installer struct {
	db  catalog.Execer
	log *slog.Logger
}

// New returns an Installer over db. A nil log means slog.Default.
func New(db catalog.Execer, log *slog.Logger) *Installer {
	if log == nil {
		log = slog.Default()
	}
	return &Installer{db: db, log: log}
}

// Setup applies the base DDL: the configuration store table and the
// system-time functions. Idempotent.
func (i *Installer) Setup(ctx context.Context) error {
	for _, stmt := range []string{temporal.TableDDL, systemTimeDDL} {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying base DDL: %w", err)
		}
	}
	i.log.InfoContext(ctx, "base DDL applied")
	return nil
}

// SyncAll regenerates and reinstalls the trigger for every stored
// configuration and drops versioning functions whose configuration row
// is gone. Runs in one transaction when db supports it.
func (i *Installer) SyncAll(ctx context.Context, opts Options) error {
	store := temporal.NewStore(i.db)
	configs, err := store.List(ctx)
	if err != nil {
		return err
	}

	artifacts := make([]generator.Artifacts, 0, len(configs))
	for _, cfg := range configs {
		a, err := generator.Build(ctx, i.db, cfg.Request())
		if err != nil {
			if opts.Force && generator.IsValidationErr(err) {
				i.log.WarnContext(ctx, "skipping invalid configuration",
					"relation", cfg.Table().String(), "error", err.Error())
				continue
			}
			return fmt.Errorf("generating trigger for %s: %w", cfg.Table(), err)
		}
		artifacts = append(artifacts, a)
	}

	if opts.DryRun != nil {
		i.writeDryRun(opts.DryRun, artifacts)
		return nil
	}

	if txer, ok := i.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := i.apply(ctx, tx, artifacts); err != nil {
			return err
		}
		return tx.Commit()
	}
	return i.apply(ctx, i.db, artifacts)
}

func (i *Installer) apply(ctx context.Context, db catalog.Execer, artifacts []generator.Artifacts) error {
	current, err := versioningFunctions(ctx, db)
	if err != nil {
		return err
	}

	for _, a := range artifacts {
		for _, stmt := range a.Statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("installing %s: %w", a.FunctionName, err)
			}
		}
	}

	if err := dropOrphans(ctx, db, current, artifacts); err != nil {
		return err
	}
	i.log.InfoContext(ctx, "sync complete", "triggers", len(artifacts))
	return nil
}

// versioningFunctions returns every *_versioning function in the
// database, schema-qualified, for orphan detection.
func versioningFunctions(ctx context.Context, db catalog.Execer) ([]catalog.Relation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT n.nspname, p.proname
		FROM pg_proc p
		JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE p.proname LIKE '%\_versioning'
		AND n.nspname NOT IN ('pg_catalog', 'information_schema')
	`)
	if err != nil {
		return nil, fmt.Errorf("querying versioning functions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.Relation
	for rows.Next() {
		var fn catalog.Relation
		if err := rows.Scan(&fn.Schema, &fn.Name); err != nil {
			return nil, fmt.Errorf("scanning function name: %w", err)
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

// dropOrphans drops versioning functions not produced by any current
// configuration. CASCADE removes the bound trigger with the function.
func dropOrphans(ctx context.Context, db catalog.Execer, current []catalog.Relation, artifacts []generator.Artifacts) error {
	expected := make(map[catalog.Relation]bool, len(artifacts))
	for _, a := range artifacts {
		expected[a.FunctionName] = true
	}
	for _, fn := range current {
		if expected[fn] {
			continue
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP FUNCTION IF EXISTS %s() CASCADE", fn.Quoted())); err != nil {
			return fmt.Errorf("dropping orphaned function %s: %w", fn, err)
		}
	}
	return nil
}

func (i *Installer) writeDryRun(w io.Writer, artifacts []generator.Artifacts) {
	_, _ = fmt.Fprintf(w, "-- pgchrono sync (dry-run)\n")
	_, _ = fmt.Fprintf(w, "-- Triggers: %d\n\n", len(artifacts))

	_, _ = fmt.Fprintf(w, "-- ============================================================\n")
	_, _ = fmt.Fprintf(w, "-- Base DDL\n")
	_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	_, _ = fmt.Fprintf(w, "%s\n\n%s\n\n", temporal.TableDDL, systemTimeDDL)

	for _, a := range artifacts {
		_, _ = fmt.Fprintf(w, "-- ============================================================\n")
		_, _ = fmt.Fprintf(w, "-- %s\n", a.FunctionName)
		_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
		_, _ = fmt.Fprintf(w, "%s\n\n", a.SQL())
	}
}

// TableStatus reports one configured table's installation state.
type TableStatus struct {
	Table          catalog.Relation
	FunctionExists bool
	TriggerExists  bool
}

// Status is the overall installation state.
type Status struct {
	// BaseInstalled reports whether the configuration store table and
	// pgchrono_system_time() exist.
	BaseInstalled bool

	// Tables holds the per-configuration trigger state, in store
	// listing order.
	Tables []TableStatus
}

// Status reports whether the base DDL is applied and, per stored
// configuration, whether the generated function and trigger exist.
func (i *Installer) Status(ctx context.Context) (*Status, error) {
	var st Status

	err := i.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = $1 AND n.nspname = current_schema()
		) AND EXISTS (
			SELECT 1 FROM pg_proc WHERE proname = 'pgchrono_system_time'
		)
	`, temporal.TableName).Scan(&st.BaseInstalled)
	if err != nil {
		return nil, fmt.Errorf("checking base DDL: %w", err)
	}
	if !st.BaseInstalled {
		return &st, nil
	}

	configs, err := temporal.NewStore(i.db).List(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		ts := TableStatus{Table: cfg.Table()}

		err := i.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM pg_proc p
				JOIN pg_namespace n ON p.pronamespace = n.oid
				WHERE p.proname = $1 AND n.nspname = $2
			)
		`, cfg.TableName+"_versioning", cfg.TableSchema).Scan(&ts.FunctionExists)
		if err != nil {
			return nil, fmt.Errorf("checking function for %s: %w", ts.Table, err)
		}

		err = i.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM pg_trigger t
				JOIN pg_class c ON t.tgrelid = c.oid
				JOIN pg_namespace n ON c.relnamespace = n.oid
				WHERE t.tgname = $1 AND c.relname = $2 AND n.nspname = $3
			)
		`, cfg.TableName+"_versioning_trigger", cfg.TableName, cfg.TableSchema).Scan(&ts.TriggerExists)
		if err != nil {
			return nil, fmt.Errorf("checking trigger for %s: %w", ts.Table, err)
		}

		st.Tables = append(st.Tables, ts)
	}
	return &st, nil
}
