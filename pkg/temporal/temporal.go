// Package temporal persists versioning configuration. Each row of the
// pgchrono_versioning table declares one system-versioned table and the
// option set its trigger is generated with; the store is the source of
// truth the listener and installer regenerate from.
package temporal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgchrono/pgchrono/pkg/catalog"
	"github.com/pgchrono/pgchrono/pkg/generator"
)

// TableName is the configuration store relation.
const TableName = "pgchrono_versioning"

// TableDDL creates the configuration store. Idempotent; applied by the
// installer's Setup.
const TableDDL = `CREATE TABLE IF NOT EXISTS pgchrono_versioning (
    table_name                         text NOT NULL,
    table_schema                       text NOT NULL,
    history_table                      text NOT NULL,
    history_table_schema               text NOT NULL,
    sys_period                         text NOT NULL DEFAULT 'sys_period',
    ignore_unchanged_values            boolean NOT NULL DEFAULT false,
    include_current_version_in_history boolean NOT NULL DEFAULT false,
    mitigate_update_conflicts          boolean NOT NULL DEFAULT false,
    enable_migration_mode              boolean NOT NULL DEFAULT false,
    increment_version                  boolean NOT NULL DEFAULT false,
    version_column_name                text NOT NULL DEFAULT 'version',
    PRIMARY KEY (table_name, table_schema)
);`

// Config is one stored versioning declaration.
type Config struct {
	TableName          string
	TableSchema        string
	HistoryTable       string
	HistoryTableSchema string
	SysPeriod          string
	IgnoreUnchanged    bool
	IncludeCurrent     bool
	MitigateConflicts  bool
	MigrationMode      bool
	IncrementVersion   bool
	VersionColumnName  string
}

// Table returns the versioned table's relation.
func (c Config) Table() catalog.Relation {
	return catalog.Relation{Schema: c.TableSchema, Name: c.TableName}
}

// History returns the history table's relation.
func (c Config) History() catalog.Relation {
	return catalog.Relation{Schema: c.HistoryTableSchema, Name: c.HistoryTable}
}

// Request converts the stored configuration into a generation request.
func (c Config) Request() generator.Request {
	return generator.Request{
		Table:             c.Table().Quoted(),
		HistoryTable:      c.History().Quoted(),
		SysPeriod:         c.SysPeriod,
		IgnoreUnchanged:   c.IgnoreUnchanged,
		IncludeCurrent:    c.IncludeCurrent,
		MitigateConflicts: c.MitigateConflicts,
		MigrationMode:     c.MigrationMode,
		IncrementVersion:  c.IncrementVersion,
		VersionColumn:     c.VersionColumnName,
	}
}

const configColumns = `table_name, table_schema, history_table, history_table_schema,
       sys_period, ignore_unchanged_values, include_current_version_in_history,
       mitigate_update_conflicts, enable_migration_mode, increment_version,
       version_column_name`

// Store reads and writes versioning configuration through an Execer.
type Store struct {
	db catalog.Execer
}

// NewStore returns a Store over db.
func NewStore(db catalog.Execer) *Store {
	return &Store{db: db}
}

// Get returns the configuration for a table, or nil when none is
// stored.
func (s *Store) Get(ctx context.Context, rel catalog.Relation) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+configColumns+`
  FROM pgchrono_versioning
 WHERE table_name = $1 AND table_schema = $2`, rel.Name, rel.Schema)

	c, err := scanConfig(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading versioning config for %s: %w", rel, err)
	}
	return &c, nil
}

// Put inserts or replaces the configuration for cfg's table.
func (s *Store) Put(ctx context.Context, cfg Config) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pgchrono_versioning (`+configColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (table_name, table_schema) DO UPDATE SET
    history_table                      = EXCLUDED.history_table,
    history_table_schema               = EXCLUDED.history_table_schema,
    sys_period                         = EXCLUDED.sys_period,
    ignore_unchanged_values            = EXCLUDED.ignore_unchanged_values,
    include_current_version_in_history = EXCLUDED.include_current_version_in_history,
    mitigate_update_conflicts          = EXCLUDED.mitigate_update_conflicts,
    enable_migration_mode              = EXCLUDED.enable_migration_mode,
    increment_version                  = EXCLUDED.increment_version,
    version_column_name                = EXCLUDED.version_column_name`,
		cfg.TableName, cfg.TableSchema, cfg.HistoryTable, cfg.HistoryTableSchema,
		cfg.SysPeriod, cfg.IgnoreUnchanged, cfg.IncludeCurrent,
		cfg.MitigateConflicts, cfg.MigrationMode, cfg.IncrementVersion,
		cfg.VersionColumnName)
	if err != nil {
		return fmt.Errorf("storing versioning config for %s: %w", cfg.Table(), err)
	}
	return nil
}

// List returns every stored configuration, ordered by schema then table.
func (s *Store) List(ctx context.Context) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+`
  FROM pgchrono_versioning
 ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing versioning configs: %w", err)
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		c, err := scanConfig(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("listing versioning configs: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing versioning configs: %w", err)
	}
	return out, nil
}

// Delete removes the configuration for a table. Returns false when no
// row existed.
func (s *Store) Delete(ctx context.Context, rel catalog.Relation) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pgchrono_versioning
 WHERE table_name = $1 AND table_schema = $2`, rel.Name, rel.Schema)
	if err != nil {
		return false, fmt.Errorf("deleting versioning config for %s: %w", rel, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanConfig(scan func(...any) error) (Config, error) {
	var c Config
	err := scan(&c.TableName, &c.TableSchema, &c.HistoryTable, &c.HistoryTableSchema,
		&c.SysPeriod, &c.IgnoreUnchanged, &c.IncludeCurrent,
		&c.MitigateConflicts, &c.MigrationMode, &c.IncrementVersion,
		&c.VersionColumnName)
	return c, err
}
