// Package main provides a CLI for managing system-versioned tables in
// PostgreSQL.
//
// The CLI supports:
//   - setup: Install the base objects (configuration store, system-time functions)
//   - adopt: Register a table for versioning and install its trigger
//   - generate: Print the trigger SQL for a table, optionally installing it
//   - sync: Regenerate every configured trigger and drop orphans
//   - status: Check installation state
//
// This tool is typically run during development and deployment to keep
// generated versioning triggers synchronized with table schemas.
//
// Usage:
//
//	pgchrono [flags] <command>
//
// Commands that touch the database need --db, PGCHRONO_DATABASE_URL, or
// a database section in pgchrono.yaml.
package main

func main() {
	Execute()
}
