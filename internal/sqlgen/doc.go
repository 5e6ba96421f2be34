// Package sqlgen compiles a resolved versioning specification into a
// specialized PL/pgSQL trigger function plus the DDL that installs it.
//
// The generated function encodes the same row-versioning protocol the
// dynamic engine interprets (pkg/engine), with every catalog lookup
// resolved ahead of time: the common-column projection, the validity
// attribute, and the option flags are embedded as literals. The trade is
// explicit; a schema change invalidates the function until the listener
// regenerates it.
//
// The package is split the way the repository splits all code
// generation: spec resolution (spec.go), per-rule statement blocks
// (versioning_blocks.go), function assembly (versioning_render.go), and
// the public compile entry point (compile.go).
package sqlgen
