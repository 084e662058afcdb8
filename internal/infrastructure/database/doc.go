// Package database manages the SQLite connection backing the command
// audit trail.
//
// The schema is a single table applied idempotently at open, so there is
// no migration machinery. WAL mode and a busy timeout are configured via
// connection-string pragmas.
package database
