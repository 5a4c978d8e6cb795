// Package storage contains the backend-agnostic contract of the relational
// store the warehouse is loaded into.
//
// Concrete backends (postgres, sqlite, mysql, mssql) live in subpackages and
// register a Factory from their init functions; callers obtain a Repository
// through New and never import a driver directly. Import
// taxietl/internal/storage/all to enable every built-in backend.
package storage

import (
	"context"
	"strings"
)

// Dialect names understood by New and by the schema package.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectMSSQL    = "mssql"
)

// DefaultManagedTables lists the warehouse tables dropped by Reset, in an
// order that satisfies foreign keys (fact first, then dimensions).
var DefaultManagedTables = []string{"trip", "time_dim", "zone"}

// Repository is the relational store used by the warehouse loaders.
//
// Every write method runs in its own transaction: either all rows of the call
// are committed or none are.
type Repository interface {
	// Exec runs a schema script (one or more statements). Failures wrap
	// ErrSchema.
	Exec(ctx context.Context, script string) error

	// BulkAppend inserts rows without conflict handling. Rows are aligned to
	// columns. Constraint failures wrap ErrConstraint.
	BulkAppend(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// InsertIgnore inserts each row unless a row with the same key already
	// exists; existing rows are left untouched. It returns the number of rows
	// actually inserted.
	InsertIgnore(ctx context.Context, table string, columns []string, rows [][]any, key []string) (int64, error)

	// Query runs a read query and materializes the result.
	Query(ctx context.Context, sql string) (*Table, error)

	// Reset drops the managed tables (and, where the dialect supports it,
	// everything depending on them). Missing tables are not an error.
	Reset(ctx context.Context) error

	// Dialect reports the backend dialect, e.g. "postgres".
	Dialect() string

	Close()
}

// Table is a materialized query result.
type Table struct {
	// Columns are the result column names in select order.
	Columns []string

	// Types are the database type names reported by the driver, upper-cased
	// (e.g. "DATE", "TIMESTAMP"). An entry is empty when the driver does not
	// know the type.
	Types []string

	// Rows hold driver values aligned to Columns.
	Rows [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column (case-insensitive) or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, column) {
			return i
		}
	}
	return -1
}

// Config selects and configures a backend.
type Config struct {
	// Kind selects the backend ("postgres", "sqlite", "mysql", "mssql").
	Kind string

	// DSN is the backend connection string.
	DSN string

	// ManagedTables overrides DefaultManagedTables for Reset.
	ManagedTables []string
}

// Tables returns the managed tables, falling back to DefaultManagedTables.
func (c Config) Tables() []string {
	if len(c.ManagedTables) > 0 {
		return c.ManagedTables
	}
	return DefaultManagedTables
}
