// Package sqlite implements a SQLite-backed storage.Repository.
package sqlite

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:warehouse.db?_pragma=foreign_keys(1)"
	//   ":memory:"
	DSN string

	// ManagedTables are dropped by Reset, in order.
	ManagedTables []string
}
