// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver. SQLite has no bulk-load API
// like Postgres COPY; inserts run as prepared statements inside one
// transaction, which keeps moderate volumes fast enough.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"taxietl/internal/storage"
	"taxietl/internal/storage/sqlstore"
)

// timestampLayout is how time.Time values are stored; SQLite's date and time
// functions understand it directly.
const timestampLayout = "2006-01-02 15:04:05"

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Repository
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: SQLite allows a single writer, and every ":memory:"
	// connection would otherwise be a separate database.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")

	closeFn := func() { db.Close() }
	return &Repository{Repository: sqlstore.New(db, Dialect{}, cfg.ManagedTables)}, closeFn, nil
}

// Reset drops views that read from the managed tables before dropping the
// tables themselves; SQLite has no DROP ... CASCADE.
func (r *Repository) Reset(ctx context.Context) error {
	views, err := r.Query(ctx, "SELECT name, sql FROM sqlite_master WHERE type = 'view'")
	if err != nil {
		return fmt.Errorf("sqlite: list views: %w", err)
	}
	var stmts []string
	for _, row := range views.Rows {
		name, _ := row[0].(string)
		body, _ := row[1].(string)
		if referencesAny(body, r.Tables()) {
			stmts = append(stmts, "DROP VIEW IF EXISTS "+Dialect{}.Quote(name))
		}
	}
	if len(stmts) > 0 {
		if err := r.Exec(ctx, strings.Join(stmts, ";\n")); err != nil {
			return fmt.Errorf("sqlite: drop dependent views: %w", err)
		}
	}
	return r.Repository.Reset(ctx)
}

func referencesAny(sqlText string, tables []string) bool {
	for _, t := range tables {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`)
		if re.MatchString(sqlText) {
			return true
		}
	}
	return false
}

// Dialect is the SQLite flavour of sqlstore.Dialect.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return storage.DialectSQLite }

// Quote quotes an identifier with double quotes.
func (Dialect) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func (Dialect) Placeholder(int) string { return "?" }

// InsertIgnoreSQL uses the upsert clause with DO NOTHING, which needs a
// unique index on key.
func (d Dialect) InsertIgnoreSQL(table string, columns, key []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		d.Quote(table), sqlstore.QuoteAll(d, columns), ph, sqlstore.QuoteAll(d, key))
}

func (d Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// Arg stores calendar dates as ISO text and timestamps without zone.
func (Dialect) Arg(v any) any {
	switch t := v.(type) {
	case civil.Date:
		return t.String()
	case time.Time:
		return t.Format(timestampLayout)
	default:
		return v
	}
}

// IsConstraint reports SQLITE_CONSTRAINT and its extended codes.
func (Dialect) IsConstraint(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
