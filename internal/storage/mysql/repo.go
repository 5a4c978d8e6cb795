// Package mysql implements a MySQL-backed storage.Repository on database/sql
// and go-sql-driver/mysql.
//
// MySQL commits DDL implicitly, so a schema script is only atomic per
// statement; row inserts are transactional as on the other backends.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/golang-sql/civil"

	"taxietl/internal/storage"
	"taxietl/internal/storage/sqlstore"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN in go-sql-driver form, e.g. "user:pass@tcp(localhost:3306)/nyc_taxi".
	// parseTime=true is added when absent.
	DSN string

	ManagedTables []string
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Repository
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	mc, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: sqlstore.New(db, Dialect{}, cfg.ManagedTables)}, closeFn, nil
}

// Dialect is the MySQL flavour of sqlstore.Dialect.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return storage.DialectMySQL }

// Quote quotes an identifier with backticks.
func (Dialect) Quote(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func (Dialect) Placeholder(int) string { return "?" }

// InsertIgnoreSQL turns a duplicate key into a no-op update of the first key
// column. Unlike INSERT IGNORE it does not downgrade other errors (not-null,
// foreign key) to warnings, and the affected-row count stays 0 for skipped
// rows.
func (d Dialect) InsertIgnoreSQL(table string, columns, key []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	k := d.Quote(key[0])
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s = %s",
		d.Quote(table), sqlstore.QuoteAll(d, columns), ph, k, k)
}

func (d Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// Arg sends calendar dates as ISO text; the driver handles time.Time.
func (Dialect) Arg(v any) any {
	if d, ok := v.(civil.Date); ok {
		return d.String()
	}
	return v
}

// IsConstraint matches the server errors for null, duplicate, foreign key and
// check violations.
func (Dialect) IsConstraint(err error) bool {
	var me *gomysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case 1048, 1062, 1216, 1217, 1451, 1452, 3819:
		return true
	}
	return false
}
