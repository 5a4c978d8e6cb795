// Package mssql implements a Microsoft SQL Server repository on database/sql
// and go-mssqldb. Appends go through the driver's bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"taxietl/internal/storage"
	"taxietl/internal/storage/sqlstore"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN           string
	ManagedTables []string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Repository
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// Dialect is the SQL Server flavour of sqlstore.Dialect.
type Dialect struct{}

var (
	_ sqlstore.Dialect    = Dialect{}
	_ sqlstore.BulkCopier = Dialect{}
)

func (Dialect) Name() string { return storage.DialectMSSQL }

// Quote brackets an identifier.
func (Dialect) Quote(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// InsertIgnoreSQL guards a single-row INSERT ... SELECT with NOT EXISTS on
// the key columns, reusing the value placeholders in the predicate.
func (d Dialect) InsertIgnoreSQL(table string, columns, key []string) string {
	pos := make(map[string]int, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		pos[strings.ToLower(c)] = i + 1
		ph[i] = d.Placeholder(i + 1)
	}
	conds := make([]string, 0, len(key))
	for _, k := range key {
		conds = append(conds, fmt.Sprintf("%s = %s", d.Quote(k), d.Placeholder(pos[strings.ToLower(k)])))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WITH (UPDLOCK, HOLDLOCK) WHERE %s)",
		d.Quote(table), sqlstore.QuoteAll(d, columns), strings.Join(ph, ", "),
		d.Quote(table), strings.Join(conds, " AND "))
}

func (d Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// BulkCopySQL returns the driver's bulk copy pseudo-statement.
func (Dialect) BulkCopySQL(table string, columns []string) string {
	return mssql.CopyIn(table, mssql.BulkOptions{CheckConstraints: true}, columns...)
}

// Arg sends calendar dates as UTC midnight; both the RPC path and bulk copy
// accept time.Time for DATE and DATETIME2 columns.
func (Dialect) Arg(v any) any {
	if d, ok := v.(civil.Date); ok {
		return d.In(time.UTC)
	}
	return v
}

// IsConstraint matches null, unique, duplicate key and foreign key violations.
func (Dialect) IsConstraint(err error) bool {
	var me mssql.Error
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case 515, 547, 2601, 2627:
		return true
	}
	return false
}
