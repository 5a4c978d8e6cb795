// Package sqlstore implements storage.Repository on top of database/sql for
// the backends whose drivers plug into it (sqlite, mysql, mssql). The SQL
// differences between them are isolated behind Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taxietl/internal/storage"
)

// Dialect captures what differs between database/sql backends.
type Dialect interface {
	// Name is the storage kind, e.g. "sqlite".
	Name() string

	// Quote quotes a single identifier.
	Quote(ident string) string

	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// InsertIgnoreSQL returns a single-row insert that is a no-op when a row
	// with the same key exists. Its arguments are the row values in column
	// order.
	InsertIgnoreSQL(table string, columns, key []string) string

	// DropTableSQL drops table if it exists.
	DropTableSQL(table string) string

	// Arg converts an application value into one the driver accepts.
	Arg(v any) any

	// IsConstraint reports whether err is a constraint violation.
	IsConstraint(err error) bool
}

// BulkCopier is implemented by dialects with a driver-level bulk copy
// statement. The statement is executed once per row and then once with no
// arguments to flush.
type BulkCopier interface {
	BulkCopySQL(table string, columns []string) string
}

// Repository is a database/sql backed storage.Repository (without Close; the
// backend adapters own the *sql.DB lifecycle).
type Repository struct {
	db      *sql.DB
	dialect Dialect
	tables  []string
}

// New returns a Repository over db. tables are the managed tables dropped by
// Reset, in drop order.
func New(db *sql.DB, d Dialect, tables []string) *Repository {
	if len(tables) == 0 {
		tables = storage.DefaultManagedTables
	}
	return &Repository{db: db, dialect: d, tables: tables}
}

// DB exposes the underlying handle.
func (r *Repository) DB() *sql.DB { return r.db }

// Dialect implements storage.Repository.
func (r *Repository) Dialect() string { return r.dialect.Name() }

// Exec runs every statement of script in one transaction.
func (r *Repository) Exec(ctx context.Context, script string) error {
	stmts := SplitStatements(script)
	if len(stmts) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("%s: exec %q: %w", r.dialect.Name(), abbreviate(s), err)
			}
		}
		return nil
	})
	return storage.SchemaErr(err)
}

// BulkAppend inserts rows in one transaction, either through the dialect's
// bulk copy statement or a prepared INSERT.
func (r *Repository) BulkAppend(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: bulk append %s: columns must not be empty", r.dialect.Name(), table)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	copier, isCopier := r.dialect.(BulkCopier)
	stmtSQL := r.insertSQL(table, columns)
	if isCopier {
		stmtSQL = copier.BulkCopySQL(table, columns)
	}

	var inserted int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, stmtSQL)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d: length %d != columns length %d", i, len(row), len(columns))
			}
			if _, err := stmt.ExecContext(ctx, r.args(row)...); err != nil {
				return r.classify(fmt.Errorf("insert row %d: %w", i, err))
			}
			if !isCopier {
				inserted++
			}
		}
		if isCopier {
			res, err := stmt.ExecContext(ctx)
			if err != nil {
				return r.classify(fmt.Errorf("bulk finalize: %w", err))
			}
			if inserted, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: bulk append %s: %w", r.dialect.Name(), table, err)
	}
	return inserted, nil
}

// InsertIgnore inserts rows one statement each, counting rows the store
// actually accepted.
func (r *Repository) InsertIgnore(ctx context.Context, table string, columns []string, rows [][]any, key []string) (int64, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("%s: insert ignore %s: key must not be empty", r.dialect.Name(), table)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.dialect.InsertIgnoreSQL(table, columns, key))
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d: length %d != columns length %d", i, len(row), len(columns))
			}
			res, err := stmt.ExecContext(ctx, r.args(row)...)
			if err != nil {
				return r.classify(fmt.Errorf("insert row %d: %w", i, err))
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: insert ignore %s: %w", r.dialect.Name(), table, err)
	}
	return inserted, nil
}

// Query runs query and materializes every row. []byte values are returned as
// strings.
func (r *Repository) Query(ctx context.Context, query string) (*storage.Table, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", r.dialect.Name(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: columns: %w", r.dialect.Name(), err)
	}
	out := &storage.Table{Columns: cols, Types: make([]string, len(cols))}
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			out.Types[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", r.dialect.Name(), err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", r.dialect.Name(), err)
	}
	return out, nil
}

// Reset drops the managed tables in one transaction.
func (r *Repository) Reset(ctx context.Context) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range r.tables {
			if _, err := tx.ExecContext(ctx, r.dialect.DropTableSQL(t)); err != nil {
				return fmt.Errorf("%s: drop %s: %w", r.dialect.Name(), t, err)
			}
		}
		return nil
	})
}

// Tables returns the managed tables in drop order.
func (r *Repository) Tables() []string { return r.tables }

// inTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", r.classify(err))
	}
	return nil
}

func (r *Repository) insertSQL(table string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range ph {
		ph[i] = r.dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.dialect.Quote(table), QuoteAll(r.dialect, columns), strings.Join(ph, ", "))
}

func (r *Repository) args(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = r.dialect.Arg(v)
	}
	return out
}

func (r *Repository) classify(err error) error {
	if err != nil && r.dialect.IsConstraint(err) {
		return storage.ConstraintErr(err)
	}
	return err
}

// QuoteAll quotes and comma-joins identifiers.
func QuoteAll(d Dialect, idents []string) string {
	q := make([]string, len(idents))
	for i, id := range idents {
		q[i] = d.Quote(id)
	}
	return strings.Join(q, ", ")
}

func abbreviate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}
