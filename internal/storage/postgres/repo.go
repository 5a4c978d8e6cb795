// Package postgres implements a Postgres repository using pgx v5. Bulk appends
// use the COPY protocol; conflict-ignoring inserts are sent as one batch.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxietl/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN           string   // connection string for pgxpool
	ManagedTables []string // dropped by Reset, in order
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool   *pgxpool.Pool
	tables []string
	types  *pgtype.Map
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	tables := cfg.ManagedTables
	if len(tables) == 0 {
		tables = storage.DefaultManagedTables
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, tables: tables, types: pgtype.NewMap()}, closeFn, nil
}

// Dialect implements storage.Repository.
func (r *Repository) Dialect() string { return storage.DialectPostgres }

// Exec sends the whole script in one transaction. Without arguments pgx uses
// the simple protocol, so multi-statement scripts and dollar-quoted bodies
// work unchanged.
func (r *Repository) Exec(ctx context.Context, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, script)
		return err
	})
	if err != nil {
		return storage.SchemaErr(fmt.Errorf("postgres: exec: %w", describe(err)))
	}
	return nil
}

// BulkAppend copies rows into table with COPY FROM inside a transaction.
func (r *Repository) BulkAppend(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: bulk append %s: columns must not be empty", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	src := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("postgres: bulk append %s: row %d: length %d != columns length %d", table, i, len(row), len(columns))
		}
		src[i] = args(row)
	}

	var copied int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(src))
		copied = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", table, classify(err))
	}
	return copied, nil
}

// InsertIgnore queues one INSERT ... ON CONFLICT DO NOTHING per row and
// sums the affected counts.
func (r *Repository) InsertIgnore(ctx context.Context, table string, columns []string, rows [][]any, key []string) (int64, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("postgres: insert ignore %s: key must not be empty", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	ph := make([]string, len(columns))
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		pgIdent(table), strings.Join(mapIdent(columns), ", "), strings.Join(ph, ", "),
		strings.Join(mapIdent(key), ", "))

	batch := &pgx.Batch{}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("postgres: insert ignore %s: row %d: length %d != columns length %d", table, i, len(row), len(columns))
		}
		batch.Queue(stmt, args(row)...)
	}

	var inserted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("row %d: %w", i, err)
			}
			inserted += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: insert ignore %s: %w", table, classify(err))
	}
	return inserted, nil
}

// Query runs query and returns all rows with their Postgres type names.
func (r *Repository) Query(ctx context.Context, query string) (*storage.Table, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	out := &storage.Table{Columns: make([]string, len(fds)), Types: make([]string, len(fds))}
	for i, fd := range fds {
		out.Columns[i] = fd.Name
		if t, ok := r.types.TypeForOID(fd.DataTypeOID); ok {
			out.Types[i] = strings.ToUpper(t.Name)
		}
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: values: %w", err)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return out, nil
}

// Reset drops the managed tables with CASCADE, which also removes the views
// built on them.
func (r *Repository) Reset(ctx context.Context) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, t := range r.tables {
			if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(t)+" CASCADE"); err != nil {
				return fmt.Errorf("postgres: drop %s: %w", t, err)
			}
		}
		return nil
	})
}

// args maps calendar dates to UTC midnight; pgx encodes time.Time into DATE.
func args(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if d, ok := v.(civil.Date); ok {
			out[i] = d.In(time.UTC)
			continue
		}
		out[i] = v
	}
	return out
}

// classify marks integrity violations (SQLSTATE class 23) as ErrConstraint.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return storage.ConstraintErr(describe(err))
	}
	return err
}

// describe folds the server's detail line into the message.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s)", err, pgErr.Detail)
	}
	return err
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
