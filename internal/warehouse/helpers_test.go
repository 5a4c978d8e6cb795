package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taxietl/internal/schema"
	"taxietl/internal/storage"
	_ "taxietl/internal/storage/sqlite"
)

func ptr[T any](v T) *T { return &v }

func ts(s string) *time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// openStore returns an in-memory SQLite warehouse with the default schema.
func openStore(t *testing.T) storage.Repository {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: storage.DialectSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	scripts, err := schema.Load(repo.Dialect(), "", "")
	require.NoError(t, err)
	require.NoError(t, repo.Exec(ctx, scripts.Schema))
	return repo
}

func count(t *testing.T, repo storage.Repository, table string) int64 {
	t.Helper()
	tbl, err := repo.Query(context.Background(), "SELECT COUNT(*) FROM "+table)
	require.NoError(t, err)
	n, err := toInt64(tbl.Rows[0][0])
	require.NoError(t, err)
	return n
}

// stubRepo records writes and serves a fixed query result.
type stubRepo struct {
	storage.Repository
	table    *storage.Table
	appended [][]any
}

func (s *stubRepo) InsertIgnore(_ context.Context, _ string, _ []string, rows [][]any, _ []string) (int64, error) {
	return int64(len(rows)), nil
}

func (s *stubRepo) BulkAppend(_ context.Context, _ string, _ []string, rows [][]any) (int64, error) {
	s.appended = append(s.appended, rows...)
	return int64(len(rows)), nil
}

func (s *stubRepo) Query(context.Context, string) (*storage.Table, error) {
	if s.table == nil {
		return &storage.Table{Columns: []string{"date_id", "pickup_date"}}, nil
	}
	return s.table, nil
}
