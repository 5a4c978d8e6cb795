package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is a minimal Repository implementation for tests.
type fakeRepo struct {
	closed bool
}

func (f *fakeRepo) Exec(context.Context, string) error { return nil }
func (f *fakeRepo) BulkAppend(_ context.Context, _ string, _ []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeRepo) InsertIgnore(_ context.Context, _ string, _ []string, rows [][]any, _ []string) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeRepo) Query(context.Context, string) (*Table, error) { return &Table{}, nil }
func (f *fakeRepo) Reset(context.Context) error                   { return nil }
func (f *fakeRepo) Dialect() string                               { return "fake" }
func (f *fakeRepo) Close()                                        { f.closed = true }

// TestRegisterAndNew_Success verifies that registering a backend enables New()
// to return the corresponding repository.
func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	kind := "fake"
	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: kind})
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Contains(t, ListKinds(), kind)
}

// TestNew_Unsupported verifies that unsupported kinds return a helpful error.
func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	require.EqualError(t, err, "unsupported storage.kind=does-not-exist")
}

// TestRegister_Override verifies that re-registering a kind overrides the
// previous factory.
func TestRegister_Override(t *testing.T) {
	t.Parallel()

	kind := "override"
	calls := 0

	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		calls++
		return &fakeRepo{}, nil
	})
	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		calls += 10
		return &fakeRepo{}, nil
	})

	_, err := New(context.Background(), Config{Kind: kind})
	require.NoError(t, err)
	assert.Equal(t, 10, calls, "only the second factory should have been used")
}

// TestListKinds_Snapshot checks that ListKinds returns a copy.
func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(ctx context.Context, cfg Config) (Repository, error) { return &fakeRepo{}, nil })

	a := ListKinds()
	require.NotEmpty(t, a)
	a[0] = "mutated"

	assert.NotContains(t, ListKinds(), "mutated")
}

// TestRegister_AllowsErrors shows factories can return errors that bubble up.
func TestRegister_AllowsErrors(t *testing.T) {
	t.Parallel()

	kind := "errkind"
	want := errors.New("boom")

	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		return nil, want
	})

	_, err := New(context.Background(), Config{Kind: kind})
	assert.ErrorIs(t, err, want)
}

func TestConfigTablesDefault(t *testing.T) {
	assert.Equal(t, []string{"trip", "time_dim", "zone"}, Config{}.Tables())
	assert.Equal(t, []string{"x"}, Config{ManagedTables: []string{"x"}}.Tables())
}

func TestTableIndex(t *testing.T) {
	tbl := &Table{Columns: []string{"date_id", "Pickup_Date"}, Rows: [][]any{{1, "2023-01-01"}}}
	assert.Equal(t, 1, tbl.Index("pickup_date"))
	assert.Equal(t, -1, tbl.Index("missing"))
	assert.Equal(t, 1, tbl.Len())
}

func TestErrorTaxonomy(t *testing.T) {
	base := errors.New("duplicate key")

	assert.NoError(t, ConstraintErr(nil))
	assert.NoError(t, SchemaErr(nil))

	err := ConstraintErr(base)
	assert.ErrorIs(t, err, ErrConstraint)
	assert.ErrorIs(t, err, base)
	assert.NotErrorIs(t, err, ErrSchema)

	assert.ErrorIs(t, SchemaErr(base), ErrSchema)
}
