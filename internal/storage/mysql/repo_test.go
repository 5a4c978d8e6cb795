package mysql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxietl/internal/storage"
)

func TestDialectSQL(t *testing.T) {
	d := Dialect{}
	assert.Equal(t,
		"INSERT INTO `time_dim` (`pickup_date`, `pickup_year`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `pickup_date` = `pickup_date`",
		d.InsertIgnoreSQL("time_dim", []string{"pickup_date", "pickup_year"}, []string{"pickup_date"}))
	assert.Equal(t, "DROP TABLE IF EXISTS `trip`", d.DropTableSQL("trip"))
	assert.Equal(t, "2023-01-15", d.Arg(civil.Date{Year: 2023, Month: time.January, Day: 15}))
}

func TestIsConstraint(t *testing.T) {
	d := Dialect{}
	assert.True(t, d.IsConstraint(fmt.Errorf("insert: %w", &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.True(t, d.IsConstraint(&gomysql.MySQLError{Number: 1452}))
	assert.False(t, d.IsConstraint(&gomysql.MySQLError{Number: 1146}))
	assert.False(t, d.IsConstraint(errors.New("other")))
}

func TestNewRepositoryRejectsBadDSN(t *testing.T) {
	_, _, err := NewRepository(context.Background(), Config{DSN: "not a dsn"})
	require.Error(t, err)
}

func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var got Config
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		got = cfg
		return &Repository{}, nil, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "mysql", DSN: "u:p@tcp(db:3306)/nyc_taxi"})
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3306)/nyc_taxi", got.DSN)
	assert.Equal(t, storage.DefaultManagedTables, got.ManagedTables)
	repo.Close() // nil closeFn is tolerated
}
