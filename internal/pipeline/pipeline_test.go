package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxietl/internal/datasource"
	"taxietl/internal/export"
	"taxietl/internal/schema"
	"taxietl/internal/storage"
	_ "taxietl/internal/storage/sqlite"
	"taxietl/internal/warehouse"
)

func ptr[T any](v T) *T { return &v }

func at(s string) *time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return &t
}

type tripsByBatch map[string][]warehouse.RawTrip

func (m tripsByBatch) Fetch(_ context.Context, batch string) ([]warehouse.RawTrip, error) {
	trips, ok := m[batch]
	if !ok {
		return nil, datasource.Unavailable("yellow_tripdata_"+batch+".parquet", errors.New("404 Not Found"))
	}
	return trips, nil
}

type staticZones []warehouse.RawZone

func (z staticZones) Fetch(context.Context) ([]warehouse.RawZone, error) { return z, nil }

type recordingPublisher struct{ files []export.File }

func (r *recordingPublisher) Publish(_ context.Context, files []export.File) ([]string, error) {
	r.files = append(r.files, files...)
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = "s3://extracts/" + f.View + ".csv"
	}
	return out, nil
}

var zones = staticZones{
	{LocationID: ptr(int64(1)), Borough: ptr("EWR"), Zone: ptr("Newark Airport"), ServiceZone: ptr("EWR")},
	{LocationID: ptr(int64(161)), Borough: ptr("Manhattan"), Zone: ptr("Midtown Center"), ServiceZone: ptr("Yellow Zone")},
}

// januaryTrips holds one valid trip and two that cleaning drops.
func januaryTrips() []warehouse.RawTrip {
	return []warehouse.RawTrip{
		{
			PickupDatetime: at("2023-01-01 08:00:00"), DropoffDatetime: at("2023-01-01 08:10:00"),
			TripDistance: ptr(-1.0), TotalAmount: ptr(10.0), PULocationID: ptr(int64(161)), DOLocationID: ptr(int64(1)),
		},
		{
			PickupDatetime: at("2023-01-01 09:00:00"), DropoffDatetime: at("2023-01-01 09:10:00"),
			TripDistance: ptr(1.0), PULocationID: ptr(int64(161)), DOLocationID: ptr(int64(1)),
		},
		{
			PickupDatetime: at("2023-01-01 08:00:00"), DropoffDatetime: at("2023-01-01 08:10:00"),
			TripDistance: ptr(2.5), TotalAmount: ptr(15.0), PassengerCount: ptr(int64(1)),
			PULocationID: ptr(int64(161)), DOLocationID: ptr(int64(1)),
		},
	}
}

func openStore(t *testing.T) (storage.Repository, schema.Scripts) {
	t.Helper()
	repo, err := storage.New(context.Background(), storage.Config{Kind: storage.DialectSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	scripts, err := schema.Load(repo.Dialect(), "", "")
	require.NoError(t, err)
	return repo, scripts
}

func queryInt(t *testing.T, repo storage.Repository, sql string) int64 {
	t.Helper()
	tbl, err := repo.Query(context.Background(), sql)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	n, ok := tbl.Rows[0][0].(int64)
	require.True(t, ok, "got %T", tbl.Rows[0][0])
	return n
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo, scripts := openStore(t)
	dir := t.TempDir()
	pub := &recordingPublisher{}

	p := New(repo, tripsByBatch{"2023-01": januaryTrips()}, zones, Options{
		Job:       "test",
		Batches:   []string{"2023-01"},
		Scripts:   scripts,
		ExportDir: dir,
	}).WithPublisher(pub)

	sum, err := p.Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, sum.Zones)
	require.Len(t, sum.Batches, 1)
	assert.Equal(t, 3, sum.Batches[0].Clean.Raw)
	assert.Equal(t, 1, sum.Batches[0].Clean.NonPositiveDistance)
	assert.Equal(t, 1, sum.Batches[0].Clean.MissingRequired)
	assert.EqualValues(t, 1, sum.Inserted())

	assert.EqualValues(t, 1, queryInt(t, repo, "SELECT COUNT(*) FROM trip"))
	assert.EqualValues(t, 1, queryInt(t, repo, "SELECT COUNT(*) FROM time_dim"))

	dates, err := repo.Query(ctx, "SELECT pickup_date FROM time_dim")
	require.NoError(t, err)
	assert.Contains(t, export.FormatValue(dates.Rows[0][0], "DATE"), "2023-01-01")

	dur, err := repo.Query(ctx, "SELECT trip_duration_min FROM trip")
	require.NoError(t, err)
	assert.Equal(t, 10.0, dur.Rows[0][0])

	require.Len(t, sum.Files, 2)
	body, err := os.ReadFile(filepath.Join(dir, "trip_enriched.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "trip_id,pickup_datetime,"))
	assert.Contains(t, lines[1], "2023-01-01 08:00:00")
	assert.Contains(t, lines[1], "Midtown Center")

	assert.Len(t, pub.files, 2)
	assert.Equal(t, []string{"s3://extracts/trip_enriched.csv", "s3://extracts/zone_hourly_revenue.csv"}, sum.Uploaded)
}

func TestRunTwiceStartsFromScratch(t *testing.T) {
	ctx := context.Background()
	repo, scripts := openStore(t)
	p := New(repo, tripsByBatch{"2023-01": januaryTrips()}, zones, Options{
		Batches: []string{"2023-01"},
		Scripts: scripts,
	})

	_, err := p.Run(ctx)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, queryInt(t, repo, "SELECT COUNT(*) FROM zone"))
	assert.EqualValues(t, 1, queryInt(t, repo, "SELECT COUNT(*) FROM trip"))
}

func TestResetRemovesManagedTables(t *testing.T) {
	ctx := context.Background()
	repo, scripts := openStore(t)
	p := New(repo, tripsByBatch{"2023-01": januaryTrips()}, zones, Options{
		Batches: []string{"2023-01"},
		Scripts: scripts,
	})
	_, err := p.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Reset(ctx))

	for _, table := range storage.DefaultManagedTables {
		_, err := repo.Query(ctx, "SELECT COUNT(*) FROM "+table)
		assert.Error(t, err, "table %s should be gone", table)
	}
	_, err = repo.Query(ctx, "SELECT COUNT(*) FROM trip_enriched")
	assert.Error(t, err)

	require.NoError(t, p.Reset(ctx), "reset is idempotent")
}

func TestRunStopsAtMissingBatch(t *testing.T) {
	ctx := context.Background()
	repo, scripts := openStore(t)
	p := New(repo, tripsByBatch{"2023-01": januaryTrips()}, zones, Options{
		Batches: []string{"2023-01", "2023-02", "2023-03"},
		Scripts: scripts,
	})

	sum, err := p.Run(ctx)
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepFetch, se.Step)
	assert.Equal(t, "2023-02", se.Batch)
	assert.ErrorIs(t, err, datasource.ErrUnavailable)

	require.Len(t, sum.Batches, 1)
	assert.EqualValues(t, 1, queryInt(t, repo, "SELECT COUNT(*) FROM trip"), "earlier batches stay committed")
}

func TestRunReportsSchemaError(t *testing.T) {
	repo, scripts := openStore(t)
	scripts.Schema = "CREATE TABLE zone (;"
	p := New(repo, tripsByBatch{}, zones, Options{Scripts: scripts})

	_, err := p.Run(context.Background())
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepSchema, se.Step)
	assert.ErrorIs(t, err, storage.ErrSchema)
	assert.Equal(t, "pipeline: step schema: "+se.Err.Error(), err.Error())
}

func TestFailPolicyPassesWhenDatesResolve(t *testing.T) {
	ctx := context.Background()
	repo, scripts := openStore(t)

	p := New(repo, tripsByBatch{"2023-01": januaryTrips()}, zones, Options{
		Batches: []string{"2023-01"},
		Scripts: scripts,
		Policy:  warehouse.UnresolvedFail,
	})
	_, err := p.Run(ctx)
	require.NoError(t, err, "every cleaned trip has its date in the dimension")
}

func TestExportViewsWithoutReload(t *testing.T) {
	ctx := context.Background()
	repo, scripts := openStore(t)
	_, err := New(repo, tripsByBatch{"2023-01": januaryTrips()}, zones, Options{
		Batches: []string{"2023-01"},
		Scripts: scripts,
	}).Run(ctx)
	require.NoError(t, err)

	dir := t.TempDir()
	files, uploaded, err := New(repo, nil, nil, Options{ExportDir: dir, Views: []string{"zone_hourly_revenue"}}).ExportViews(ctx)
	require.NoError(t, err)
	assert.Nil(t, uploaded)
	require.Len(t, files, 1)
	assert.EqualValues(t, 1, files[0].Rows)
	assert.FileExists(t, filepath.Join(dir, "zone_hourly_revenue.csv"))
}

func TestStepErrorFormatting(t *testing.T) {
	err := &StepError{Step: StepLoad, Batch: "2023-05", Err: storage.ConstraintErr(errors.New("CHECK failed"))}
	assert.Equal(t, "pipeline: step load_batch (batch 2023-05): "+err.Err.Error(), err.Error())
	assert.ErrorIs(t, err, storage.ErrConstraint)
}
