package tlc

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"

	"taxietl/internal/datasource"
	"taxietl/internal/datasource/httpds"
	"taxietl/internal/warehouse"
)

// DefaultTripBase is where the TLC publishes trip files.
const DefaultTripBase = "https://d37ci6vzurychx.cloudfront.net/trip-data"

// DefaultTripPattern names a monthly file; {batch} is replaced by "YYYY-MM".
const DefaultTripPattern = "yellow_tripdata_{batch}.parquet"

var parquetMagic = []byte("PAR1")

// tripRecord holds the columns read from a yellow taxi file. Every column
// is optional in the published files.
type tripRecord struct {
	PickupDatetime  *int64   `parquet:"name=tpep_pickup_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`
	DropoffDatetime *int64   `parquet:"name=tpep_dropoff_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`
	PassengerCount  *float64 `parquet:"name=passenger_count, type=DOUBLE, repetitiontype=OPTIONAL"`
	TripDistance    *float64 `parquet:"name=trip_distance, type=DOUBLE, repetitiontype=OPTIONAL"`
	PULocationID    *int64   `parquet:"name=PULocationID, type=INT64, repetitiontype=OPTIONAL"`
	DOLocationID    *int64   `parquet:"name=DOLocationID, type=INT64, repetitiontype=OPTIONAL"`
	PaymentType     *int64   `parquet:"name=payment_type, type=INT64, repetitiontype=OPTIONAL"`
	FareAmount      *float64 `parquet:"name=fare_amount, type=DOUBLE, repetitiontype=OPTIONAL"`
	Extra           *float64 `parquet:"name=extra, type=DOUBLE, repetitiontype=OPTIONAL"`
	MTATax          *float64 `parquet:"name=mta_tax, type=DOUBLE, repetitiontype=OPTIONAL"`
	TipAmount       *float64 `parquet:"name=tip_amount, type=DOUBLE, repetitiontype=OPTIONAL"`
	TollsAmount     *float64 `parquet:"name=tolls_amount, type=DOUBLE, repetitiontype=OPTIONAL"`
	TotalAmount     *float64 `parquet:"name=total_amount, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// TripConfig locates the monthly trip files.
type TripConfig struct {
	Base     string // URL or directory; DefaultTripBase when empty
	Pattern  string // DefaultTripPattern when empty
	CacheDir string // download directory for remote files
	Refresh  bool   // re-download even if cached

	// ReadChunk is the number of rows decoded per read call.
	ReadChunk int
	// Parallelism is the parquet reader's column parallelism.
	Parallelism int64
}

// TripSource reads one batch (month) of yellow taxi trips.
type TripSource struct {
	client *httpds.Client
	cfg    TripConfig
}

// NewTripSource returns a TripSource with defaults applied.
func NewTripSource(client *httpds.Client, cfg TripConfig) *TripSource {
	if cfg.Base == "" {
		cfg.Base = DefaultTripBase
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultTripPattern
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = os.TempDir()
	}
	if cfg.ReadChunk <= 0 {
		cfg.ReadChunk = 100_000
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &TripSource{client: client, cfg: cfg}
}

// Location returns the URL or path of batch.
func (s *TripSource) Location(batch string) string {
	return join(s.cfg.Base, strings.ReplaceAll(s.cfg.Pattern, "{batch}", batch))
}

// Fetch reads every trip of batch. Fetch and decode failures wrap
// datasource.ErrUnavailable.
func (s *TripSource) Fetch(ctx context.Context, batch string) ([]warehouse.RawTrip, error) {
	loc := s.Location(batch)
	path, err := materialize(ctx, s.client, loc, s.cfg.CacheDir, s.cfg.Refresh)
	if err != nil {
		return nil, err
	}
	trips, err := readTrips(ctx, path, s.cfg.ReadChunk, s.cfg.Parallelism)
	if err != nil {
		return nil, datasource.Unavailable(loc, err)
	}
	return trips, nil
}

// Probe checks that the file of batch exists and looks like parquet without
// downloading it.
func (s *TripSource) Probe(ctx context.Context, batch string) error {
	loc := s.Location(batch)
	var (
		ok  bool
		err error
	)
	if isRemote(loc) {
		ok, err = s.client.HasPrefix(ctx, loc, parquetMagic)
	} else {
		ok, err = localHasPrefix(ctx, loc, parquetMagic)
	}
	if err != nil {
		return datasource.Unavailable(loc, err)
	}
	if !ok {
		return datasource.Unavailable(loc, fmt.Errorf("not a parquet file"))
	}
	return nil
}

func localHasPrefix(ctx context.Context, loc string, magic []byte) (bool, error) {
	rc, err := source(nil, loc).Open(ctx)
	if err != nil {
		return false, err
	}
	defer rc.Close()
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(rc, buf); err != nil {
		return false, nil
	}
	return string(buf) == string(magic), nil
}

func readTrips(ctx context.Context, path string, chunk int, np int64) ([]warehouse.RawTrip, error) {
	pf, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pf.Close()

	// A struct-bound reader renames the footer schema after its own fields,
	// so the timestamp units are taken from an unbound read of the footer.
	meta, err := reader.NewParquetReader(pf, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("read parquet footer: %w", err)
	}
	pickupUnit := timestampUnit(meta.Footer, "tpep_pickup_datetime")
	dropoffUnit := timestampUnit(meta.Footer, "tpep_dropoff_datetime")
	meta.ReadStop()

	pr, err := reader.NewParquetReader(pf, new(tripRecord), np)
	if err != nil {
		return nil, fmt.Errorf("read parquet schema: %w", err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	out := make([]warehouse.RawTrip, 0, total)
	for read := 0; read < total; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(chunk, total-read)
		recs := make([]tripRecord, n)
		if err := pr.Read(&recs); err != nil {
			return nil, fmt.Errorf("read rows %d..%d: %w", read, read+n, err)
		}
		for _, r := range recs {
			out = append(out, r.raw(pickupUnit, dropoffUnit))
		}
		read += n
	}
	return out, nil
}

func (r tripRecord) raw(pickupUnit, dropoffUnit time.Duration) warehouse.RawTrip {
	return warehouse.RawTrip{
		PickupDatetime:  toTime(r.PickupDatetime, pickupUnit),
		DropoffDatetime: toTime(r.DropoffDatetime, dropoffUnit),
		PassengerCount:  toCount(r.PassengerCount),
		TripDistance:    r.TripDistance,
		PULocationID:    r.PULocationID,
		DOLocationID:    r.DOLocationID,
		FareAmount:      r.FareAmount,
		Extra:           r.Extra,
		MTATax:          r.MTATax,
		TipAmount:       r.TipAmount,
		TollsAmount:     r.TollsAmount,
		TotalAmount:     r.TotalAmount,
		PaymentType:     r.PaymentType,
	}
}

// timestampUnit reads the unit of a timestamp column from the file schema.
// Files written by different tools use millis, micros or nanos.
func timestampUnit(footer *parquet.FileMetaData, column string) time.Duration {
	if footer == nil {
		return time.Microsecond
	}
	for _, el := range footer.Schema {
		if el == nil || !strings.EqualFold(el.Name, column) {
			continue
		}
		if lt := el.LogicalType; lt != nil && lt.TIMESTAMP != nil && lt.TIMESTAMP.Unit != nil {
			switch u := lt.TIMESTAMP.Unit; {
			case u.MILLIS != nil:
				return time.Millisecond
			case u.NANOS != nil:
				return time.Nanosecond
			default:
				return time.Microsecond
			}
		}
		if el.ConvertedType != nil && *el.ConvertedType == parquet.ConvertedType_TIMESTAMP_MILLIS {
			return time.Millisecond
		}
	}
	return time.Microsecond
}

// toTime converts an epoch offset to a UTC time. The TLC timestamps are local
// wall-clock times without a zone; keeping them in UTC avoids any shift.
func toTime(v *int64, unit time.Duration) *time.Time {
	if v == nil {
		return nil
	}
	var t time.Time
	switch unit {
	case time.Millisecond:
		t = time.UnixMilli(*v)
	case time.Nanosecond:
		t = time.Unix(0, *v)
	default:
		t = time.UnixMicro(*v)
	}
	t = t.UTC()
	return &t
}

// toCount turns the published floating passenger count into an integer;
// NaN stays null.
func toCount(v *float64) *int64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	n := int64(math.Round(*v))
	return &n
}
