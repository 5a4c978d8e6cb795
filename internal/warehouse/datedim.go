package warehouse

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang-sql/civil"

	"taxietl/internal/storage"
)

// DateDim is a row of the date dimension. The surrogate date_id is assigned
// by the store and is not part of the row.
type DateDim struct {
	PickupDate civil.Date
	Year       int
	Month      int
	Day        int
	Week       int // ISO-8601 week number
	Weekday    int // Monday=0 .. Sunday=6
	IsWeekend  bool
}

// DateDimColumns is the column order of DateDim.Row.
var DateDimColumns = []string{
	"pickup_date", "pickup_year", "pickup_month", "pickup_day",
	"pickup_week", "pickup_weekday", "is_weekend",
}

// dateDimKey is the natural key of time_dim.
var dateDimKey = []string{"pickup_date"}

// NewDateDim derives the calendar attributes of d.
func NewDateDim(d civil.Date) DateDim {
	t := d.In(time.UTC)
	_, week := t.ISOWeek()
	wd := (int(t.Weekday()) + 6) % 7
	return DateDim{
		PickupDate: d,
		Year:       d.Year,
		Month:      int(d.Month),
		Day:        d.Day,
		Week:       week,
		Weekday:    wd,
		IsWeekend:  wd >= 5,
	}
}

// Row returns the dimension row aligned to DateDimColumns.
func (d DateDim) Row() []any {
	return []any{d.PickupDate, d.Year, d.Month, d.Day, d.Week, d.Weekday, d.IsWeekend}
}

// BuildDateDims returns one DateDim per distinct pickup date in trips,
// ascending by date.
func BuildDateDims(trips []CleanTrip) []DateDim {
	seen := make(map[civil.Date]struct{})
	dates := make([]civil.Date, 0)
	for _, t := range trips {
		d := t.PickupDate()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]DateDim, len(dates))
	for i, d := range dates {
		out[i] = NewDateDim(d)
	}
	return out
}

// UpsertDateDims inserts dims into time_dim, skipping dates that are already
// present, in one transaction. It returns the number of new rows.
func UpsertDateDims(ctx context.Context, repo storage.Repository, dims []DateDim) (int64, error) {
	if len(dims) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(dims))
	for i, d := range dims {
		rows[i] = d.Row()
	}
	n, err := repo.InsertIgnore(ctx, DateDimTable, DateDimColumns, rows, dateDimKey)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", DateDimTable, err)
	}
	return n, nil
}
