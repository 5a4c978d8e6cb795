package warehouse

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"

	"taxietl/internal/storage"
)

const dateKeysQuery = "SELECT date_id, pickup_date FROM time_dim"

// DateKeys maps calendar dates to time_dim surrogate keys. It is a snapshot
// of the store and is not updated after loading.
type DateKeys struct {
	ids map[civil.Date]int64
}

// NewDateKeys builds DateKeys from an existing map. The map is copied.
func NewDateKeys(m map[civil.Date]int64) DateKeys {
	ids := make(map[civil.Date]int64, len(m))
	for d, id := range m {
		ids[d] = id
	}
	return DateKeys{ids: ids}
}

// Resolve returns the date_id of d.
func (k DateKeys) Resolve(d civil.Date) (int64, bool) {
	id, ok := k.ids[d]
	return id, ok
}

// Len returns the number of known dates.
func (k DateKeys) Len() int { return len(k.ids) }

// LoadDateKeys reads the full date dimension from the store. Drivers return
// pickup_date as a time, a string or bytes and date_id as any integer type;
// all of them are normalized here.
func LoadDateKeys(ctx context.Context, repo storage.Repository) (DateKeys, error) {
	tbl, err := repo.Query(ctx, dateKeysQuery)
	if err != nil {
		return DateKeys{}, fmt.Errorf("load date keys: %w", err)
	}
	idCol, dateCol := tbl.Index("date_id"), tbl.Index("pickup_date")
	if idCol < 0 || dateCol < 0 {
		return DateKeys{}, fmt.Errorf("load date keys: unexpected columns %v", tbl.Columns)
	}

	ids := make(map[civil.Date]int64, tbl.Len())
	for i, row := range tbl.Rows {
		d, err := toDate(row[dateCol])
		if err != nil {
			return DateKeys{}, fmt.Errorf("load date keys: row %d pickup_date: %w", i, err)
		}
		id, err := toInt64(row[idCol])
		if err != nil {
			return DateKeys{}, fmt.Errorf("load date keys: row %d date_id: %w", i, err)
		}
		if prev, dup := ids[d]; dup {
			return DateKeys{}, fmt.Errorf("load date keys: date %s has ids %d and %d", d, prev, id)
		}
		ids[d] = id
	}
	return DateKeys{ids: ids}, nil
}

func toDate(v any) (civil.Date, error) {
	switch x := v.(type) {
	case civil.Date:
		return x, nil
	case time.Time:
		return civil.DateOf(x), nil
	case []byte:
		return parseDate(string(x))
	case string:
		return parseDate(x)
	case nil:
		return civil.Date{}, fmt.Errorf("null date")
	default:
		return civil.Date{}, fmt.Errorf("unsupported date type %T", v)
	}
}

// parseDate accepts "2006-01-02" optionally followed by a time part.
func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	return civil.ParseDate(s)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("id %d overflows int64", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("non-integral id %v", x)
		}
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case nil:
		return 0, fmt.Errorf("null id")
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}
