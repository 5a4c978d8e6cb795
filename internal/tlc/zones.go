package tlc

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"taxietl/internal/datasource"
	"taxietl/internal/datasource/httpds"
	"taxietl/internal/warehouse"
)

// DefaultZoneURL is the published taxi zone lookup.
const DefaultZoneURL = "https://d37ci6vzurychx.cloudfront.net/misc/taxi+_zone_lookup.csv"

// naValues are the cell values read as null, matching the defaults of the
// pandas CSV reader the lookup is usually consumed with.
var naValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

var zoneColumns = []string{"LocationID", "Borough", "Zone", "service_zone"}

// ZoneSource reads the taxi zone lookup.
type ZoneSource struct {
	client   *httpds.Client
	location string
}

// NewZoneSource returns a ZoneSource for location (URL or path);
// DefaultZoneURL when empty.
func NewZoneSource(client *httpds.Client, location string) *ZoneSource {
	if location == "" {
		location = DefaultZoneURL
	}
	return &ZoneSource{client: client, location: location}
}

// Location returns the configured URL or path.
func (s *ZoneSource) Location() string { return s.location }

// Fetch streams and parses the lookup.
func (s *ZoneSource) Fetch(ctx context.Context) ([]warehouse.RawZone, error) {
	rc, err := source(s.client, s.location).Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	zones, err := ParseZones(rc)
	if err != nil {
		return nil, datasource.Unavailable(s.location, err)
	}
	return zones, nil
}

// ParseZones parses a zone lookup CSV with a header row. Columns are found by
// name; extra columns are ignored.
func ParseZones(r io.Reader) ([]warehouse.RawZone, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("zone lookup: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("zone lookup: header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.TrimSpace(h)] = i
	}
	pos := make([]int, len(zoneColumns))
	for i, c := range zoneColumns {
		p, ok := idx[c]
		if !ok {
			return nil, fmt.Errorf("zone lookup: missing column %q (header %v)", c, header)
		}
		pos[i] = p
	}

	var out []warehouse.RawZone
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("zone lookup: line %d: %w", line, err)
		}
		cell := func(i int) *string {
			if pos[i] >= len(rec) {
				return nil
			}
			v := rec[pos[i]]
			if _, na := naValues[v]; na {
				return nil
			}
			return &v
		}

		z := warehouse.RawZone{Borough: cell(1), Zone: cell(2), ServiceZone: cell(3)}
		if id := cell(0); id != nil {
			n, err := parseID(*id)
			if err != nil {
				return nil, fmt.Errorf("zone lookup: line %d: LocationID %q: %w", line, *id, err)
			}
			z.LocationID = &n
		}
		out = append(out, z)
	}
	return out, nil
}

// parseID accepts integers and integral floats ("12.0").
func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer")
	}
	return int64(f), nil
}
