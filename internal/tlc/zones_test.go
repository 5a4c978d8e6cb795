package tlc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxietl/internal/datasource"
	"taxietl/internal/datasource/httpds"
)

const lookupCSV = `"LocationID","Borough","Zone","service_zone"
1,"EWR","Newark Airport","EWR"
132,"Queens","JFK Airport","Airports"
4,"Manhattan","Alphabet City","Yellow Zone"
264,"Unknown","N/A","N/A"
265,"N/A","Outside of NYC","N/A"
`

func TestParseZones(t *testing.T) {
	zones, err := ParseZones(strings.NewReader(lookupCSV))
	require.NoError(t, err)
	require.Len(t, zones, 5)

	assert.EqualValues(t, 132, *zones[1].LocationID)
	assert.Equal(t, "JFK Airport", *zones[1].Zone)
	assert.Equal(t, "Airports", *zones[1].ServiceZone)

	assert.Nil(t, zones[3].Zone, "N/A is a null marker")
	assert.Nil(t, zones[3].ServiceZone)
	assert.Equal(t, "Unknown", *zones[3].Borough)
	assert.Nil(t, zones[4].Borough)
}

func TestParseZonesHeaderVariants(t *testing.T) {
	in := "\ufeffextra,service_zone,Zone,Borough,LocationID\nx,Boro Zone,Astoria,Queens,7.0\n"
	zones, err := ParseZones(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.EqualValues(t, 7, *zones[0].LocationID)
	assert.Equal(t, "Queens", *zones[0].Borough)
}

func TestParseZonesErrors(t *testing.T) {
	_, err := ParseZones(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParseZones(strings.NewReader("LocationID,Borough,Zone\n1,EWR,Newark Airport\n"))
	assert.ErrorContains(t, err, "service_zone")

	_, err = ParseZones(strings.NewReader("LocationID,Borough,Zone,service_zone\nabc,EWR,x,y\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestZoneSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(lookupCSV))
	}))
	defer srv.Close()
	client := httpds.NewClient(httpds.Config{})

	zones, err := NewZoneSource(client, srv.URL+"/misc/taxi+_zone_lookup.csv").Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, zones, 5)

	path := filepath.Join(t.TempDir(), "lookup.csv")
	require.NoError(t, os.WriteFile(path, []byte(lookupCSV), 0o644))
	zones, err = NewZoneSource(client, "file://"+path).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, zones, 5)

	_, err = NewZoneSource(client, filepath.Join(t.TempDir(), "missing.csv")).Fetch(context.Background())
	assert.ErrorIs(t, err, datasource.ErrUnavailable)

	assert.Equal(t, DefaultZoneURL, NewZoneSource(client, "").Location())
}
