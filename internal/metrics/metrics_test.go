package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu         sync.Mutex
	counters   []call
	histograms []call
	flushes    int
}

type call struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	SetBackend(fb)
	return fb
}

func TestRecordStep(t *testing.T) {
	fb := install(t)

	RecordStep("nyc_taxi", "schema", nil, 2*time.Second)
	RecordStep("nyc_taxi", "load_batch", errors.New("boom"), 1500*time.Millisecond)

	require.Len(t, fb.counters, 2)
	require.Len(t, fb.histograms, 2)

	assert.Equal(t, StepTotal, fb.counters[0].name)
	assert.Equal(t, Labels{"job": "nyc_taxi", "step": "schema", "status": "success"}, fb.counters[0].labels)
	assert.Equal(t, "failure", fb.counters[1].labels["status"])

	assert.Equal(t, StepDuration, fb.histograms[1].name)
	assert.InDelta(t, 1.5, fb.histograms[1].value, 1e-9)
}

func TestRecordRowsSkipsNonPositive(t *testing.T) {
	fb := install(t)

	RecordRows("nyc_taxi", RowsInserted, 0)
	RecordRows("nyc_taxi", RowsInserted, -4)
	RecordRows("nyc_taxi", RowsInserted, 12)
	RecordExport("nyc_taxi", "trip_enriched", 0)
	RecordExport("nyc_taxi", "trip_enriched", 2048)
	RecordBatch("nyc_taxi")

	require.Len(t, fb.counters, 3)
	assert.Equal(t, call{RowsTotal, 12, Labels{"job": "nyc_taxi", "kind": RowsInserted}}, fb.counters[0])
	assert.Equal(t, ExportBytesTotal, fb.counters[1].name)
	assert.Equal(t, BatchesTotal, fb.counters[2].name)
}

func TestSetBackendNilKeepsCurrent(t *testing.T) {
	fb := install(t)
	SetBackend(nil)
	require.NoError(t, Flush())
	assert.Equal(t, 1, fb.flushes)
}

func TestNopBackendIsSafe(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()
	backend = nopBackend{}

	RecordStep("j", "s", nil, time.Millisecond)
	RecordRows("j", RowsRead, 1)
	assert.NoError(t, Flush())
}
