// Package metrics records operational metrics of a pipeline run behind a
// small backend-agnostic interface.
//
// The default backend is a no-op, so instrumentation is always safe to call.
// Concrete systems live in subpackages (prompush for a Prometheus
// Pushgateway, datadog for DogStatsD) and are installed once at startup with
// SetBackend.
package metrics

import "time"

// Metric names emitted by the helpers below.
const (
	StepTotal        = "taxietl_step_total"
	StepDuration     = "taxietl_step_duration_seconds"
	RowsTotal        = "taxietl_rows_total"
	BatchesTotal     = "taxietl_batches_total"
	ExportBytesTotal = "taxietl_export_bytes_total"
)

// Row kinds for RecordRows.
const (
	RowsRead            = "read"
	RowsDroppedMissing  = "dropped_missing"
	RowsDroppedDistance = "dropped_distance"
	RowsDroppedTotal    = "dropped_total"
	RowsDroppedDuration = "dropped_duration"
	RowsUnresolved      = "unresolved_date"
	RowsInserted        = "inserted"
	RowsZones           = "zones"
	RowsDates           = "dates"
	RowsExported        = "exported"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs b. Passing nil keeps the current backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a pipeline step and observes its
// duration, labelled with its outcome.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of the given kind. Non-positive deltas are
// ignored.
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatch counts one loaded batch (month).
func RecordBatch(job string) {
	backend.IncCounter(BatchesTotal, 1, Labels{"job": job})
}

// RecordExport adds the size of an exported file.
func RecordExport(job, view string, bytes int64) {
	if bytes <= 0 {
		return
	}
	backend.IncCounter(ExportBytesTotal, float64(bytes), Labels{"job": job, "view": view})
}
