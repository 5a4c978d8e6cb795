// Package pipeline runs the warehouse load end to end: reset, schema, zone
// dimension, one trip batch after another, views and CSV export.
//
// Steps run strictly in order on the calling goroutine. Each persisting step
// commits on its own, so when a step fails the earlier ones stay in the
// store and the error names the failing step.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"taxietl/internal/export"
	"taxietl/internal/metrics"
	"taxietl/internal/schema"
	"taxietl/internal/storage"
	"taxietl/internal/warehouse"
)

// TripFetcher returns the raw trips of one monthly batch.
type TripFetcher interface {
	Fetch(ctx context.Context, batch string) ([]warehouse.RawTrip, error)
}

// ZoneFetcher returns the raw taxi zone lookup.
type ZoneFetcher interface {
	Fetch(ctx context.Context) ([]warehouse.RawZone, error)
}

// Publisher uploads exported files somewhere else.
type Publisher interface {
	Publish(ctx context.Context, files []export.File) ([]string, error)
}

// Options are the per-run settings.
type Options struct {
	// Job labels metrics.
	Job string

	// Batches are loaded in this order.
	Batches []string

	Scripts schema.Scripts
	Policy  warehouse.UnresolvedPolicy

	// ExportDir receives the view extracts; empty skips the export.
	ExportDir string
	Views     []string
}

// Summary reports what a run did.
type Summary struct {
	Zones    int64
	Batches  []warehouse.BatchStats
	Files    []export.File
	Uploaded []string
}

// Inserted returns the number of trips inserted over all batches.
func (s Summary) Inserted() int64 {
	var n int64
	for _, b := range s.Batches {
		n += b.Inserted
	}
	return n
}

// Pipeline wires the sources, the store and the optional publisher.
type Pipeline struct {
	repo      storage.Repository
	trips     TripFetcher
	zones     ZoneFetcher
	publisher Publisher
	loader    *warehouse.Loader
	opts      Options
}

// New returns a Pipeline. Views default to schema.DefaultViews.
func New(repo storage.Repository, trips TripFetcher, zones ZoneFetcher, opts Options) *Pipeline {
	if opts.Views == nil {
		opts.Views = schema.DefaultViews
	}
	if opts.Job == "" {
		opts.Job = "taxietl"
	}
	return &Pipeline{
		repo:   repo,
		trips:  trips,
		zones:  zones,
		loader: warehouse.NewLoader(repo, opts.Policy),
		opts:   opts,
	}
}

// WithPublisher sets the publisher that receives the exported files.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// Run executes the whole pipeline and stops at the first failing step.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	if err := p.Reset(ctx); err != nil {
		return sum, err
	}

	log.Printf("1) creating tables")
	if err := p.step(StepSchema, "", func() error {
		return p.repo.Exec(ctx, p.opts.Scripts.Schema)
	}); err != nil {
		return sum, err
	}

	log.Printf("2) loading zone dimension")
	if err := p.step(StepZones, "", func() error {
		raw, err := p.zones.Fetch(ctx)
		if err != nil {
			return err
		}
		sum.Zones, err = p.loader.LoadZones(ctx, raw)
		metrics.RecordRows(p.opts.Job, metrics.RowsZones, sum.Zones)
		return err
	}); err != nil {
		return sum, err
	}

	log.Printf("3) loading trip data (%d batches)", len(p.opts.Batches))
	for _, batch := range p.opts.Batches {
		stats, err := p.loadBatch(ctx, batch)
		if err != nil {
			return sum, err
		}
		sum.Batches = append(sum.Batches, stats)
	}

	log.Printf("4) creating views")
	if err := p.step(StepViews, "", func() error {
		return p.repo.Exec(ctx, p.opts.Scripts.Views)
	}); err != nil {
		return sum, err
	}

	if p.opts.ExportDir == "" {
		log.Printf("pipeline: export dir not set; skipping export")
		return sum, nil
	}
	log.Printf("5) exporting CSVs")
	files, uploaded, err := p.ExportViews(ctx)
	sum.Files, sum.Uploaded = files, uploaded
	if err != nil {
		return sum, err
	}

	log.Printf("pipeline: done (%s zones, %s trips, %d files)",
		humanize.Comma(sum.Zones), humanize.Comma(sum.Inserted()), len(sum.Files))
	return sum, nil
}

func (p *Pipeline) loadBatch(ctx context.Context, batch string) (warehouse.BatchStats, error) {
	log.Printf("pipeline: processing batch %s", batch)

	var raw []warehouse.RawTrip
	if err := p.step(StepFetch, batch, func() error {
		var err error
		raw, err = p.trips.Fetch(ctx, batch)
		return err
	}); err != nil {
		return warehouse.BatchStats{Batch: batch}, err
	}

	var stats warehouse.BatchStats
	err := p.step(StepLoad, batch, func() error {
		var err error
		stats, err = p.loader.LoadBatch(ctx, batch, raw)
		return err
	})
	p.recordBatch(stats)
	if err != nil {
		return stats, err
	}
	metrics.RecordBatch(p.opts.Job)
	return stats, nil
}

func (p *Pipeline) recordBatch(s warehouse.BatchStats) {
	job := p.opts.Job
	metrics.RecordRows(job, metrics.RowsRead, int64(s.Clean.Raw))
	metrics.RecordRows(job, metrics.RowsDroppedMissing, int64(s.Clean.MissingRequired))
	metrics.RecordRows(job, metrics.RowsDroppedDistance, int64(s.Clean.NonPositiveDistance))
	metrics.RecordRows(job, metrics.RowsDroppedTotal, int64(s.Clean.NonPositiveTotal))
	metrics.RecordRows(job, metrics.RowsDroppedDuration, int64(s.Clean.NonPositiveDuration))
	metrics.RecordRows(job, metrics.RowsUnresolved, int64(s.Unresolved))
	metrics.RecordRows(job, metrics.RowsDates, s.DatesInserted)
	metrics.RecordRows(job, metrics.RowsInserted, s.Inserted)
}

// Reset drops the managed tables and everything depending on them.
func (p *Pipeline) Reset(ctx context.Context) error {
	log.Printf("pipeline: clearing existing data")
	return p.step(StepReset, "", func() error {
		return p.repo.Reset(ctx)
	})
}

// ExportViews writes the configured views of an existing warehouse to CSV
// and hands the files to the publisher, if any.
func (p *Pipeline) ExportViews(ctx context.Context) ([]export.File, []string, error) {
	var files []export.File
	if err := p.step(StepExport, "", func() error {
		var err error
		files, err = export.New(p.repo, p.opts.ExportDir).Export(ctx, p.opts.Views)
		for _, f := range files {
			metrics.RecordRows(p.opts.Job, metrics.RowsExported, f.Rows)
			metrics.RecordExport(p.opts.Job, f.View, f.Bytes)
		}
		return err
	}); err != nil {
		return files, nil, err
	}

	if p.publisher == nil {
		return files, nil, nil
	}
	var uploaded []string
	err := p.step(StepPublish, "", func() error {
		var err error
		uploaded, err = p.publisher.Publish(ctx, files)
		return err
	})
	return files, uploaded, err
}

// step times fn, records it and wraps a failure in a StepError.
func (p *Pipeline) step(name, batch string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(p.opts.Job, name, err, time.Since(start))
	if err != nil {
		return &StepError{Step: name, Batch: batch, Err: err}
	}
	return nil
}
