package main

import (
	"context"
	"fmt"
	"log"

	"taxietl/internal/config"
	"taxietl/internal/datasource/httpds"
	"taxietl/internal/export/s3publish"
	"taxietl/internal/metrics"
	"taxietl/internal/metrics/datadog"
	"taxietl/internal/metrics/prompush"
	"taxietl/internal/pipeline"
	"taxietl/internal/schema"
	"taxietl/internal/storage"
	"taxietl/internal/tlc"
	"taxietl/internal/warehouse"

	// register all backends with the storage factory; config picks one.
	_ "taxietl/internal/storage/all"
)

// wiring owns the store connection behind a pipeline.
type wiring struct {
	repo     storage.Repository
	pipeline *pipeline.Pipeline
}

func (w *wiring) Close() { w.repo.Close() }

// openWiring connects to the store and assembles the pipeline for cfg.
func openWiring(ctx context.Context, cfg config.Config) (*wiring, error) {
	batches, err := cfg.AllBatches()
	if err != nil {
		return nil, err
	}
	policy, err := warehouse.ParseUnresolvedPolicy(cfg.Load.UnresolvedDates)
	if err != nil {
		return nil, err
	}
	scripts, err := schema.Load(cfg.Storage.Kind, cfg.Storage.SchemaFile, cfg.Storage.ViewsFile)
	if err != nil {
		return nil, err
	}

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Kind, err)
	}

	client := httpds.NewClient(httpConfig(cfg.HTTP))
	p := pipeline.New(repo,
		tlc.NewTripSource(client, tripConfig(cfg.Source)),
		tlc.NewZoneSource(client, cfg.Source.ZoneURL),
		pipeline.Options{
			Job:       cfg.Job,
			Batches:   batches,
			Scripts:   scripts,
			Policy:    policy,
			ExportDir: cfg.Export.Dir,
			Views:     cfg.Export.Views,
		})

	if cfg.Export.S3.Enabled() {
		pub, err := s3publish.New(s3publish.Config{
			Bucket:   cfg.Export.S3.Bucket,
			Prefix:   cfg.Export.S3.Prefix,
			Region:   cfg.Export.S3.Region,
			Endpoint: cfg.Export.S3.Endpoint,
		})
		if err != nil {
			repo.Close()
			return nil, err
		}
		p.WithPublisher(pub)
	}
	return &wiring{repo: repo, pipeline: p}, nil
}

func httpConfig(h config.HTTP) httpds.Config {
	return httpds.Config{
		Timeout:            h.Timeout,
		MaxRetries:         h.MaxRetries,
		InitialBackoff:     h.InitialBackoff,
		MaxBackoff:         h.MaxBackoff,
		UserAgent:          h.UserAgent,
		InsecureSkipVerify: h.InsecureSkipVerify,
	}
}

func tripConfig(s config.Source) tlc.TripConfig {
	return tlc.TripConfig{
		Base:        s.TripBase,
		Pattern:     s.TripPattern,
		CacheDir:    s.CacheDir,
		Refresh:     s.Refresh,
		ReadChunk:   s.ReadChunk,
		Parallelism: s.Parallelism,
	}
}

// setupMetrics installs the configured backend and returns the function that
// flushes it. A backend that fails to start leaves metrics disabled.
func setupMetrics(cfg config.Config, runID string) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.Metrics.Backend {
	case "prometheus":
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL, map[string]string{"run_id": runID})
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			Namespace:  cfg.Metrics.Namespace,
			GlobalTags: []string{"job:" + cfg.Job, "run_id:" + runID},
		})
	default:
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: backend=%s init failed: %v; metrics disabled", cfg.Metrics.Backend, err)
		return func() {}
	}

	log.Printf("metrics: backend=%s job=%s run_id=%s", cfg.Metrics.Backend, cfg.Job, runID)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}
