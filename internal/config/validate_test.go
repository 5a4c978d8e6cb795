package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Job:     "nyc_taxi",
		Batches: []string{"2023-01", "2023-02"},
		Storage: Storage{Kind: "sqlite", DSN: ":memory:"},
		Source: Source{
			TripBase:    "https://d37ci6vzurychx.cloudfront.net/trip-data",
			TripPattern: "yellow_tripdata_{batch}.parquet",
			ZoneURL:     "file:///data/taxi_zone_lookup.csv",
		},
		Load:    LoadOptions{UnresolvedDates: "drop"},
		Export:  Export{Dir: "out", Views: []string{"trip_enriched"}},
		Metrics: Metrics{Backend: "none"},
	}
}

func paths(issues []Issue) map[string]IssueSeverity {
	out := map[string]IssueSeverity{}
	for _, iss := range issues {
		out[iss.Path] = iss.Severity
	}
	return out
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	issues := Validate(validConfig())
	assert.Empty(t, issues)
	assert.False(t, HasErrors(issues))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		path     string
		severity IssueSeverity
	}{
		{"empty job", func(c *Config) { c.Job = " " }, "job", SeverityError},
		{"no batches", func(c *Config) { c.Batches = nil }, "batches", SeverityWarning},
		{"bad batch", func(c *Config) { c.Batches = []string{"2023-13"} }, "batches[0]", SeverityError},
		{"batch without dash", func(c *Config) { c.Batches = []string{"202301"} }, "batches[0]", SeverityError},
		{"duplicate batch", func(c *Config) { c.Batches = []string{"2023-01", "2023-01"} }, "batches[1]", SeverityWarning},
		{"missing batches file", func(c *Config) { c.BatchesFile = filepath.Join(t.TempDir(), "x") }, "batches_file", SeverityError},
		{"empty kind", func(c *Config) { c.Storage.Kind = "" }, "storage.kind", SeverityError},
		{"unknown kind", func(c *Config) { c.Storage.Kind = "oracle" }, "storage.kind", SeverityError},
		{"empty dsn", func(c *Config) { c.Storage.DSN = "" }, "storage.dsn", SeverityError},
		{"pattern without placeholder", func(c *Config) { c.Source.TripPattern = "trips.parquet" }, "source.trip_pattern", SeverityError},
		{"ftp base", func(c *Config) { c.Source.TripBase = "ftp://host/x" }, "source.trip_base", SeverityError},
		{"url without host", func(c *Config) { c.Source.ZoneURL = "https:///x.csv" }, "source.zone_url", SeverityError},
		{"negative chunk", func(c *Config) { c.Source.ReadChunk = -1 }, "source.read_chunk", SeverityError},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries", SeverityError},
		{"insecure tls", func(c *Config) { c.HTTP.InsecureSkipVerify = true }, "http.insecure_skip_verify", SeverityWarning},
		{"bad policy", func(c *Config) { c.Load.UnresolvedDates = "ignore" }, "load.unresolved_dates", SeverityError},
		{"views without dir", func(c *Config) { c.Export.Dir = "" }, "export.dir", SeverityWarning},
		{"s3 without dir", func(c *Config) { c.Export.Dir = ""; c.Export.S3.Bucket = "b" }, "export.s3.bucket", SeverityError},
		{"s3 without region", func(c *Config) { c.Export.S3.Bucket = "b" }, "export.s3.region", SeverityError},
		{"bad view name", func(c *Config) { c.Export.Views = []string{"trip; drop"} }, "export.views[0]", SeverityError},
		{"prometheus without url", func(c *Config) { c.Metrics.Backend = "prometheus" }, "metrics.pushgateway_url", SeverityError},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = "datadog" }, "metrics.datadog_addr", SeverityError},
		{"unknown backend", func(c *Config) { c.Metrics.Backend = "graphite" }, "metrics.backend", SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			got := paths(Validate(c))
			require.Contains(t, got, tt.path)
			assert.Equal(t, tt.severity, got[tt.path])
		})
	}
}

func TestIssueError(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "storage.dsn", Message: "storage.dsn must not be empty"}
	assert.Equal(t, "error at storage.dsn: storage.dsn must not be empty", iss.Error())
}
