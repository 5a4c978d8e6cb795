// Package config defines the run configuration of the taxi warehouse
// pipeline and loads it through viper.
//
// Values come from, in decreasing priority: command-line flags, TAXIETL_*
// environment variables, a config file (JSON, YAML or TOML by extension)
// and the defaults in SetDefaults. Keys are dotted paths such as
// "storage.kind" or "export.s3.bucket"; the matching environment variable
// replaces dots with underscores (TAXIETL_STORAGE_KIND).
//
// Example (YAML):
//
//	job: nyc_taxi
//	batches: ["2023-01", "2023-02"]
//	storage:
//	  kind: postgres
//	  dsn: postgres://etl@localhost:5432/taxi
//	export:
//	  dir: ./out
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"taxietl/internal/datasource/file"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TAXIETL"

// Config is the full configuration of one pipeline run.
type Config struct {
	// Job names the run in logs and metrics.
	Job string `mapstructure:"job"`

	// Batches are the monthly trip batches (YYYY-MM) loaded in order.
	Batches []string `mapstructure:"batches"`

	// BatchesFile lists additional batch ids, one per line; '#' starts a
	// comment. Its entries follow Batches.
	BatchesFile string `mapstructure:"batches_file"`

	Storage Storage     `mapstructure:"storage"`
	Source  Source      `mapstructure:"source"`
	HTTP    HTTP        `mapstructure:"http"`
	Load    LoadOptions `mapstructure:"load"`
	Export  Export      `mapstructure:"export"`
	Metrics Metrics     `mapstructure:"metrics"`
}

// Storage selects the warehouse backend.
type Storage struct {
	// Kind is one of postgres, sqlite, mysql, mssql.
	Kind string `mapstructure:"kind"`
	DSN  string `mapstructure:"dsn"`

	// SchemaFile and ViewsFile replace the embedded DDL when set.
	SchemaFile string `mapstructure:"schema_file"`
	ViewsFile  string `mapstructure:"views_file"`
}

// Source locates the TLC publications.
type Source struct {
	TripBase    string `mapstructure:"trip_base"`
	TripPattern string `mapstructure:"trip_pattern"`
	ZoneURL     string `mapstructure:"zone_url"`
	CacheDir    string `mapstructure:"cache_dir"`
	Refresh     bool   `mapstructure:"refresh"`
	ReadChunk   int    `mapstructure:"read_chunk"`
	Parallelism int64  `mapstructure:"parallelism"`
}

// HTTP tunes the download client.
type HTTP struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff"`
	UserAgent          string        `mapstructure:"user_agent"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// LoadOptions controls fact loading.
type LoadOptions struct {
	// UnresolvedDates is drop, null or fail.
	UnresolvedDates string `mapstructure:"unresolved_dates"`
}

// Export controls the CSV extracts.
type Export struct {
	// Dir receives one <view>.csv per view. Empty disables the export.
	Dir   string   `mapstructure:"dir"`
	Views []string `mapstructure:"views"`
	S3    S3       `mapstructure:"s3"`
}

// S3 is the optional upload target for exported files.
type S3 struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// Enabled reports whether a bucket is configured.
func (s S3) Enabled() bool { return strings.TrimSpace(s.Bucket) != "" }

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is none, prometheus or datadog.
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	DatadogAddr    string `mapstructure:"datadog_addr"`
	Namespace      string `mapstructure:"namespace"`
}

// SetDefaults registers the default value of every key on v. Registering
// every key also makes AutomaticEnv see it during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("job", "nyc_taxi")
	v.SetDefault("batches", []string{})
	v.SetDefault("batches_file", "")

	v.SetDefault("storage.kind", "postgres")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.schema_file", "")
	v.SetDefault("storage.views_file", "")

	v.SetDefault("source.trip_base", "https://d37ci6vzurychx.cloudfront.net/trip-data")
	v.SetDefault("source.trip_pattern", "yellow_tripdata_{batch}.parquet")
	v.SetDefault("source.zone_url", "https://d37ci6vzurychx.cloudfront.net/misc/taxi+_zone_lookup.csv")
	v.SetDefault("source.cache_dir", "./cache")
	v.SetDefault("source.refresh", false)
	v.SetDefault("source.read_chunk", 100_000)
	v.SetDefault("source.parallelism", 4)

	v.SetDefault("http.timeout", 5*time.Minute)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.initial_backoff", 500*time.Millisecond)
	v.SetDefault("http.max_backoff", 10*time.Second)
	v.SetDefault("http.user_agent", "taxietl")
	v.SetDefault("http.insecure_skip_verify", false)

	v.SetDefault("load.unresolved_dates", "drop")

	v.SetDefault("export.dir", "./out")
	v.SetDefault("export.views", []string{"trip_enriched", "zone_hourly_revenue"})
	v.SetDefault("export.s3.bucket", "")
	v.SetDefault("export.s3.prefix", "")
	v.SetDefault("export.s3.region", "us-east-1")
	v.SetDefault("export.s3.endpoint", "")

	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.datadog_addr", "127.0.0.1:8125")
	v.SetDefault("metrics.namespace", "taxietl.")
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile, when set, is read immediately.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Decode unmarshals v into a Config. Durations accept strings such as "30s"
// and lists accept comma-separated strings (as environment variables carry
// them).
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&c, hook); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	c.Batches = trimAll(c.Batches)
	c.Export.Views = trimAll(c.Export.Views)
	return c, nil
}

// Load reads configFile (optional) plus environment into a Config.
func Load(configFile string) (Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// AllBatches returns Batches followed by the entries of BatchesFile.
func (c Config) AllBatches() ([]string, error) {
	out := append([]string(nil), c.Batches...)
	if c.BatchesFile == "" {
		return out, nil
	}
	extra, err := file.ReadList(c.BatchesFile)
	if err != nil {
		return nil, fmt.Errorf("config: batches_file: %w", err)
	}
	return append(out, extra...), nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
