package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"taxietl/internal/config"
)

var (
	// Version is set through -ldflags at build time.
	Version = "v0.0.0"
	// BuildTime is set through -ldflags at build time.
	BuildTime = "not recorded"
)

// flagKeys maps persistent flags onto config keys. Flags left unset fall
// through to environment, file and defaults.
var flagKeys = map[string]string{
	"job":              "job",
	"batches":          "batches",
	"batches-file":     "batches_file",
	"storage-kind":     "storage.kind",
	"dsn":              "storage.dsn",
	"schema-file":      "storage.schema_file",
	"views-file":       "storage.views_file",
	"trip-base":        "source.trip_base",
	"zone-url":         "source.zone_url",
	"cache-dir":        "source.cache_dir",
	"refresh":          "source.refresh",
	"unresolved-dates": "load.unresolved_dates",
	"export-dir":       "export.dir",
	"views":            "export.views",
	"s3-bucket":        "export.s3.bucket",
	"s3-prefix":        "export.s3.prefix",
	"metrics-backend":  "metrics.backend",
	"pushgateway-url":  "metrics.pushgateway_url",
	"datadog-addr":     "metrics.datadog_addr",
}

type app struct {
	stdout, stderr io.Writer
	configFile     string
	flags          *pflag.FlagSet
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "taxietl",
		Short: "taxietl - NYC taxi trips into a star-schema warehouse",
		Long: `Downloads NYC TLC yellow taxi trip files and the taxi zone lookup,
cleans them, loads a star schema (trip, zone, time_dim), builds analysis
views and exports them as CSV.

Configuration comes from flags, TAXIETL_* environment variables and an
optional config file (JSON, YAML or TOML), in that priority order.

Version: ` + Version + `
Build Time: ` + BuildTime + "\n",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rc.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "config file (json, yaml or toml)")
	pf.String("job", "", "job name for logs and metrics")
	pf.StringSlice("batches", nil, "monthly batches to load, e.g. 2023-01,2023-02")
	pf.String("batches-file", "", "file listing batches, one per line")
	pf.String("storage-kind", "", "warehouse backend: postgres, sqlite, mysql or mssql")
	pf.String("dsn", "", "warehouse connection string")
	pf.String("schema-file", "", "schema DDL file replacing the built-in one")
	pf.String("views-file", "", "views DDL file replacing the built-in one")
	pf.String("trip-base", "", "base URL or directory of the monthly trip files")
	pf.String("zone-url", "", "URL or path of the taxi zone lookup CSV")
	pf.String("cache-dir", "", "download directory for remote trip files")
	pf.Bool("refresh", false, "download trip files even when cached")
	pf.String("unresolved-dates", "", "trips without a date key: drop, null or fail")
	pf.String("export-dir", "", "directory for the CSV extracts")
	pf.StringSlice("views", nil, "views to export")
	pf.String("s3-bucket", "", "upload extracts to this S3 bucket")
	pf.String("s3-prefix", "", "key prefix for uploaded extracts")
	pf.String("metrics-backend", "", "metrics backend: none, prometheus or datadog")
	pf.String("pushgateway-url", "", "Prometheus Pushgateway URL")
	pf.String("datadog-addr", "", "DogStatsD address")
	a.flags = pf

	rc.AddCommand(
		a.runCommand(),
		a.validateCommand(),
		a.resetCommand(),
		a.exportCommand(),
	)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// loadConfig merges flags, environment, config file and defaults.
func (a *app) loadConfig() (config.Config, error) {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return config.Config{}, err
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, a.flags.Lookup(name)); err != nil {
			return config.Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return config.Decode(v)
}

// checkConfig prints every issue and fails on errors.
func (a *app) checkConfig(cfg config.Config) error {
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid")
	}
	return nil
}
