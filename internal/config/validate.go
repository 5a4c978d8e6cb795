package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"taxietl/internal/schema"
	"taxietl/internal/warehouse"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is the dotted config key
// (e.g. "storage.kind", "batches[2]").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var batchPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Validate performs static checks over c. It does not touch the network or
// the store; batches listed in BatchesFile are checked only if the file can
// be read.
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateBatches(c)...)
	issues = append(issues, validateStorage(c.Storage)...)
	issues = append(issues, validateSource(c.Source)...)
	issues = append(issues, validateHTTP(c.HTTP)...)

	if _, err := warehouse.ParseUnresolvedPolicy(c.Load.UnresolvedDates); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "load.unresolved_dates",
			Message:  err.Error(),
		})
	}

	issues = append(issues, validateExport(c.Export)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

func validateBatches(c Config) []Issue {
	var issues []Issue

	batches := c.Batches
	if c.BatchesFile != "" {
		all, err := c.AllBatches()
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "batches_file",
				Message:  err.Error(),
			})
		} else {
			batches = all
		}
	}

	if len(batches) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "batches",
			Message:  "no batches configured; only zones will be loaded",
		})
	}

	seen := make(map[string]int, len(batches))
	for i, b := range batches {
		path := fmt.Sprintf("batches[%d]", i)
		if !batchPattern.MatchString(b) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("batch %q must have the form YYYY-MM", b),
			})
			continue
		}
		if j, dup := seen[b]; dup {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path,
				Message:  fmt.Sprintf("batch %s repeats batches[%d]; its trips would be loaded twice", b, j),
			})
			continue
		}
		seen[b] = i
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}

	known := false
	for _, d := range schema.Dialects() {
		if d == s.Kind {
			known = true
			break
		}
	}
	if !known {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; expected one of %s", s.Kind, strings.Join(schema.Dialects(), ", ")),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if s.TripPattern != "" && !strings.Contains(s.TripPattern, "{batch}") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.trip_pattern",
			Message:  "trip_pattern must contain the {batch} placeholder",
		})
	}
	for path, loc := range map[string]string{"source.trip_base": s.TripBase, "source.zone_url": s.ZoneURL} {
		if iss, ok := checkLocation(path, loc); !ok {
			issues = append(issues, iss)
		}
	}
	if s.ReadChunk < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.read_chunk",
			Message:  "read_chunk must not be negative",
		})
	}
	if s.Parallelism < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.parallelism",
			Message:  "parallelism must not be negative",
		})
	}
	return issues
}

// checkLocation accepts http(s) URLs, file:// URLs and plain paths.
func checkLocation(path, loc string) (Issue, bool) {
	if !strings.Contains(loc, "://") {
		return Issue{}, true
	}
	u, err := url.Parse(loc)
	if err != nil {
		return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf("invalid URL: %v", err)}, false
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return Issue{Severity: SeverityError, Path: path, Message: "URL has no host"}, false
		}
	case "file":
	default:
		return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf("unsupported scheme %q", u.Scheme)}, false
	}
	return Issue{}, true
}

func validateHTTP(h HTTP) []Issue {
	var issues []Issue

	if h.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "http.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	if h.Timeout > 0 && h.Timeout < time.Second {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "http.timeout",
			Message:  fmt.Sprintf("timeout %s is shorter than a monthly trip file takes to download", h.Timeout),
		})
	}
	if h.MaxBackoff > 0 && h.InitialBackoff > h.MaxBackoff {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "http.initial_backoff",
			Message:  "initial_backoff exceeds max_backoff; every retry waits max_backoff",
		})
	}
	if h.InsecureSkipVerify {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "http.insecure_skip_verify",
			Message:  "TLS certificate verification is disabled",
		})
	}
	return issues
}

func validateExport(e Export) []Issue {
	var issues []Issue

	if e.Dir == "" {
		if len(e.Views) > 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "export.dir",
				Message:  "export.dir is empty; views will be built but not exported",
			})
		}
		if e.S3.Enabled() {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "export.s3.bucket",
				Message:  "S3 upload needs export.dir",
			})
		}
		return issues
	}

	seen := map[string]bool{}
	for i, v := range e.Views {
		if !identPattern.MatchString(v) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("export.views[%d]", i),
				Message:  fmt.Sprintf("view name %q is not a plain identifier", v),
			})
		}
		if seen[v] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("export.views[%d]", i),
				Message:  fmt.Sprintf("view %s is listed twice", v),
			})
		}
		seen[v] = true
	}
	if e.S3.Enabled() && e.S3.Region == "" && e.S3.Endpoint == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "export.s3.region",
			Message:  "S3 upload needs a region or an endpoint",
		})
	}
	return issues
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "prometheus":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend needs pushgateway_url",
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend needs datadog_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; expected none, prometheus or datadog", m.Backend),
		})
	}
	return issues
}
