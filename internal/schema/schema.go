// Package schema provides the DDL of the warehouse: the star schema tables
// and the analysis views, one script pair per dialect. Defaults are embedded
// in the binary; a deployment can point at its own files instead.
package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed sql
var embedded embed.FS

// DefaultViews are the views created by the default views script and
// exported by default.
var DefaultViews = []string{"trip_enriched", "zone_hourly_revenue"}

// Scripts is the DDL applied by one pipeline run.
type Scripts struct {
	// Schema creates the zone, time_dim and trip tables.
	Schema string
	// Views creates the analysis views over them.
	Views string
}

// Load returns the scripts for dialect. A non-empty schemaFile or viewsFile
// replaces the corresponding embedded default.
func Load(dialect, schemaFile, viewsFile string) (Scripts, error) {
	var (
		s   Scripts
		err error
	)
	if s.Schema, err = script(dialect, "schema.sql", schemaFile); err != nil {
		return Scripts{}, err
	}
	if s.Views, err = script(dialect, "views.sql", viewsFile); err != nil {
		return Scripts{}, err
	}
	return s, nil
}

// Dialects lists the dialects with embedded scripts.
func Dialects() []string {
	entries, _ := fs.ReadDir(embedded, "sql")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func script(dialect, name, override string) (string, error) {
	if override != "" {
		b, err := os.ReadFile(override)
		if err != nil {
			return "", fmt.Errorf("schema: read %s: %w", override, err)
		}
		return string(b), nil
	}
	b, err := fs.ReadFile(embedded, path.Join("sql", dialect, name))
	if err != nil {
		return "", fmt.Errorf("schema: no embedded %s for dialect %q (have %s)", name, dialect, strings.Join(Dialects(), ", "))
	}
	return string(b), nil
}
