// Package export writes warehouse views to CSV files.
//
// Each view becomes <dir>/<view>.csv with a header row. Files are written to
// a temporary name in dir and renamed into place, so a reader never sees a
// partial extract. An xxh3 hash of the bytes written is kept per file.
package export

import (
	"context"
	"database/sql/driver"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang-sql/civil"
	"github.com/zeebo/xxh3"

	"taxietl/internal/storage"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// File describes one written extract.
type File struct {
	View  string
	Path  string
	Rows  int64
	Bytes int64
	Hash  uint64
}

// HashHex returns Hash as 16 lowercase hex digits.
func (f File) HashHex() string { return fmt.Sprintf("%016x", f.Hash) }

// Exporter reads views from a Repository and writes them under Dir.
type Exporter struct {
	repo storage.Repository
	dir  string
}

// New returns an Exporter writing into dir.
func New(repo storage.Repository, dir string) *Exporter {
	return &Exporter{repo: repo, dir: dir}
}

// Export writes every view in order and stops at the first failure.
func (e *Exporter) Export(ctx context.Context, views []string) ([]File, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create %s: %w", e.dir, err)
	}
	out := make([]File, 0, len(views))
	for _, v := range views {
		f, err := e.ExportView(ctx, v)
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

// ExportView runs SELECT * on view and writes the result to <dir>/<view>.csv,
// replacing any previous file.
func (e *Exporter) ExportView(ctx context.Context, view string) (File, error) {
	t, err := e.repo.Query(ctx, "SELECT * FROM "+view)
	if err != nil {
		return File{}, fmt.Errorf("export %s: %w", view, err)
	}

	dest := filepath.Join(e.dir, view+".csv")
	tmp, err := os.CreateTemp(e.dir, "."+view+"-*.csv.tmp")
	if err != nil {
		return File{}, fmt.Errorf("export %s: %w", view, err)
	}
	defer os.Remove(tmp.Name())

	h := xxh3.New()
	cw := &countingWriter{w: io.MultiWriter(tmp, h)}
	rows, err := WriteTable(cw, t)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return File{}, fmt.Errorf("export %s: write: %w", view, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return File{}, fmt.Errorf("export %s: %w", view, err)
	}

	f := File{View: view, Path: dest, Rows: rows, Bytes: cw.n, Hash: h.Sum64()}
	log.Printf("export: wrote %s (%s rows, %s, xxh3=%s)",
		dest, humanize.Comma(rows), humanize.Bytes(uint64(cw.n)), f.HashHex())
	return f, nil
}

// WriteTable writes t as CSV: a header of column names, then one record per
// row. It returns the number of data rows written.
func WriteTable(w io.Writer, t *storage.Table) (int64, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return 0, err
	}
	rec := make([]string, len(t.Columns))
	var n int64
	for _, row := range t.Rows {
		for i := range rec {
			var typ string
			if i < len(t.Types) {
				typ = t.Types[i]
			}
			var v any
			if i < len(row) {
				v = row[i]
			}
			rec[i] = FormatValue(v, typ)
		}
		if err := cw.Write(rec); err != nil {
			return n, err
		}
		n++
	}
	cw.Flush()
	return n, cw.Error()
}

// FormatValue renders one cell. NULL is empty, DATE columns use 2006-01-02,
// other times 2006-01-02 15:04:05, booleans True/False and integral floats
// keep a trailing ".0".
func FormatValue(v any, dbType string) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case civil.Date:
		return x.String()
	case civil.DateTime:
		return x.Date.String() + " " + x.Time.String()
	case time.Time:
		if strings.EqualFold(dbType, "DATE") {
			return x.Format(dateLayout)
		}
		return x.Format(timestampLayout)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return FormatValue(dv, dbType)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) {
		return ""
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return "inf"
		}
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
