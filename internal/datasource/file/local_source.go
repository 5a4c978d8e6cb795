// Package file implements local filesystem data sources.
package file

import (
	"context"
	"io"
	"os"

	"taxietl/internal/datasource"
)

// Local is a data source backed by a file on local disk.
type Local struct{ path string }

var _ datasource.Source = (*Local)(nil)

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading. A canceled context is reported without
// touching the filesystem; filesystem errors wrap datasource.ErrUnavailable
// and keep the os error reachable (errors.Is(err, os.ErrNotExist)).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, datasource.Unavailable(l.path, err)
	}
	return f, nil
}

// Stat checks that the file exists and is a regular file.
func (l *Local) Stat(ctx context.Context) (os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(l.path)
	if err != nil {
		return nil, datasource.Unavailable(l.path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, datasource.Unavailable(l.path, os.ErrInvalid)
	}
	return fi, nil
}
