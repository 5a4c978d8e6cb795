// Package datasource defines how the pipeline reads raw bytes: local files
// (package file) and HTTP downloads (package httpds).
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrUnavailable marks a source that could not be fetched or opened.
var ErrUnavailable = errors.New("source unavailable")

// Source opens a byte stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(location string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, location, err)
}
