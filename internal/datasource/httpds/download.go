package httpds

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"taxietl/internal/datasource"
)

// Source is a datasource.Source that streams a URL.
type Source struct {
	client *Client
	url    string
}

var _ datasource.Source = (*Source)(nil)

// NewSource binds url to client.
func NewSource(client *Client, url string) *Source { return &Source{client: client, url: url} }

// Open issues a GET and returns the body of a 200 response.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url, nil)
	if err != nil {
		return nil, datasource.Unavailable(s.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, datasource.Unavailable(s.url, fmt.Errorf("status %s", resp.Status))
	}
	return resp.Body, nil
}

// Download stores the body of url at dest and returns the number of bytes
// written. The body goes to a temporary file in dest's directory first and is
// renamed into place only when complete, so dest is never half-written.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	start := time.Now()
	body, err := NewSource(c, url).Open(ctx)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("httpds: create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("httpds: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, datasource.Unavailable(url, fmt.Errorf("read body: %w", err))
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("httpds: rename into place: %w", err)
	}

	log.Printf("httpds: downloaded %s (%s) in %s", url, humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
	return n, nil
}
