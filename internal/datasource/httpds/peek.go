package httpds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchFirstBytes retrieves up to n bytes of url. It asks for a byte range
// and also caps the read, so servers that ignore Range are handled too.
func (c *Client) FetchFirstBytes(ctx context.Context, url string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("httpds: n must be > 0")
	}

	h := make(http.Header)
	h.Set("Range", fmt.Sprintf("bytes=0-%d", n-1))

	resp, err := c.Do(ctx, http.MethodGet, url, nil, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("httpds: status %s from %s", resp.Status, url)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, int64(n))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HasPrefix reports whether the remote file starts with magic, e.g. "PAR1"
// for parquet. Only len(magic) bytes are transferred.
func (c *Client) HasPrefix(ctx context.Context, url string, magic []byte) (bool, error) {
	b, err := c.FetchFirstBytes(ctx, url, len(magic))
	if err != nil {
		return false, err
	}
	return bytes.Equal(b, magic), nil
}
