// Package tlc reads the NYC Taxi & Limousine Commission publications: the
// monthly yellow taxi trip files (parquet) and the taxi zone lookup (CSV).
//
// Locations are http(s) URLs, file:// URLs or plain local paths. Remote files
// are fetched through httpds; parquet needs random access, so trip files are
// downloaded into a cache directory first.
package tlc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"taxietl/internal/datasource"
	"taxietl/internal/datasource/file"
	"taxietl/internal/datasource/httpds"
)

func isRemote(loc string) bool {
	l := strings.ToLower(loc)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// localPath strips a file:// scheme.
func localPath(loc string) string {
	if strings.HasPrefix(strings.ToLower(loc), "file://") {
		if u, err := url.Parse(loc); err == nil {
			return u.Path
		}
	}
	return loc
}

// join appends name to a base URL or directory.
func join(base, name string) string {
	if isRemote(base) {
		return strings.TrimRight(base, "/") + "/" + name
	}
	return filepath.Join(localPath(base), name)
}

// source returns a streaming source for loc.
func source(client *httpds.Client, loc string) datasource.Source {
	if isRemote(loc) {
		return httpds.NewSource(client, loc)
	}
	return file.NewLocal(localPath(loc))
}

// materialize returns a local path holding the content of loc, downloading
// remote files into cacheDir. A cached copy is reused unless refresh is set.
func materialize(ctx context.Context, client *httpds.Client, loc, cacheDir string, refresh bool) (string, error) {
	if !isRemote(loc) {
		p := localPath(loc)
		if _, err := file.NewLocal(p).Stat(ctx); err != nil {
			return "", err
		}
		return p, nil
	}

	dest := filepath.Join(cacheDir, httpds.CacheName(loc))
	if !refresh {
		if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
			log.Printf("tlc: using cached %s for %s", dest, loc)
			return dest, nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("tlc: stat cache: %w", err)
		}
	}
	if _, err := client.Download(ctx, loc, dest); err != nil {
		return "", err
	}
	return dest, nil
}
