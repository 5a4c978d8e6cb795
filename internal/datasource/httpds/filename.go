package httpds

import (
	"fmt"
	"net/url"
	"path"
	"regexp"

	"github.com/zeebo/xxh3"
)

var filenameCleaner = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CacheName derives a stable, filesystem-safe file name for rawURL. The last
// path segment is kept readable ("yellow_tripdata_2023-01.parquet") and
// prefixed with a short hash of the full URL, so files from different hosts
// or query strings never collide.
func CacheName(rawURL string) string {
	sum := fmt.Sprintf("%016x", xxh3.HashString(rawURL))[:12]

	u, err := url.Parse(rawURL)
	if err != nil {
		return sum
	}
	base := filenameCleaner.ReplaceAllString(path.Base(u.Path), "_")
	if base == "" || base == "." || base == "_" || base == "/" {
		return sum
	}
	return sum + "-" + base
}
