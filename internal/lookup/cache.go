// Cache Entry management for the Lookup/Resource Loader (spec.md §3's
// "Cache Entry" and §5's "Lookup cache on disk: shared across concurrent
// invocations by different processes; protected by atomic rename on
// download, age-based invalidation on read"). The on-disk layout is
// always authoritative; an optional Redis-backed coordination layer
// (grounded on the teacher's go-redis/v8 usage in internal/data/conn.go)
// lets concurrent processes on different hosts agree on freshness without
// a shared filesystem.
package lookup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache resolves a URL to a local file path, fetching (and re-fetching on
// staleness) as needed.
type Cache struct {
	Dir    string
	Client *http.Client
	Redis  *redis.Client // optional; nil disables the shared coordination layer
}

func NewCache(dir string, timeout time.Duration, rdb *redis.Client) *Cache {
	return &Cache{Dir: dir, Client: &http.Client{Timeout: timeout}, Redis: rdb}
}

func (c *Cache) entryDir(url string) string {
	sum := sha1.Sum([]byte(url))
	return filepath.Join(c.Dir, hex.EncodeToString(sum[:]))
}

// Fetch returns a local path to url's content, honoring maxAge seconds:
// if a cached copy exists and is within maxAge, it's reused; otherwise a
// fresh copy is downloaded and atomically swapped into place.
func (c *Cache) Fetch(ctx context.Context, url string, maxAge int64) (string, error) {
	dir := c.entryDir(url)
	dataPath := filepath.Join(dir, "data")
	metaPath := filepath.Join(dir, "fetched_at")

	if age, ok := c.age(ctx, url, metaPath); ok && age <= time.Duration(maxAge)*time.Second {
		if _, err := os.Stat(dataPath); err == nil {
			return dataPath, nil
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing download: %w", err)
	}
	tmp.Close()

	// Atomic rename into place, per spec.md §5.
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return "", fmt.Errorf("installing cache entry: %w", err)
	}

	now := time.Now()
	_ = os.WriteFile(metaPath, []byte(now.Format(time.RFC3339)), 0o644)
	if c.Redis != nil {
		c.Redis.Set(ctx, "rowforge:cache:"+url, now.Format(time.RFC3339), 0)
	}

	return dataPath, nil
}

// age reports how old the cached entry for url is, preferring the shared
// Redis timestamp (so a fetch by another process on another host is
// visible) and falling back to the local sidecar file.
func (c *Cache) age(ctx context.Context, url string, metaPath string) (time.Duration, bool) {
	if c.Redis != nil {
		if ts, err := c.Redis.Get(ctx, "rowforge:cache:"+url).Result(); err == nil {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				return time.Since(t), true
			}
		}
	}
	b, err := os.ReadFile(metaPath)
	if err != nil {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, string(b))
	if err != nil {
		return 0, false
	}
	return time.Since(t), true
}
