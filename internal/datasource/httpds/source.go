package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Remote is a datasource.Source that downloads a URL once and serves
// subsequent Opens from a local cache file. The pipeline opens its input at
// least twice (fit pass and apply pass), so caching avoids a second fetch
// and guarantees both passes see identical bytes.
type Remote struct {
	client   *Client
	url      string
	cacheDir string
}

// NewRemote returns a Remote source for url. cacheDir is where the download
// lands; empty means the OS temp directory.
func NewRemote(client *Client, url, cacheDir string) *Remote {
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	return &Remote{client: client, url: url, cacheDir: cacheDir}
}

// Open returns a reader over the downloaded input, fetching it on first use.
func (r *Remote) Open(ctx context.Context) (io.ReadCloser, error) {
	path := filepath.Join(r.cacheDir, CacheFilename(r.url))
	if f, err := os.Open(path); err == nil {
		return f, nil
	}

	if err := r.download(ctx, path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("httpds: open cache %s: %w", path, err)
	}
	return f, nil
}

// download fetches the URL into a temp file and renames it into place, so a
// partial download never becomes visible as a cache hit.
func (r *Remote) download(ctx context.Context, path string) error {
	resp, err := r.client.Get(ctx, r.url)
	if err != nil {
		return fmt.Errorf("httpds: fetch %s: %w", r.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpds: fetch %s: status %d", r.url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(r.cacheDir, "download-*")
	if err != nil {
		return fmt.Errorf("httpds: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("httpds: download %s: %w", r.url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("httpds: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("httpds: %w", err)
	}
	return nil
}
