// ABOUTME: Artwork downloader resolving metadata URLs to local cache files
// ABOUTME: Hash-keys the cache by URL so repeat metadata updates skip re-fetching
// Package artwork resolves metadata.artwork_url values to local file
// paths, downloading and caching images so a host UI can read them
// straight off disk instead of re-fetching on every metadata update.
package artwork

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Downloader fetches and caches artwork images by URL.
type Downloader struct {
	mu          sync.Mutex
	cacheDir    string
	currentPath string
	client      *http.Client
}

// NewDownloader creates a Downloader backed by a cache directory under
// the OS temp dir.
func NewDownloader() (*Downloader, error) {
	cacheDir := filepath.Join(os.TempDir(), "sendspin-player-artwork")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("artwork: create cache dir: %w", err)
	}

	return &Downloader{
		cacheDir: cacheDir,
		client:   &http.Client{},
	}, nil
}

// Download fetches url into the cache, returning the cached path
// immediately on a repeat request for the same URL. An empty url
// returns an empty path and no error.
func (d *Downloader) Download(url string) (string, error) {
	if url == "" {
		return "", nil
	}

	hash := sha256.Sum256([]byte(url))
	filename := fmt.Sprintf("%x%s", hash[:8], getExtension(url))
	cachePath := filepath.Join(d.cacheDir, filename)

	if _, err := os.Stat(cachePath); err == nil {
		d.setCurrentPath(cachePath)
		return cachePath, nil
	}

	resp, err := d.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("artwork: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork: download %s: HTTP %d", url, resp.StatusCode)
	}

	f, err := os.Create(cachePath)
	if err != nil {
		return "", fmt.Errorf("artwork: create cache file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(cachePath)
		return "", fmt.Errorf("artwork: save cache file: %w", err)
	}

	log.Printf("artwork: cached %s as %s", url, cachePath)
	d.setCurrentPath(cachePath)
	return cachePath, nil
}

func (d *Downloader) setCurrentPath(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentPath = path
}

// CurrentPath returns the path of the most recently resolved artwork.
func (d *Downloader) CurrentPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentPath
}

func getExtension(url string) string {
	url = strings.Split(url, "?")[0]
	ext := filepath.Ext(url)
	if ext == "" {
		ext = ".jpg"
	}
	return ext
}

// Cleanup removes the entire cache directory.
func (d *Downloader) Cleanup() error {
	return os.RemoveAll(d.cacheDir)
}
