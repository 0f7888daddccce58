// ABOUTME: Tests for artwork caching
// ABOUTME: Verifies hash-keyed cache filenames and extension fallback
package artwork

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestNewDownloaderCreatesCacheDir(t *testing.T) {
	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	defer dl.Cleanup()

	if _, err := os.Stat(dl.cacheDir); os.IsNotExist(err) {
		t.Error("cache directory was not created")
	}
	if !strings.Contains(dl.cacheDir, "sendspin-player-artwork") {
		t.Errorf("expected cache dir to be namespaced, got %s", dl.cacheDir)
	}
}

func TestDownloadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fake image data"))
	}))
	defer server.Close()

	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	defer dl.Cleanup()

	path, err := dl.Download(server.URL)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if path == "" {
		t.Fatal("expected path to be returned")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artwork file: %v", err)
	}
	if string(content) != "fake image data" {
		t.Errorf("expected content 'fake image data', got %q", string(content))
	}
	if dl.CurrentPath() != path {
		t.Errorf("expected CurrentPath to be %s, got %s", path, dl.CurrentPath())
	}
}

func TestDownloadCachesRepeatRequests(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fake image data"))
	}))
	defer server.Close()

	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	defer dl.Cleanup()

	path1, err := dl.Download(server.URL)
	if err != nil {
		t.Fatalf("first download failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("expected 1 request, got %d", requestCount)
	}

	path2, err := dl.Download(server.URL)
	if err != nil {
		t.Fatalf("second download failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("expected cached download to skip the server, got %d requests", requestCount)
	}
	if path1 != path2 {
		t.Errorf("expected same path for cached download, got %s and %s", path1, path2)
	}
}

func TestDownloadHTTPErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	defer dl.Cleanup()

	_, err = dl.Download(server.URL)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected error to mention 404, got: %v", err)
	}
}

func TestDownloadEmptyURLIsANoop(t *testing.T) {
	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	defer dl.Cleanup()

	path, err := dl.Download("")
	if err != nil {
		t.Errorf("expected no error for empty URL, got: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path for empty URL, got: %s", path)
	}
}

func TestDownloadDistinctURLsProduceDistinctFiles(t *testing.T) {
	server1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("image 1"))
	}))
	defer server1.Close()
	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("image 2"))
	}))
	defer server2.Close()

	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	defer dl.Cleanup()

	path1, err := dl.Download(server1.URL)
	if err != nil {
		t.Fatalf("first download failed: %v", err)
	}
	path2, err := dl.Download(server2.URL)
	if err != nil {
		t.Fatalf("second download failed: %v", err)
	}
	if path1 == path2 {
		t.Error("expected different paths for different URLs")
	}
	if dl.CurrentPath() != path2 {
		t.Errorf("expected CurrentPath to track the most recent download, got %s", dl.CurrentPath())
	}
}

func TestGetExtension(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"http://example.com/image.jpg", ".jpg"},
		{"http://example.com/image.png", ".png"},
		{"http://example.com/image.jpg?size=large", ".jpg"},
		{"http://example.com/image", ".jpg"},
	}

	for _, tt := range tests {
		if got := getExtension(tt.url); got != tt.expected {
			t.Errorf("getExtension(%q) = %q, expected %q", tt.url, got, tt.expected)
		}
	}
}

func TestCleanupRemovesCacheDir(t *testing.T) {
	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	cacheDir := dl.cacheDir

	if err := dl.Cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Error("cache directory still exists after cleanup")
	}
}
