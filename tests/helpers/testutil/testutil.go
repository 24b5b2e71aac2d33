// Package testutil provides testing utilities and helpers for backend tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/config"
)

// ArtifactServer serves fixed payloads by path and counts requests.
type ArtifactServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

// NewArtifactServer starts a server for files keyed by URL path
// (for example "/alpine.tar.gz"). Unknown paths return 404.
func NewArtifactServer(t *testing.T, files map[string][]byte) *ArtifactServer {
	t.Helper()
	s := &ArtifactServer{
		files: files,
		hits:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		data, ok := s.files[r.URL.Path]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

// Hits returns how many requests reached path.
func (s *ArtifactServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TestConfig returns configuration rooted in per-test directories with
// short timeouts.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DownloadsDir = t.TempDir()
	cfg.Storage.DataDir = t.TempDir()
	cfg.RateLimit.Enabled = false
	cfg.Fetch.ReadTimeout = 2 * time.Second
	cfg.Fetch.TransferTimeout = 10 * time.Second
	cfg.Fetch.BackoffBase = 10 * time.Millisecond
	cfg.Fetch.BackoffMax = 100 * time.Millisecond
	cfg.Lifecycle.StopGrace = 500 * time.Millisecond
	return cfg
}
