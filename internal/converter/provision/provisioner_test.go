package provision

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMinSize = 1024
	testTimeout = 5 * time.Second
	testTick    = 10 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// binaryServer serves payload at /binary after `redirects` hops starting at /hop/1
type binaryServer struct {
	*httptest.Server
	payload   []byte
	redirects int
	downloads atomic.Int32
}

func newBinaryServer(t *testing.T, payload []byte, redirects int) *binaryServer {
	t.Helper()
	bs := &binaryServer{payload: payload, redirects: redirects}
	mux := http.NewServeMux()
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(r.URL.Path, "/hop/%d", &n)
		if n >= bs.redirects {
			http.Redirect(w, r, "/binary", http.StatusFound)
			return
		}
		// host-relative location
		http.Redirect(w, r, fmt.Sprintf("%d", n+1), http.StatusMovedPermanently)
	})
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		bs.downloads.Add(1)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(bs.payload)
	})
	bs.Server = httptest.NewServer(mux)
	t.Cleanup(bs.Close)
	return bs
}

// startURL returns the entry point producing exactly bs.redirects redirects
func (bs *binaryServer) startURL() string {
	if bs.redirects == 0 {
		return bs.URL + "/binary"
	}
	return bs.URL + "/hop/1"
}

func newTestProvisioner(t *testing.T, url string, mutate func(*Config)) (*Provisioner, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bin", "yt-dlp")
	cfg := Config{
		Path:         path,
		DownloadURL:  url,
		MinSizeBytes: testMinSize,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg, discardLogger())
	require.NoError(t, err)
	return p, path
}

func TestNew_RequiresConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing path", cfg: Config{DownloadURL: "http://x", MinSizeBytes: 1}},
		{name: "missing url", cfg: Config{Path: "/tmp/x", MinSizeBytes: 1}},
		{name: "missing threshold", cfg: Config{Path: "/tmp/x", DownloadURL: "http://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, discardLogger())
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestEnsure_DownloadsAndMarksExecutable(t *testing.T) {
	payload := bytes.Repeat([]byte("B"), 4096)
	srv := newBinaryServer(t, payload, 0)
	p, path := newTestProvisioner(t, srv.startURL(), nil)

	exe, err := p.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, exe.Path)
	assert.True(t, exe.Verified)
	assert.Equal(t, int64(len(payload)), exe.SizeBytes)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "owner execute bit must be set")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// no temp leftovers next to the executable
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEnsure_IsIdempotent(t *testing.T) {
	srv := newBinaryServer(t, bytes.Repeat([]byte("B"), 2048), 1)
	p, _ := newTestProvisioner(t, srv.startURL(), nil)

	first, err := p.Ensure(context.Background())
	require.NoError(t, err)
	second, err := p.Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), srv.downloads.Load())
	assert.Equal(t, first.Path, second.Path)
	assert.True(t, second.Verified)
}

func TestEnsure_TrustsExistingFile(t *testing.T) {
	srv := newBinaryServer(t, bytes.Repeat([]byte("B"), 2048), 0)
	p, path := newTestProvisioner(t, srv.startURL(), nil)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	// smaller than the threshold but already present: trusted as-is
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	exe, err := p.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len("#!/bin/sh\n")), exe.SizeBytes)
	assert.Equal(t, int32(0), srv.downloads.Load())
}

func TestEnsure_RedirectBound(t *testing.T) {
	tests := []struct {
		name      string
		redirects int
		wantErr   error
	}{
		{name: "single redirect", redirects: 1},
		{name: "five redirects", redirects: 5},
		{name: "six redirects", redirects: 6, wantErr: domain.ErrTooManyRedirects},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newBinaryServer(t, bytes.Repeat([]byte("B"), 2048), tt.redirects)
			p, path := newTestProvisioner(t, srv.startURL(), nil)

			exe, err := p.Ensure(context.Background())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.KindProvisioning, domain.KindOf(err))
				assert.Nil(t, exe)
				assert.NoFileExists(t, path)
				assert.Equal(t, int32(0), srv.downloads.Load())
				return
			}
			require.NoError(t, err)
			assert.FileExists(t, path)
			assert.Equal(t, int32(1), srv.downloads.Load())
		})
	}
}

func TestEnsure_RejectsUndersizedDownload(t *testing.T) {
	htmlPage := []byte("<html><body>You are being redirected.</body></html>")
	srv := newBinaryServer(t, htmlPage, 2)
	p, path := newTestProvisioner(t, srv.startURL(), nil)

	exe, err := p.Ensure(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
	assert.Equal(t, domain.KindProvisioning, domain.KindOf(err))
	assert.Nil(t, exe)
	assert.NoFileExists(t, path)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial download must be discarded")
}

func TestEnsure_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	p, path := newTestProvisioner(t, srv.URL, nil)

	_, err := p.Ensure(context.Background())
	require.Error(t, err)

	var dlErr *domain.DownloadFailedError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
	assert.NoFileExists(t, path)
}

func TestEnsure_RedirectWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))
	t.Cleanup(srv.Close)
	p, _ := newTestProvisioner(t, srv.URL, nil)

	_, err := p.Ensure(context.Background())
	var dlErr *domain.DownloadFailedError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusFound, dlErr.StatusCode)
}

func TestEnsure_ChecksumVerification(t *testing.T) {
	payload := bytes.Repeat([]byte("C"), 2048)
	sum := sha256.Sum256(payload)

	t.Run("matching checksum", func(t *testing.T) {
		srv := newBinaryServer(t, payload, 0)
		p, path := newTestProvisioner(t, srv.startURL(), func(c *Config) {
			c.ExpectedSHA256 = hex.EncodeToString(sum[:])
		})
		_, err := p.Ensure(context.Background())
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("mismatched checksum", func(t *testing.T) {
		srv := newBinaryServer(t, payload, 0)
		p, path := newTestProvisioner(t, srv.startURL(), func(c *Config) {
			c.ExpectedSHA256 = "deadbeef"
		})
		_, err := p.Ensure(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
		assert.NoFileExists(t, path)
	})
}

func TestEnsure_ConcurrentCallersShareDownload(t *testing.T) {
	release := make(chan struct{})
	var downloads atomic.Int32
	payload := bytes.Repeat([]byte("D"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		<-release
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	p, path := newTestProvisioner(t, srv.URL, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exe, err := p.Ensure(context.Background())
			if err == nil && exe.SizeBytes != int64(len(payload)) {
				err = fmt.Errorf("unexpected size %d", exe.SizeBytes)
			}
			errs <- err
		}()
	}

	// let every caller reach the in-flight download before releasing it
	require.Eventually(t, func() bool { return downloads.Load() == 1 }, testTimeout, testTick)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), downloads.Load())
	assert.FileExists(t, path)
}

func TestStatus(t *testing.T) {
	p, path := newTestProvisioner(t, "http://127.0.0.1:1/never", nil)

	exe, err := p.Status()
	require.NoError(t, err)
	assert.Nil(t, exe)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("bin"), 0o755))

	exe, err = p.Status()
	require.NoError(t, err)
	require.NotNil(t, exe)
	assert.Equal(t, path, exe.Path)
	assert.Equal(t, path, p.Path())
}
