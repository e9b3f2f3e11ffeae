package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxRedirects bounds the redirect chain followed during download
	DefaultMaxRedirects = 5
	// DefaultTimeout bounds one complete download
	DefaultTimeout = 2 * time.Minute
)

// Config holds provisioner configuration
type Config struct {
	Path           string
	DownloadURL    string
	MinSizeBytes   int64
	MaxRedirects   int
	Timeout        time.Duration
	ExpectedSHA256 string
	// HTTPClient is optional; its redirect policy is overridden.
	HTTPClient *http.Client
}

// Provisioner makes sure the converter executable exists on disk
type Provisioner struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	group  singleflight.Group
}

// New creates a provisioner. Path, DownloadURL and MinSizeBytes are required.
func New(cfg Config, logger *slog.Logger) (*Provisioner, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("executable path is required")
	}
	if strings.TrimSpace(cfg.DownloadURL) == "" {
		return nil, errors.New("download url is required")
	}
	if cfg.MinSizeBytes <= 0 {
		return nil, errors.New("minimum executable size must be greater than 0")
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		client = &copied
	}
	// Redirects are followed by fetch so the hop bound is ours.
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Provisioner{
		cfg:    cfg,
		client: client,
		logger: logger,
	}, nil
}

// Path returns the configured executable location
func (p *Provisioner) Path() string {
	return p.cfg.Path
}

// Status reports the executable currently on disk without downloading anything.
// A nil executable means it is absent.
func (p *Provisioner) Status() (*domain.Executable, error) {
	info, err := os.Stat(p.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat executable: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("executable path %s is not a regular file", p.cfg.Path)
	}
	return &domain.Executable{
		Path:      p.cfg.Path,
		Verified:  true,
		SizeBytes: info.Size(),
	}, nil
}

// Ensure returns the converter executable, downloading it first if it is absent.
// Concurrent callers share one in-flight download.
func (p *Provisioner) Ensure(ctx context.Context) (*domain.Executable, error) {
	exe, err := p.Status()
	if err != nil {
		return nil, domain.NewError(domain.KindProvisioning, "inspect executable", err)
	}
	if exe != nil {
		return exe, nil
	}

	ch := p.group.DoChan(p.cfg.Path, func() (interface{}, error) {
		// Detached so one caller's disconnect doesn't fail everyone waiting on it.
		dlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
		defer cancel()
		return p.download(dlCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, domain.NewError(domain.KindProvisioning, "provision executable", res.Err)
		}
		return res.Val.(*domain.Executable), nil
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindDelivery, "provision executable", fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err()))
	}
}

func (p *Provisioner) download(ctx context.Context) (*domain.Executable, error) {
	// Another process may have finished while we waited.
	if exe, err := p.Status(); err == nil && exe != nil {
		return exe, nil
	}

	start := time.Now()
	p.logger.Info("Downloading converter executable",
		slog.String("url", p.cfg.DownloadURL),
		slog.String("path", p.cfg.Path),
	)

	resp, err := p.fetch(ctx)
	if err != nil {
		p.logger.Error("Converter download failed", slog.Any("error", err))
		return nil, err
	}
	defer resp.Body.Close()

	dir := filepath.Dir(p.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create executable directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.cfg.Path)+"-*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	counter := &countingWriter{w: tmp}
	var digest hash.Hash
	var dst io.Writer = counter
	if p.cfg.ExpectedSHA256 != "" {
		digest = sha256.New()
		dst = io.MultiWriter(counter, digest)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return nil, fmt.Errorf("write executable: %w", err)
	}

	if counter.n < p.cfg.MinSizeBytes {
		p.logger.Error("Downloaded converter is implausibly small",
			slog.Int64("size_bytes", counter.n),
			slog.Int64("min_size_bytes", p.cfg.MinSizeBytes),
		)
		return nil, fmt.Errorf("%w: %d bytes is below the %d byte minimum", domain.ErrInvalidArtifact, counter.n, p.cfg.MinSizeBytes)
	}

	if digest != nil {
		sum := hex.EncodeToString(digest.Sum(nil))
		if !strings.EqualFold(sum, p.cfg.ExpectedSHA256) {
			return nil, fmt.Errorf("%w: sha256 %s does not match expected %s", domain.ErrInvalidArtifact, sum, p.cfg.ExpectedSHA256)
		}
	}

	if err := tmp.Chmod(0o755); err != nil {
		return nil, fmt.Errorf("mark executable: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close executable: %w", err)
	}
	if err := os.Rename(tmpPath, p.cfg.Path); err != nil {
		return nil, fmt.Errorf("install executable: %w", err)
	}
	committed = true

	p.logger.Info("Converter executable installed",
		slog.String("path", p.cfg.Path),
		slog.String("size", humanize.Bytes(uint64(counter.n))),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &domain.Executable{
		Path:      p.cfg.Path,
		Verified:  true,
		SizeBytes: counter.n,
	}, nil
}

// fetch issues GETs along the redirect chain and returns the final 2xx response
func (p *Provisioner) fetch(ctx context.Context) (*http.Response, error) {
	target, err := url.Parse(p.cfg.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("parse download url: %w", err)
	}

	for hops := 0; ; hops++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", target.Redacted(), err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			drain(resp)
			if location == "" {
				return nil, &domain.DownloadFailedError{StatusCode: resp.StatusCode}
			}
			if hops >= p.cfg.MaxRedirects {
				return nil, fmt.Errorf("%w: more than %d", domain.ErrTooManyRedirects, p.cfg.MaxRedirects)
			}
			next, err := target.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
			}
			p.logger.Debug("Following redirect",
				slog.Int("hop", hops+1),
				slog.String("location", next.Redacted()),
			)
			target = next
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			drain(resp)
			return nil, &domain.DownloadFailedError{StatusCode: resp.StatusCode}
		}

		return resp, nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// countingWriter tracks bytes as they are written
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
