package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// ErrExhausted is wrapped by the error returned once every attempt failed.
var ErrExhausted = errors.New("download exhausted")

// partSuffix marks an in-progress download next to its destination.
const partSuffix = ".part"

// ProgressFunc receives bytes written so far and the expected total, or -1
// when the server did not announce a length.
type ProgressFunc func(written, total int64)

// Config holds the retry and timeout policy.
type Config struct {
	MaxAttempts     int
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	TransferTimeout time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	MaxRedirects    int
	UserAgent       string
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		ConnectTimeout:  30 * time.Second,
		ReadTimeout:     30 * time.Second,
		TransferTimeout: 30 * time.Minute,
		BackoffBase:     time.Second,
		BackoffMax:      30 * time.Second,
		MaxRedirects:    5,
		UserAgent:       "MixOS-Fetcher/1.0",
	}
}

// Result describes a completed download.
type Result struct {
	Path     string
	Bytes    int64
	Attempts int
	// Cached is set when the destination already existed.
	Cached bool
}

// Fetcher downloads a URL to a file with bounded retries.
type Fetcher struct {
	cfg     Config
	client  *retryablehttp.Client
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a fetcher. logger and metrics may be nil.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := cleanhttp.DefaultPooledTransport()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.ReadTimeout

	maxRedirects := cfg.MaxRedirects
	httpClient := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	// Attempts are counted here rather than inside the client so every
	// failure mode, including body stalls, shares one budget.
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.RetryMax = 0
	client.Logger = logging.NewLeveled(logger)
	client.CheckRetry = func(ctx context.Context, _ *http.Response, _ error) (bool, error) {
		return false, ctx.Err()
	}

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
}

// Config returns the policy in effect.
func (f *Fetcher) Config() Config {
	return f.cfg
}

// Fetch downloads url to dest. An existing dest is treated as a complete
// earlier download and returned without network I/O.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, progress ProgressFunc) (*Result, error) {
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		f.metrics.RecordFetchAttempt("cached", 0)
		f.logger.Debug("artifact already present", zap.String("path", dest))
		return &Result{Path: dest, Bytes: info.Size(), Cached: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, apperr.New(apperr.KindTransientIO, "fetch", url, err)
	}

	part := dest + partSuffix
	var (
		lastErr  error
		lastResp *http.Response
	)

	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := f.backoff(attempt-1, lastResp)
			f.logger.Warn("download attempt failed, backing off",
				zap.String("url", url),
				zap.Int("attempt", attempt-1),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, wait); err != nil {
				return nil, canceled(url, err)
			}
		}

		written, resp, err := f.attempt(ctx, url, part, progress)
		if err == nil {
			if err := os.Rename(part, dest); err != nil {
				_ = os.Remove(part)
				return nil, apperr.New(apperr.KindTransientIO, "fetch", url, err)
			}
			f.metrics.RecordFetchAttempt("success", written)
			f.logger.Info("download complete",
				zap.String("url", url),
				zap.String("path", dest),
				zap.Int64("bytes", written),
				zap.Int("attempts", attempt),
			)
			return &Result{Path: dest, Bytes: written, Attempts: attempt}, nil
		}

		_ = os.Remove(part)
		if ctx.Err() != nil {
			return nil, canceled(url, ctx.Err())
		}

		outcome := "error"
		if apperr.Is(err, apperr.KindTimeout) {
			outcome = "timeout"
		}
		f.metrics.RecordFetchAttempt(outcome, written)

		lastErr, lastResp = err, resp
	}

	f.logger.Error("download exhausted",
		zap.String("url", url),
		zap.Int("attempts", f.cfg.MaxAttempts),
		zap.Error(lastErr),
	)
	return nil, apperr.New(apperr.KindOf(lastErr), "fetch", url,
		fmt.Errorf("%w after %d attempts: %w", ErrExhausted, f.cfg.MaxAttempts, lastErr))
}

// attempt performs one GET into part. The returned response, if any, has a
// closed body and is kept only for its Retry-After header.
func (f *Fetcher) attempt(ctx context.Context, url, part string, progress ProgressFunc) (int64, *http.Response, error) {
	actx, cancel := context.WithTimeout(ctx, f.cfg.TransferTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, apperr.New(apperr.KindInvalid, "fetch", url, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, f.classify(url, actx, false, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, resp, apperr.Newf(apperr.KindTransientIO, "fetch", url, "unexpected status %s", resp.Status)
	}

	file, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, nil, apperr.New(apperr.KindTransientIO, "fetch", url, err)
	}

	body := newStallReader(resp.Body, f.cfg.ReadTimeout, cancel)
	defer body.stop()

	counter := &countingWriter{w: file, total: resp.ContentLength, progress: progress}
	_, copyErr := io.Copy(counter, body)
	closeErr := file.Close()

	if copyErr != nil {
		return counter.written, nil, f.classify(url, actx, body.stalled(), copyErr)
	}
	if closeErr != nil {
		return counter.written, nil, apperr.New(apperr.KindTransientIO, "fetch", url, closeErr)
	}
	if resp.ContentLength >= 0 && counter.written != resp.ContentLength {
		return counter.written, nil, apperr.Newf(apperr.KindTransientIO, "fetch", url,
			"short body: got %d of %d bytes", counter.written, resp.ContentLength)
	}
	return counter.written, nil, nil
}

func (f *Fetcher) classify(url string, actx context.Context, stalled bool, err error) error {
	switch {
	case stalled:
		return apperr.Newf(apperr.KindTimeout, "fetch", url, "no data received for %s: %w", f.cfg.ReadTimeout, err)
	case errors.Is(actx.Err(), context.DeadlineExceeded):
		return apperr.Newf(apperr.KindTimeout, "fetch", url, "transfer exceeded %s: %w", f.cfg.TransferTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.New(apperr.KindTimeout, "fetch", url, err)
	}
	return apperr.New(apperr.KindTransientIO, "fetch", url, err)
}

// backoff waits BackoffBase * 2^(retry-1). A Retry-After header replaces
// the schedule but never exceeds BackoffMax.
func (f *Fetcher) backoff(retry int, resp *http.Response) time.Duration {
	wait := retryablehttp.DefaultBackoff(f.cfg.BackoffBase, f.cfg.BackoffMax, retry-1, resp)
	return max(0, min(wait, f.cfg.BackoffMax))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func canceled(url string, err error) error {
	return apperr.FromContext("fetch", url, err)
}

type countingWriter struct {
	w        io.Writer
	written  int64
	total    int64
	progress ProgressFunc
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += int64(n)
	if c.progress != nil && n > 0 {
		c.progress(c.written, c.total)
	}
	return n, err
}
