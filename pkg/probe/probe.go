// Package probe issues bounded-timeout health GETs with exponential backoff.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/usestring/formsense/pkg/types"
)

// Defaults for probe options.
const (
	DefaultTimeout = 1500 * time.Millisecond
	DefaultRetries = 3
	DefaultBackoff = 1.5
)

// Options controls a single Probe call.
type Options struct {
	Timeout time.Duration // per-attempt timeout, also the backoff seed
	Retries int           // total attempts, not additional ones
	Backoff float64       // backoff multiplier
	Verbose bool          // log every attempt at info level
}

// DefaultOptions returns the standard probe options.
func DefaultOptions() Options {
	return Options{
		Timeout: DefaultTimeout,
		Retries: DefaultRetries,
		Backoff: DefaultBackoff,
	}
}

func (o Options) normalized() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 1 {
		o.Retries = 1
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	return o
}

// Delay returns the wait before attempt k (k >= 2): timeout * backoff^(k-2).
func (o Options) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	o = o.normalized()
	return time.Duration(math.Round(float64(o.Timeout) * math.Pow(o.Backoff, float64(attempt-2))))
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client probes URLs.
type Client struct {
	httpClient *http.Client
	sleep      SleepFunc
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Per-attempt timeouts are applied
// through the request context, not the client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// New creates a probe client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Probe GETs rawURL until it answers 2xx or the attempts run out.
// It never returns an error: every failure is folded into the result.
func (c *Client) Probe(ctx context.Context, rawURL string, opts Options) types.ProbeResult {
	opts = opts.normalized()

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		msg := fmt.Sprintf("invalid probe URL %q", rawURL)
		if err != nil {
			msg = fmt.Sprintf("invalid probe URL %q: %v", rawURL, err)
		}
		return types.ProbeResult{Endpoint: rawURL, Error: msg}
	}

	var last types.ProbeResult
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, opts.Delay(attempt)); err != nil {
				last.Error = err.Error()
				break
			}
		}

		last = c.attempt(ctx, u.String(), opts.Timeout)
		last.Attempts = attempt
		logAttempt(ctx, opts.Verbose, last, attempt)
		if last.OK {
			return last
		}
		if ctx.Err() != nil {
			break
		}
	}
	return last
}

// attempt performs one GET bounded by timeout.
func (c *Client) attempt(ctx context.Context, target string, timeout time.Duration) types.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := types.ProbeResult{Endpoint: target}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = fmt.Sprintf("creating request: %v", err)
		return result
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result
	}
	result.OK = true
	return result
}

func logAttempt(ctx context.Context, verbose bool, r types.ProbeResult, attempt int) {
	level := slog.LevelDebug
	if verbose {
		level = slog.LevelInfo
	}
	attrs := []slog.Attr{
		slog.String("url", r.Endpoint),
		slog.Int("attempt", attempt),
		slog.Int("status", r.Status),
		slog.Int64("latency_ms", r.LatencyMs),
	}
	if r.OK {
		slog.LogAttrs(ctx, level, "probe succeeded", attrs...)
		return
	}
	attrs = append(attrs, slog.String("error", r.Error))
	slog.LogAttrs(ctx, level, "probe attempt failed", attrs...)
}
