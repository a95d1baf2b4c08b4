// Package backend talks to locally hosted inference servers.
//
// Each supported kind has its own REST conventions; both are exposed through
// the Backend interface so callers never branch on the kind.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/usestring/formsense/pkg/probe"
	"github.com/usestring/formsense/pkg/types"
)

// DefaultRequestTimeout bounds one classification request.
const DefaultRequestTimeout = 3000 * time.Millisecond

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 4 << 20

// Backend is a local inference server.
type Backend interface {
	Kind() types.BackendKind
	Host() string
	Port() int
	BaseURL() string
	// ProbeHealth tries the kind's health paths in order; the first healthy path wins.
	ProbeHealth(ctx context.Context, opts probe.Options) types.HealthResult
	// Classify sends prompt and returns the model's raw output text.
	Classify(ctx context.Context, prompt string) (string, error)
}

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

var healthPaths = map[types.BackendKind][]string{
	types.BackendOllama:   {"/v1/models", "/v1/engines", "/v1/health", "/"},
	types.BackendLMStudio: {"/api/health", "/api/status", "/health", "/status", "/api/v1/health", "/"},
}

// HealthPaths returns the health-check paths tried for kind, in order.
func HealthPaths(kind types.BackendKind) []string {
	return append([]string(nil), healthPaths[kind]...)
}

// Option is a functional option for configuring a Backend.
type Option func(*endpoint)

// WithHTTPClient sets the HTTP client used for classification requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(e *endpoint) {
		e.httpClient = httpClient
	}
}

// WithProber sets the probe client used for health checks.
func WithProber(p *probe.Client) Option {
	return func(e *endpoint) {
		e.prober = p
	}
}

// WithRequestTimeout bounds each classification request.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *endpoint) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

// WithModel pins the model name and skips model discovery.
func WithModel(model string) Option {
	return func(e *endpoint) {
		e.model = model
	}
}

// New creates a Backend for kind at host:port. A host may carry its own scheme
// ("https://gpu-box"); otherwise http is assumed.
func New(kind types.BackendKind, host string, port int, opts ...Option) (Backend, error) {
	if _, ok := healthPaths[kind]; !ok {
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
	if port <= 0 {
		port = kind.DefaultPort()
	}

	e := &endpoint{
		kind:           kind,
		host:           host,
		port:           port,
		baseURL:        buildBaseURL(host, port),
		httpClient:     http.DefaultClient,
		prober:         probe.New(),
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	switch kind {
	case types.BackendOllama:
		return &ollamaBackend{endpoint: e}, nil
	default:
		return &lmStudioBackend{endpoint: e}, nil
	}
}

// Identity is a stable string naming the backend, used in cache fingerprints.
func Identity(b Backend) string {
	return fmt.Sprintf("%s:%s:%d", b.Kind(), b.Host(), b.Port())
}

func buildBaseURL(host string, port int) string {
	scheme := "http"
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			scheme = u.Scheme
			host = u.Hostname()
		}
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// endpoint holds what both backend kinds share.
type endpoint struct {
	kind           types.BackendKind
	host           string
	port           int
	baseURL        string
	httpClient     *http.Client
	prober         *probe.Client
	requestTimeout time.Duration
	model          string
}

func (e *endpoint) Kind() types.BackendKind { return e.kind }
func (e *endpoint) Host() string            { return e.host }
func (e *endpoint) Port() int               { return e.port }
func (e *endpoint) BaseURL() string         { return e.baseURL }

func (e *endpoint) ProbeHealth(ctx context.Context, opts probe.Options) types.HealthResult {
	result := types.HealthResult{
		Kind: e.kind,
		Host: e.host,
		Port: e.port,
	}
	for _, path := range healthPaths[e.kind] {
		r := e.prober.Probe(ctx, e.baseURL+path, opts)
		if r.Endpoint == "" {
			r.Endpoint = e.baseURL + path
		}
		result.Attempts = append(result.Attempts, r)
		if r.OK {
			result.Healthy = true
			result.Endpoint = r.Endpoint
			return result
		}
		if ctx.Err() != nil {
			break
		}
	}
	if n := len(result.Attempts); n > 0 {
		result.Error = result.Attempts[n-1].Error
	}
	return result
}

// get performs a GET bounded by the request timeout and returns the body.
func (e *endpoint) get(ctx context.Context, path string) ([]byte, error) {
	return e.do(ctx, http.MethodGet, path, nil)
}

// postJSON marshals body, POSTs it, and returns the response body.
func (e *endpoint) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return e.do(ctx, http.MethodPost, path, payload)
}

func (e *endpoint) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	start := time.Now()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		slog.Debug("backend request failed",
			slog.String("method", method),
			slog.String("url", e.baseURL+path),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	slog.Debug("backend request completed",
		slog.String("method", method),
		slog.String("url", e.baseURL+path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(data)), 200)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
