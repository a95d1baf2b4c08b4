// Package discovery finds a healthy local inference backend.
//
// Candidates are scanned sequentially. Within a backend kind the first healthy
// (host, port) wins and the remaining candidates for that kind are skipped. An
// explicitly configured host is tried before any default and, when healthy,
// ends discovery on the spot.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/usestring/formsense/pkg/backend"
	"github.com/usestring/formsense/pkg/probe"
	"github.com/usestring/formsense/pkg/types"
)

// DefaultHost is scanned when no candidate host is given.
const DefaultHost = "localhost"

// Endpoint is one (host, port) candidate.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CandidateSet is an ordered list of endpoints for one backend kind.
type CandidateSet struct {
	Kind      types.BackendKind `json:"kind"`
	Endpoints []Endpoint        `json:"endpoints"`
}

// DefaultCandidateSets builds the localhost scan list. Empty port lists fall
// back to the kind's conventional port.
func DefaultCandidateSets(ollamaPorts, lmStudioPorts []int) []CandidateSet {
	return []CandidateSet{
		localhostSet(types.BackendOllama, ollamaPorts),
		localhostSet(types.BackendLMStudio, lmStudioPorts),
	}
}

func localhostSet(kind types.BackendKind, ports []int) CandidateSet {
	if len(ports) == 0 {
		ports = []int{kind.DefaultPort()}
	}
	set := CandidateSet{Kind: kind}
	for _, p := range ports {
		set.Endpoints = append(set.Endpoints, Endpoint{Host: DefaultHost, Port: p})
	}
	return set
}

// Config controls one discovery run.
type Config struct {
	// CustomHost, when set, is checked before every default candidate.
	CustomHost string
	// CustomPort defaults to the custom kind's conventional port.
	CustomPort int
	// CustomKind defaults to lmstudio.
	CustomKind types.BackendKind
	Probe      probe.Options
}

// Discoverer scans candidates with a shared set of backend options.
type Discoverer struct {
	backendOpts []backend.Option
}

// New creates a Discoverer. The options are applied to every backend it builds.
func New(opts ...backend.Option) *Discoverer {
	return &Discoverer{backendOpts: opts}
}

// Discover checks the custom host (if any) and then each candidate set in
// order. It returns one HealthResult per candidate actually checked; failures
// are recorded, never returned as errors.
func (d *Discoverer) Discover(ctx context.Context, sets []CandidateSet, cfg Config) []types.HealthResult {
	start := time.Now()
	var results []types.HealthResult

	if cfg.CustomHost != "" {
		kind := cfg.CustomKind
		if kind == "" {
			kind = types.BackendLMStudio
		}
		r := d.CheckOne(ctx, kind, cfg.CustomHost, cfg.CustomPort, cfg.Probe)
		results = append(results, r)
		if r.Healthy {
			logSummary(cfg.Probe.Verbose, results, start)
			return results
		}
	}

	for _, set := range sets {
		for _, ep := range set.Endpoints {
			if ctx.Err() != nil {
				logSummary(cfg.Probe.Verbose, results, start)
				return results
			}
			r := d.CheckOne(ctx, set.Kind, ep.Host, ep.Port, cfg.Probe)
			results = append(results, r)
			if r.Healthy {
				break
			}
		}
	}

	logSummary(cfg.Probe.Verbose, results, start)
	return results
}

// CheckOne health-checks a single candidate. An unknown kind or unusable host
// yields an unhealthy result, not an error.
func (d *Discoverer) CheckOne(ctx context.Context, kind types.BackendKind, host string, port int, opts probe.Options) types.HealthResult {
	if host == "" {
		host = DefaultHost
	}
	b, err := backend.New(kind, host, port, d.backendOpts...)
	if err != nil {
		return types.HealthResult{
			Kind:  kind,
			Host:  host,
			Port:  port,
			Error: err.Error(),
		}
	}

	r := b.ProbeHealth(ctx, opts)
	level := slog.LevelDebug
	if opts.Verbose {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "backend checked",
		slog.String("kind", string(kind)),
		slog.String("base_url", b.BaseURL()),
		slog.Bool("healthy", r.Healthy),
		slog.Int("paths_tried", len(r.Attempts)),
	)
	return r
}

func logSummary(verbose bool, results []types.HealthResult, start time.Time) {
	active, ok := types.FirstHealthy(results)
	attrs := []any{
		slog.Int("candidates", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if ok {
		attrs = append(attrs, slog.String("active", active.Endpoint))
	}
	if verbose || !ok {
		slog.Info("discovery finished", attrs...)
		return
	}
	slog.Debug("discovery finished", attrs...)
}
