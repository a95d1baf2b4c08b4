package tools

import (
	"context"
	"log/slog"
	"sync"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/internal/config"
	"github.com/usestring/formsense/internal/store"
	"github.com/usestring/formsense/pkg/backend"
	"github.com/usestring/formsense/pkg/classify"
	"github.com/usestring/formsense/pkg/discovery"
	"github.com/usestring/formsense/pkg/types"
)

// Deps contains all dependencies needed by tool handlers.
type Deps struct {
	Config     *config.Config
	Discoverer *discovery.Discoverer
	Cache      *cache.SuggestionCache
	// Store records discovery results. Nil disables persistence.
	Store *store.Store

	backendOpts []backend.Option
	mu          sync.Mutex
	classifiers map[string]*classify.Classifier
}

// NewDeps wires tool dependencies. st may be nil. Every backend built by the
// tools gets the config's backend options followed by opts.
func NewDeps(cfg *config.Config, c *cache.SuggestionCache, st *store.Store, opts ...backend.Option) *Deps {
	backendOpts := append(cfg.BackendOptions(), opts...)
	return &Deps{
		Config:      cfg,
		Discoverer:  discovery.New(backendOpts...),
		Cache:       c,
		Store:       st,
		backendOpts: backendOpts,
		classifiers: make(map[string]*classify.Classifier),
	}
}

// Discover runs a discovery pass and records the results.
func (d *Deps) Discover(ctx context.Context, sets []discovery.CandidateSet, cfg discovery.Config) []types.HealthResult {
	results := d.Discoverer.Discover(ctx, sets, cfg)
	d.record(ctx, results)
	return results
}

// Check probes a single candidate and records the result.
func (d *Deps) Check(ctx context.Context, kind types.BackendKind, host string, port int) types.HealthResult {
	result := d.Discoverer.CheckOne(ctx, kind, host, port, d.Config.ProbeOptions())
	d.record(ctx, []types.HealthResult{result})
	return result
}

func (d *Deps) record(ctx context.Context, results []types.HealthResult) {
	if d.Store == nil || len(results) == 0 {
		return
	}
	if err := d.Store.SaveHealth(ctx, results); err != nil {
		slog.Warn("failed to record backend health", slog.String("error", err.Error()))
	}
}

// ResolveBackend picks the backend for a classification. An explicit host
// wins; otherwise the last healthy backend on record is used, and failing
// that a fresh discovery pass is run.
func (d *Deps) ResolveBackend(ctx context.Context, kind, host string, port int) (backend.Backend, error) {
	if host != "" {
		k := d.Config.DiscoveryConfig().CustomKind
		if kind != "" {
			parsed, err := types.ParseBackendKind(kind)
			if err != nil {
				return nil, ErrInvalidInput(err.Error())
			}
			k = parsed
		}
		b, err := backend.New(k, host, port, d.backendOpts...)
		if err != nil {
			return nil, ErrInvalidInput(err.Error())
		}
		return b, nil
	}

	if d.Store != nil {
		rec, ok, err := d.Store.Active(ctx)
		if err != nil {
			slog.Warn("failed to read active backend", slog.String("error", err.Error()))
		} else if ok {
			return backend.New(rec.Kind, rec.Host, rec.Port, d.backendOpts...)
		}
	}

	results := d.Discover(ctx, d.Config.CandidateSets(), d.Config.DiscoveryConfig())
	active, ok := types.FirstHealthy(results)
	if !ok {
		return nil, ErrBackendUnavailable(len(results))
	}
	return backend.New(active.Kind, active.Host, active.Port, d.backendOpts...)
}

// Classifier returns the classifier bound to b. Classifiers are shared per
// backend identity so concurrent calls for the same chunk collapse into one
// request.
func (d *Deps) Classifier(b backend.Backend) (*classify.Classifier, error) {
	id := backend.Identity(b)

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.classifiers[id]; ok {
		return c, nil
	}
	c, err := classify.New(b, d.Cache)
	if err != nil {
		return nil, err
	}
	if d.classifiers == nil {
		d.classifiers = make(map[string]*classify.Classifier)
	}
	d.classifiers[id] = c
	return c, nil
}
