package mcpsrv

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/internal/config"
	"github.com/usestring/formsense/internal/logging"
	"github.com/usestring/formsense/internal/mcp"
	"github.com/usestring/formsense/internal/mcp/tools"
	"github.com/usestring/formsense/internal/store"
	"github.com/usestring/formsense/pkg/backend"
	"github.com/usestring/formsense/pkg/probe"
)

// Server is the formsense MCP server.
// It wraps the internal implementation and provides extension points.
type Server struct {
	internal   *mcp.Server
	deps       *Deps
	store      *store.Store
	logCleanup func() error
}

// NewServer creates a new MCP server with builtin formsense tools.
//
// Configuration is loaded from FORMSENSE_CONFIG and the environment; use
// functional options to override logging, add custom tools, etc.
func NewServer(opts ...Option) (*Server, error) {
	loaded, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Build configuration from options
	cfg := &serverConfig{config: loaded}
	for _, opt := range opts {
		opt(cfg)
	}

	// Setup logging
	logCfg := cfg.config.LoggingConfig()
	if cfg.logLevel != "" {
		logCfg.Level = cfg.logLevel
	}
	if cfg.logFile != "" {
		logCfg.FilePath = cfg.logFile
	}
	logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	// Create infrastructure
	suggestionCache, err := cache.NewSuggestionCache(cfg.config.CacheMaxItems)
	if err != nil {
		_ = logCleanup()
		return nil, fmt.Errorf("failed to create suggestion cache: %w", err)
	}

	var st *store.Store
	if !cfg.disableStore {
		dbPath := cfg.config.DBPath
		if cfg.dbPath != "" {
			dbPath = cfg.dbPath
		}
		st, err = store.Open(dbPath)
		if err != nil {
			_ = logCleanup()
			return nil, fmt.Errorf("failed to open backend store: %w", err)
		}
	}

	var backendOpts []backend.Option
	if cfg.httpClient != nil {
		backendOpts = append(backendOpts,
			backend.WithHTTPClient(cfg.httpClient),
			backend.WithProber(probe.New(probe.WithHTTPClient(cfg.httpClient))),
		)
	}

	// Create deps for internal tools and custom tools
	toolDeps := tools.NewDeps(cfg.config, suggestionCache, st, backendOpts...)

	// Create public deps (same values, different type for public API)
	deps := &Deps{
		Config:     toolDeps.Config,
		Discoverer: toolDeps.Discoverer,
		Cache:      toolDeps.Cache,
		Store:      toolDeps.Store,
		tools:      toolDeps,
	}

	// Build internal server options
	var internalOpts []mcp.ServerOption
	if !cfg.disableBuiltinTools {
		internalOpts = append(internalOpts, mcp.WithBuiltinTools())
	}
	if !cfg.disableBuiltinPrompts {
		internalOpts = append(internalOpts, mcp.WithBuiltinPrompts())
	}

	// Add custom extension registration callbacks
	for _, fn := range cfg.toolRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}
	for _, fn := range cfg.promptRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}
	for _, fn := range cfg.resourceRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}

	// Add deferred tool registrations (tools that need Deps access)
	for _, fn := range cfg.deferredToolRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(func(srv *sdkmcp.Server) {
			fn(srv, deps)
		}))
	}

	internal, err := mcp.NewServer(toolDeps, internalOpts...)
	if err != nil {
		s := &Server{store: st, logCleanup: logCleanup}
		return nil, errors.Join(fmt.Errorf("failed to create server: %w", err), s.Close())
	}

	return &Server{
		internal:   internal,
		deps:       deps,
		store:      st,
		logCleanup: logCleanup,
	}, nil
}

// Run starts the MCP server with stdio transport.
// The server runs until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.internal.Run(ctx)
}

// RunHTTP serves the MCP streamable HTTP transport on addr until ctx is
// cancelled. An empty addr uses the configured FORMSENSE_HTTP_ADDR.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.deps.Config.HTTPAddr
	}
	if addr == "" {
		return errors.New("no HTTP address configured")
	}
	return s.internal.RunHTTP(ctx, addr)
}

// Handler returns the HTTP handler RunHTTP serves, for mounting under an
// existing server.
func (s *Server) Handler() http.Handler {
	return s.internal.Handler()
}

// Close releases the backend store and flushes the log file.
func (s *Server) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.logCleanup != nil {
		errs = append(errs, s.logCleanup())
	}
	return errors.Join(errs...)
}

// Deps returns the dependencies for building custom tools.
func (s *Server) Deps() *Deps {
	return s.deps
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *sdkmcp.Server {
	return s.internal.MCPServer()
}
