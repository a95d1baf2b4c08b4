package mcp

import (
	"context"
	"errors"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/internal/mcp/prompts"
	"github.com/usestring/formsense/internal/mcp/tools"
)

// Version is reported to MCP clients.
const Version = "0.3.0"

const instructions = `formsense classifies the fields of web forms.
Start with formsense_analyze_form for pattern-based types. Send the weak fields to
formsense_classify_fields, which runs a local Ollama or LM Studio model (discovered
automatically unless a backend is given). Fold the suggestions back in with
formsense_merge_suggestions; passing a field name with false in preferences reverts it.`

// Server wraps the MCP server with formsense components.
type Server struct {
	mcpServer *sdkmcp.Server
	deps      *tools.Deps

	builtinTools   bool
	builtinPrompts bool
	registrations  []func(*sdkmcp.Server)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithBuiltinTools enables the formsense tools, and the backend resources
// when a store is configured.
func WithBuiltinTools() ServerOption {
	return func(s *Server) { s.builtinTools = true }
}

// WithBuiltinPrompts enables the autofill_form prompt.
func WithBuiltinPrompts() ServerOption {
	return func(s *Server) { s.builtinPrompts = true }
}

// WithCustomRegistration adds a callback that receives the underlying MCP
// server after the builtins are registered.
func WithCustomRegistration(fn func(*sdkmcp.Server)) ServerOption {
	return func(s *Server) {
		s.registrations = append(s.registrations, fn)
	}
}

// NewServer creates a new MCP server over deps.
func NewServer(deps *tools.Deps, opts ...ServerOption) (*Server, error) {
	switch {
	case deps == nil:
		return nil, errors.New("deps is required")
	case deps.Config == nil:
		return nil, errors.New("deps.Config is required")
	case deps.Discoverer == nil:
		return nil, errors.New("deps.Discoverer is required")
	case deps.Cache == nil:
		return nil, errors.New("deps.Cache is required")
	}

	s := &Server{deps: deps}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "formsense-mcp", Version: Version},
		&sdkmcp.ServerOptions{Instructions: instructions},
	)
	s.mcpServer.AddReceivingMiddleware(LoggingMiddleware())

	if s.builtinTools {
		tools.Register(s.mcpServer, deps)
		s.registerResources()
	}
	if s.builtinPrompts {
		prompts.Register(s.mcpServer, &prompts.Config{
			LowConfidenceThreshold: deps.Config.LowConfidenceThreshold,
			BatchSize:              deps.Config.BatchSize,
			StoreEnabled:           deps.Store != nil,
		})
	}
	for _, fn := range s.registrations {
		fn(s.mcpServer)
	}

	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &sdkmcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *sdkmcp.Server {
	return s.mcpServer
}
