package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/internal/mcp/tools"
	"github.com/usestring/formsense/internal/store"
)

// Resource URIs:
//   formsense://backends/active
//   formsense://backends

const (
	activeBackendURI = "formsense://backends/active"
	backendsURI      = "formsense://backends"
)

// activeBackend is the body of the active backend resource.
type activeBackend struct {
	Kind      string `json:"kind"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Endpoint  string `json:"endpoint,omitempty"`
	CheckedAt string `json:"checked_at"`
}

// registerResources registers resources and their handlers.
// Both read the backend store, so nothing is registered without one.
func (s *Server) registerResources() {
	if s.deps.Store == nil {
		return
	}

	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         activeBackendURI,
		Name:        "Active Backend",
		Description: "The most recently checked healthy inference backend. formsense_classify_fields uses it when no backend is given.",
		MIMEType:    tools.MimeJSON,
		Annotations: &sdkmcp.Annotations{
			Audience: []sdkmcp.Role{"assistant"},
			Priority: 0.6,
		},
	}, s.handleResourceActiveBackend)

	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         backendsURI,
		Name:        "Backend Health Log",
		Description: "Last recorded health of every backend candidate ever checked. Use formsense_discover_backends to refresh it.",
		MIMEType:    tools.MimeJSON,
		Annotations: &sdkmcp.Annotations{
			Audience: []sdkmcp.Role{"assistant"},
			Priority: 0.3,
		},
	}, s.handleResourceBackends)
}

func (s *Server) handleResourceActiveBackend(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	rec, ok, err := s.deps.Store.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading active backend: %w", err)
	}
	if !ok {
		return nil, sdkmcp.ResourceNotFoundError(req.Params.URI)
	}
	return toResourceResult(req.Params.URI, activeBackend{
		Kind:      string(rec.Kind),
		Host:      rec.Host,
		Port:      rec.Port,
		Endpoint:  rec.Endpoint,
		CheckedAt: rec.CheckedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (s *Server) handleResourceBackends(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	records, err := s.deps.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing backends: %w", err)
	}
	if records == nil {
		records = []store.Record{}
	}
	return toResourceResult(req.Params.URI, records)
}

// toResourceResult converts content to a ReadResourceResult.
func toResourceResult(uri string, content any) (*sdkmcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing resource: %w", err)
	}

	return &sdkmcp.ReadResourceResult{
		Contents: []*sdkmcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: tools.MimeJSON,
				Text:     string(data),
			},
		},
	}, nil
}
