package mcpsrv

import (
	"context"
	"net/http"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/internal/config"
)

// serverConfig holds configuration built from options.
type serverConfig struct {
	config     *config.Config
	httpClient *http.Client

	// Logging overrides
	logLevel string
	logFile  string

	// Store overrides
	dbPath       string
	disableStore bool

	disableBuiltinTools   bool
	disableBuiltinPrompts bool

	toolRegistrations     []func(*mcp.Server)
	promptRegistrations   []func(*mcp.Server)
	resourceRegistrations []func(*mcp.Server)

	// Run after Deps exist.
	deferredToolRegistrations []func(*mcp.Server, *Deps)
}

// Option configures the server.
type Option func(*serverConfig)

// WithLogLevel sets the log level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(cfg *serverConfig) {
		cfg.logLevel = level
	}
}

// WithLogFile sets the log file path.
// If empty, logs are written to stderr only.
func WithLogFile(path string) Option {
	return func(cfg *serverConfig) {
		cfg.logFile = path
	}
}

// WithHTTPClient sets the HTTP client used for backend health probes and
// classification requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *serverConfig) {
		cfg.httpClient = c
	}
}

// WithDBPath sets the SQLite file that records backend health.
func WithDBPath(path string) Option {
	return func(cfg *serverConfig) {
		cfg.dbPath = path
	}
}

// WithoutStore disables the backend health record. Every classification
// without an explicit backend then runs discovery.
func WithoutStore() Option {
	return func(cfg *serverConfig) {
		cfg.disableStore = true
	}
}

// WithoutBuiltinTools disables the formsense tools and backend resources.
func WithoutBuiltinTools() Option {
	return func(cfg *serverConfig) {
		cfg.disableBuiltinTools = true
	}
}

// WithoutBuiltinPrompts disables the autofill_form prompt.
func WithoutBuiltinPrompts() Option {
	return func(cfg *serverConfig) {
		cfg.disableBuiltinPrompts = true
	}
}

// WithTool registers a custom tool. Out is checked with [AddTool] when the
// server is built.
//
//	type FieldCountInput struct {
//	    FormHTML string `json:"form_html"`
//	}
//
//	type FieldCountOutput struct {
//	    Count int `json:"count"`
//	}
//
//	mcpsrv.WithTool(
//	    &mcp.Tool{Name: "count_fields", Description: "Count the fields of a form"},
//	    func(ctx context.Context, req *mcp.CallToolRequest, in FieldCountInput) (*mcp.CallToolResult, FieldCountOutput, error) {
//	        res, err := analyzer.Analyze(in.FormHTML)
//	        if err != nil {
//	            return nil, FieldCountOutput{}, err
//	        }
//	        return nil, FieldCountOutput{Count: res.Summary.TotalFields}, nil
//	    },
//	)
func WithTool[In, Out any](tool *mcp.Tool, handler func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error)) Option {
	return func(cfg *serverConfig) {
		cfg.toolRegistrations = append(cfg.toolRegistrations, func(srv *mcp.Server) {
			AddTool(srv, tool, handler)
		})
	}
}

// WithDepsTool registers a custom tool built from Deps, for tools that need a
// classifier, the store or the configuration.
//
//	mcpsrv.WithDepsTool(
//	    &mcp.Tool{Name: "count_suggestions", Description: "Count AI suggestions for a form"},
//	    func(d *mcpsrv.Deps) func(ctx context.Context, req *mcp.CallToolRequest, in MyInput) (*mcp.CallToolResult, MyOutput, error) {
//	        return func(ctx context.Context, req *mcp.CallToolRequest, in MyInput) (*mcp.CallToolResult, MyOutput, error) {
//	            c, err := d.Classifier(ctx, "", "", 0)
//	            if err != nil {
//	                return nil, MyOutput{}, err
//	            }
//	            res := c.Classify(ctx, in.FormHTML, in.Fields, d.Config.ClassifyOptions())
//	            return nil, MyOutput{Count: len(res.Suggestions)}, nil
//	        }
//	    },
//	)
func WithDepsTool[In, Out any](tool *mcp.Tool, builder func(*Deps) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error)) Option {
	return func(cfg *serverConfig) {
		cfg.deferredToolRegistrations = append(cfg.deferredToolRegistrations, func(srv *mcp.Server, deps *Deps) {
			AddTool(srv, tool, builder(deps))
		})
	}
}

// WithPrompt registers a custom prompt.
func WithPrompt(prompt *mcp.Prompt, handler func(context.Context, *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)) Option {
	return func(cfg *serverConfig) {
		cfg.promptRegistrations = append(cfg.promptRegistrations, func(srv *mcp.Server) {
			srv.AddPrompt(prompt, handler)
		})
	}
}

// WithResource registers a custom resource with a fixed URI, such as a
// site-specific field mapping:
//
//	mcpsrv.WithResource(
//	    &mcp.Resource{URI: "formsense://mappings/acme", Name: "acme-mapping", MIMEType: "application/json"},
//	    func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
//	        return &mcp.ReadResourceResult{
//	            Contents: []*mcp.ResourceContents{
//	                {URI: req.Params.URI, MIMEType: "application/json", Text: `{"applicant_dob": "date"}`},
//	            },
//	        }, nil
//	    },
//	)
func WithResource(resource *mcp.Resource, handler func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)) Option {
	return func(cfg *serverConfig) {
		cfg.resourceRegistrations = append(cfg.resourceRegistrations, func(srv *mcp.Server) {
			srv.AddResource(resource, handler)
		})
	}
}

// WithResourceTemplate registers a custom resource template, e.g.
// "formsense://mappings/{site}".
func WithResourceTemplate(template *mcp.ResourceTemplate, handler func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)) Option {
	return func(cfg *serverConfig) {
		cfg.resourceRegistrations = append(cfg.resourceRegistrations, func(srv *mcp.Server) {
			srv.AddResourceTemplate(template, handler)
		})
	}
}
