package tools

import (
	"context"
	"fmt"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/pkg/discovery"
	"github.com/usestring/formsense/pkg/types"
)

// DiscoverBackendsInput is the input for formsense_discover_backends.
type DiscoverBackendsInput struct {
	CustomHost      string `json:"custom_host,omitempty" jsonschema:"Host checked before the localhost candidates. May carry a scheme (https://gpu-box)."`
	CustomPort      int    `json:"custom_port,omitempty" jsonschema:"Port of the custom host (default: the kind's port)"`
	CustomKind      string `json:"custom_kind,omitempty" jsonschema:"Kind of the custom host: ollama or lmstudio (default: lmstudio)"`
	OllamaPorts     []int  `json:"ollama_ports,omitempty" jsonschema:"Localhost ports scanned for ollama (default: 11434)"`
	LMStudioPorts   []int  `json:"lmstudio_ports,omitempty" jsonschema:"Localhost ports scanned for lmstudio (default: 8000)"`
	TimeoutMs       int    `json:"timeout_ms,omitempty" jsonschema:"Per-attempt probe timeout in milliseconds (default: 1500)"`
	Retries         int    `json:"retries,omitempty" jsonschema:"Attempts per health path (default: 3)"`
	IncludeAttempts bool   `json:"include_attempts,omitempty" jsonschema:"Include the per-path probe log for every candidate"`
}

// DiscoverBackendsOutput is the output for formsense_discover_backends.
type DiscoverBackendsOutput struct {
	Results []BackendHealth `json:"results,omitzero"`
	Active  *BackendHealth  `json:"active,omitempty"`
	Hint    string          `json:"hint,omitempty"`
}

// CheckBackendInput is the input for formsense_check_backend.
type CheckBackendInput struct {
	Kind string `json:"kind" jsonschema:"Backend kind: ollama or lmstudio"`
	Host string `json:"host,omitempty" jsonschema:"Host to check (default: localhost)"`
	Port int    `json:"port,omitempty" jsonschema:"Port to check (default: the kind's port)"`
}

// CheckBackendOutput is the output for formsense_check_backend.
type CheckBackendOutput struct {
	Result BackendHealth `json:"result"`
	Hint   string        `json:"hint,omitempty"`
}

// ToolDiscoverBackends scans for a local inference server.
func ToolDiscoverBackends(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input DiscoverBackendsInput) (*sdkmcp.CallToolResult, DiscoverBackendsOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input DiscoverBackendsInput) (*sdkmcp.CallToolResult, DiscoverBackendsOutput, error) {
		cfg := d.Config.DiscoveryConfig()
		if input.CustomHost != "" {
			cfg.CustomHost = input.CustomHost
			cfg.CustomPort = input.CustomPort
		}
		if input.CustomKind != "" {
			kind, err := types.ParseBackendKind(input.CustomKind)
			if err != nil {
				return nil, DiscoverBackendsOutput{}, ErrInvalidInput(err.Error())
			}
			cfg.CustomKind = kind
		}
		if input.TimeoutMs < 0 || input.Retries < 0 {
			return nil, DiscoverBackendsOutput{}, ErrInvalidInput("timeout_ms and retries must not be negative")
		}
		if input.TimeoutMs > 0 {
			cfg.Probe.Timeout = time.Duration(input.TimeoutMs) * time.Millisecond
		}
		if input.Retries > 0 {
			cfg.Probe.Retries = input.Retries
		}

		ollamaPorts, lmStudioPorts := d.Config.OllamaPorts, d.Config.LMStudioPorts
		if len(input.OllamaPorts) > 0 {
			ollamaPorts = input.OllamaPorts
		}
		if len(input.LMStudioPorts) > 0 {
			lmStudioPorts = input.LMStudioPorts
		}

		results := d.Discover(ctx, discovery.DefaultCandidateSets(ollamaPorts, lmStudioPorts), cfg)

		output := DiscoverBackendsOutput{}
		if len(results) > 0 {
			output.Results = make([]BackendHealth, len(results))
			for i, r := range results {
				output.Results[i] = BuildBackendHealth(r, input.IncludeAttempts)
			}
		}
		if active, ok := types.FirstHealthy(results); ok {
			h := BuildBackendHealth(active, false)
			output.Active = &h
			output.Hint = fmt.Sprintf("Using %s at %s. formsense_classify_fields will pick it up automatically.", active.Kind, active.Endpoint)
		} else {
			output.Hint = "No backend answered. Start ollama or LM Studio, or pass custom_host, then run discovery again."
		}

		return nil, output, nil
	}
}

// ToolCheckBackend checks one backend candidate.
func ToolCheckBackend(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input CheckBackendInput) (*sdkmcp.CallToolResult, CheckBackendOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input CheckBackendInput) (*sdkmcp.CallToolResult, CheckBackendOutput, error) {
		kind, err := types.ParseBackendKind(input.Kind)
		if err != nil {
			return nil, CheckBackendOutput{}, ErrInvalidInput(err.Error())
		}
		host := input.Host
		if host == "" {
			host = discovery.DefaultHost
		}

		result := d.Check(ctx, kind, host, input.Port)

		output := CheckBackendOutput{Result: BuildBackendHealth(result, true)}
		if !result.Healthy {
			output.Hint = "Backend did not answer any health path. Check that the server is running and the port is right."
		}
		return nil, output, nil
	}
}
