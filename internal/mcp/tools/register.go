package tools

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all tools with the MCP server.
func Register(srv *sdkmcp.Server, d *Deps) {
	// Tool 1: formsense_discover_backends
	AddTool(srv, &sdkmcp.Tool{
		Name:        "formsense_discover_backends",
		Description: "Scan for a local inference server (ollama on 11434, LM Studio on 8000, plus an optional custom host checked first). Returns {results: [{kind, host, port, healthy, endpoint, error}], active, hint}. The first healthy backend is recorded and used by formsense_classify_fields.",
	}, ToolDiscoverBackends(d))

	// Tool 2: formsense_check_backend
	AddTool(srv, &sdkmcp.Tool{
		Name:        "formsense_check_backend",
		Description: "Health-check one backend (kind, host, port). Returns the per-path probe log with status, latency and attempt count. A healthy result becomes the active backend.",
	}, ToolCheckBackend(d))

	// Tool 3: formsense_analyze_form
	AddTool(srv, &sdkmcp.Tool{
		Name:        "formsense_analyze_form",
		Description: "Classify the fields of an HTML form with pattern heuristics (name, label, placeholder, input type). Returns {fields: [{index, name, label, detectedType, detectionConfidence, expectedFormat}], summary}. Run this first; unknown fields (confidence 0.2) are the ones worth sending to formsense_classify_fields.",
	}, ToolAnalyzeForm(d))

	// Tool 4: formsense_classify_fields
	AddTool(srv, &sdkmcp.Tool{
		Name:        "formsense_classify_fields",
		Description: "Ask a local model for field type suggestions. Only fields below the confidence threshold are sent, in batches; identical requests are served from cache. Returns {backend, suggestions: [{index, name, suggestedType, confidence, reason}], stats, hint}. Set merge=true to also get merged fields. Backend failures never fail the call: failed chunks are reported in stats.failed_chunks.",
	}, ToolClassifyFields(d))

	// Tool 5: formsense_merge_suggestions
	AddTool(srv, &sdkmcp.Tool{
		Name:        "formsense_merge_suggestions",
		Description: "Merge AI suggestions into pattern-classified fields. The AI type wins only with strictly higher confidence, and agreement boosts confidence up to 1. The original pattern assessment is kept on every field, so preferences={name: false} reverts a rejected override. Merging again with the same input gives the same result.",
	}, ToolMergeSuggestions(d))
}
