package mcpsrv

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/internal/mcp/tools"
)

// AddTool registers a tool with the server after checking that no value of
// Out can marshal to JSON that fails the schema the SDK infers from Out. The
// usual culprit is a slice or map field without omitzero, which marshals as
// null when nil.
//
// AddTool panics with the offending field paths if the check fails.
//
// Use this instead of [sdkmcp.AddTool] to get the additional check.
func AddTool[In, Out any](srv *sdkmcp.Server, t *sdkmcp.Tool, h sdkmcp.ToolHandlerFor[In, Out]) {
	tools.AddTool(srv, t, h)
}
