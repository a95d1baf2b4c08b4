package prompts

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all prompts with the MCP server.
func Register(srv *sdkmcp.Server, cfg *Config) {
	srv.AddPrompt(&sdkmcp.Prompt{
		Name:        "autofill_form",
		Description: "RECOMMENDED: Classify the fields of a web form so it can be filled in. Walks through pattern analysis, AI classification on a local model, and merging, with the decision points for each step.",
		Arguments: []*sdkmcp.PromptArgument{
			{
				Name:        "page_url",
				Description: "URL of the page hosting the form",
				Required:    false,
			},
			{
				Name:        "backend_host",
				Description: "Inference server to use instead of the discovered one (e.g. 'gpu-box' or 'https://gpu-box')",
				Required:    false,
			},
		},
	}, HandleAutofillForm(cfg))
}
