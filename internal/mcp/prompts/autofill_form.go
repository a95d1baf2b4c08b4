package prompts

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/pkg/types"
)

// HandleAutofillForm implements the form classification workflow.
func HandleAutofillForm(cfg *Config) func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
	return func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
		args := req.Params.Arguments

		pageURL := ""
		backendHost := ""
		if args != nil {
			if v, ok := args["page_url"]; ok {
				pageURL = v
			}
			if v, ok := args["backend_host"]; ok {
				backendHost = v
			}
		}

		var sb strings.Builder

		// 1. Role
		sb.WriteString("# Classify Form Fields for Autofill\n\n")
		sb.WriteString("You are helping fill in a web form. Your goal is to know, for every field, which piece of user data belongs in it ")
		sb.WriteString("and in which format, before anything is typed.\n\n")

		// 2. How the pieces fit
		sb.WriteString("## How Classification Works\n\n")
		sb.WriteString("- Pattern heuristics classify most fields instantly (confidence 0.95 on a match, 0.2 for `unknown`)\n")
		sb.WriteString(fmt.Sprintf("- Only fields below %.2g confidence are sent to the local model, %d per request\n", cfg.LowConfidenceThreshold, cfg.BatchSize))
		sb.WriteString("- Identical requests are served from cache, so repeating a call is cheap\n")
		sb.WriteString("- The model can only raise a field's type when it is more confident than the pattern\n")
		sb.WriteString("- Every merged field keeps its original pattern type, so any AI override can be reverted\n\n")

		// 3. Workflow
		sb.WriteString("## Workflow Steps\n\n")
		sb.WriteString("1. **Find a backend**\n")
		if backendHost != "" {
			sb.WriteString(fmt.Sprintf("   - Check the requested host first: `formsense_check_backend(kind=\"lmstudio\", host=%q)`\n", backendHost))
			sb.WriteString("   - If it is down, fall back to discovery\n")
		} else if cfg.StoreEnabled {
			sb.WriteString("   - Read `formsense://backends/active`. If it exists, skip discovery\n")
			sb.WriteString("   - Otherwise run `formsense_discover_backends()`\n")
		} else {
			sb.WriteString("   - Run `formsense_discover_backends()`\n")
		}
		sb.WriteString("   - No healthy backend is not fatal: the pattern results from step 2 are still usable\n\n")

		sb.WriteString("2. **Analyze the form**: `formsense_analyze_form(form_html=...)`\n")
		sb.WriteString("   - Pass the `<form>` element, not the whole page, when you can isolate it\n")
		sb.WriteString("   - A detection rate near 1 means you can stop here\n\n")

		sb.WriteString("3. **Classify weak fields**: `formsense_classify_fields(form_html=..., fields=..., merge=true)`\n")
		if pageURL != "" {
			sb.WriteString(fmt.Sprintf("   - Add `page_url=%q` and the page title; the model uses them as context\n", pageURL))
		} else {
			sb.WriteString("   - Add `page_url` and `page_title` when known; the model uses them as context\n")
		}
		if backendHost != "" {
			sb.WriteString(fmt.Sprintf("   - Add `backend_host=%q`\n", backendHost))
		}
		sb.WriteString("   - `stats.failed_chunks > 0` means some fields got no suggestion; calling again retries only those\n")
		sb.WriteString("   - Set `concise=true` for small models that ramble\n\n")

		sb.WriteString("4. **Review and merge**: `formsense_merge_suggestions(fields=..., suggestions=..., preferences=...)`\n")
		sb.WriteString("   - Check each `ai_augmented` field whose `detectedType` differs from `originalDetectedType`\n")
		sb.WriteString("   - Reject a wrong override with `preferences={\"<field name>\": false}`\n")
		sb.WriteString("   - Use `expectedFormat` when writing values (dates, phone numbers)\n\n")

		// 4. Types
		sb.WriteString("## Field Types\n\n")
		sb.WriteString("`" + strings.Join(types.FieldTypes, "`, `") + "`, plus `" + types.UnknownType + "`.\n")

		return &sdkmcp.GetPromptResult{
			Description: "Form field classification workflow",
			Messages: []*sdkmcp.PromptMessage{
				{
					Role:    "user",
					Content: &sdkmcp.TextContent{Text: sb.String()},
				},
			},
		}, nil
	}
}
