package tools

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/pkg/analyzer"
	"github.com/usestring/formsense/pkg/backend"
	"github.com/usestring/formsense/pkg/merge"
	"github.com/usestring/formsense/pkg/types"
)

// ClassifyFieldsInput is the input for formsense_classify_fields.
type ClassifyFieldsInput struct {
	FormHTML               string                  `json:"form_html,omitempty" jsonschema:"HTML of the form. Used as model context and, when fields is omitted, analyzed for fields"`
	Fields                 []types.FieldDescriptor `json:"fields,omitempty" jsonschema:"Pattern-classified fields (from formsense_analyze_form). Indices are preserved in the suggestions"`
	PageTitle              string                  `json:"page_title,omitempty" jsonschema:"Title of the page hosting the form"`
	PageURL                string                  `json:"page_url,omitempty" jsonschema:"URL of the page hosting the form"`
	Company                string                  `json:"company,omitempty" jsonschema:"Company the form belongs to"`
	BackendKind            string                  `json:"backend_kind,omitempty" jsonschema:"ollama or lmstudio. Only used with backend_host"`
	BackendHost            string                  `json:"backend_host,omitempty" jsonschema:"Use this backend instead of the discovered one"`
	BackendPort            int                     `json:"backend_port,omitempty" jsonschema:"Port of backend_host (default: the kind's port)"`
	BatchSize              int                     `json:"batch_size,omitempty" jsonschema:"Fields per backend request (default: 10)"`
	AllFields              bool                    `json:"all_fields,omitempty" jsonschema:"Classify every field, not only those below the confidence threshold"`
	LowConfidenceThreshold float64                 `json:"low_confidence_threshold,omitempty" jsonschema:"Fields below this detection confidence are classified (default: 0.7)"`
	Concise                bool                    `json:"concise,omitempty" jsonschema:"Use the short prompt variant"`
	Merge                  bool                    `json:"merge,omitempty" jsonschema:"Also merge the suggestions into the fields"`
}

// ClassifyFieldsOutput is the output for formsense_classify_fields.
type ClassifyFieldsOutput struct {
	Backend     BackendRef          `json:"backend"`
	Suggestions []types.Suggestion  `json:"suggestions,omitzero"`
	Fields      []types.MergedField `json:"fields,omitzero"`
	Stats       ClassifyStats       `json:"stats"`
	Hint        string              `json:"hint,omitempty"`
}

// ClassifyStats reports how a classification was served.
type ClassifyStats struct {
	Candidates   int   `json:"candidates"`
	Chunks       int   `json:"chunks"`
	Requests     int   `json:"requests"`
	FailedChunks int   `json:"failed_chunks"`
	Cached       bool  `json:"cached"`
	LatencyMs    int64 `json:"latency_ms"`
}

// ToolClassifyFields asks a local backend for field type suggestions.
func ToolClassifyFields(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input ClassifyFieldsInput) (*sdkmcp.CallToolResult, ClassifyFieldsOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input ClassifyFieldsInput) (*sdkmcp.CallToolResult, ClassifyFieldsOutput, error) {
		fields := input.Fields
		if len(fields) == 0 {
			if strings.TrimSpace(input.FormHTML) == "" {
				return nil, ClassifyFieldsOutput{}, ErrInvalidInput("form_html or fields is required")
			}
			res, err := analyzer.Analyze(input.FormHTML)
			if err != nil {
				return nil, ClassifyFieldsOutput{}, ErrInvalidInput(err.Error())
			}
			fields = res.Fields
		}
		if input.BatchSize < 0 {
			return nil, ClassifyFieldsOutput{}, ErrInvalidInput("batch_size must not be negative")
		}
		if input.LowConfidenceThreshold < 0 || input.LowConfidenceThreshold > 1 {
			return nil, ClassifyFieldsOutput{}, ErrInvalidInput("low_confidence_threshold must be between 0 and 1")
		}

		b, err := d.ResolveBackend(ctx, input.BackendKind, input.BackendHost, input.BackendPort)
		if err != nil {
			return nil, ClassifyFieldsOutput{}, WrapBackendError(err)
		}
		classifier, err := d.Classifier(b)
		if err != nil {
			return nil, ClassifyFieldsOutput{}, fmt.Errorf("creating classifier: %w", err)
		}

		opts := d.Config.ClassifyOptions()
		opts.Page = types.PageContext{
			PageTitle: input.PageTitle,
			PageURL:   input.PageURL,
			Company:   input.Company,
		}
		if input.BatchSize > 0 {
			opts.BatchSize = input.BatchSize
		}
		if input.AllFields {
			opts.OnlyLowConfidence = false
		}
		if input.LowConfidenceThreshold > 0 {
			opts.LowConfidenceThreshold = input.LowConfidenceThreshold
		}
		if input.Concise {
			opts.Concise = true
		}

		result := classifier.Classify(ctx, input.FormHTML, fields, opts)

		output := ClassifyFieldsOutput{
			Backend: buildBackendRef(b),
			Stats: ClassifyStats{
				Candidates:   result.Candidates,
				Chunks:       result.Chunks,
				Requests:     result.Requests,
				FailedChunks: result.FailedChunks,
				Cached:       result.Cached,
				LatencyMs:    result.LatencyMs,
			},
		}
		if len(result.Suggestions) > 0 {
			output.Suggestions = result.Suggestions
		}
		if input.Merge && len(fields) > 0 {
			output.Fields = merge.Fields(fields, result.Suggestions, d.Config.MergeOptions())
		}
		output.Hint = classifyHint(result)

		return nil, output, nil
	}
}

func buildBackendRef(b backend.Backend) BackendRef {
	return BackendRef{
		Kind:    string(b.Kind()),
		Host:    b.Host(),
		Port:    b.Port(),
		BaseURL: b.BaseURL(),
	}
}

func classifyHint(r *types.ClassifyResult) string {
	switch {
	case r.Candidates == 0:
		return "Every field is already above the confidence threshold. Set all_fields to classify them anyway."
	case r.FailedChunks == r.Chunks:
		return "The backend did not answer. Run formsense_discover_backends to find a healthy one."
	case r.FailedChunks > 0:
		return fmt.Sprintf("%d of %d chunks failed; their fields have no suggestions. Calling again retries only those chunks.", r.FailedChunks, r.Chunks)
	case len(r.Suggestions) == 0:
		return "The model returned no usable suggestions. Try concise=false or a smaller batch_size."
	default:
		return "Pass the suggestions with the fields to formsense_merge_suggestions, or set merge=true."
	}
}
