package tools

import (
	"context"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/pkg/analyzer"
	"github.com/usestring/formsense/pkg/types"
)

// AnalyzeFormInput is the input for formsense_analyze_form.
type AnalyzeFormInput struct {
	FormHTML string `json:"form_html" jsonschema:"HTML of the form (or the page containing it)"`
}

// AnalyzeFormOutput is the output for formsense_analyze_form.
type AnalyzeFormOutput struct {
	Fields  []types.FieldDescriptor `json:"fields,omitzero"`
	Summary FormSummary             `json:"summary"`
	Hint    string                  `json:"hint,omitempty"`
}

// FormSummary describes how much of a form the pattern heuristics recognized.
type FormSummary struct {
	TotalFields     int            `json:"total_fields"`
	DetectedCount   int            `json:"detected_count"`
	UndetectedCount int            `json:"undetected_count"`
	DetectionRate   float64        `json:"detection_rate"`
	FieldTypes      map[string]int `json:"field_types,omitempty"`
}

// ToolAnalyzeForm classifies form fields with pattern heuristics.
func ToolAnalyzeForm(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input AnalyzeFormInput) (*sdkmcp.CallToolResult, AnalyzeFormOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input AnalyzeFormInput) (*sdkmcp.CallToolResult, AnalyzeFormOutput, error) {
		if strings.TrimSpace(input.FormHTML) == "" {
			return nil, AnalyzeFormOutput{}, ErrInvalidInput("form_html is required")
		}

		res, err := analyzer.Analyze(input.FormHTML)
		if err != nil {
			return nil, AnalyzeFormOutput{}, ErrInvalidInput(err.Error())
		}

		output := AnalyzeFormOutput{
			Fields:  res.Fields,
			Summary: buildFormSummary(res.Summary),
		}
		switch {
		case res.Summary.TotalFields == 0:
			output.Hint = "No input, select or textarea elements found."
		case res.Summary.UndetectedCount > 0:
			output.Hint = "Some fields are unknown or weakly detected. Pass these fields to formsense_classify_fields for AI suggestions."
		}
		return nil, output, nil
	}
}

func buildFormSummary(s analyzer.Summary) FormSummary {
	return FormSummary{
		TotalFields:     s.TotalFields,
		DetectedCount:   s.DetectedCount,
		UndetectedCount: s.UndetectedCount,
		DetectionRate:   s.DetectionRate,
		FieldTypes:      s.FieldTypes,
	}
}
