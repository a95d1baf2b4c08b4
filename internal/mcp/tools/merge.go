package tools

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/formsense/pkg/merge"
	"github.com/usestring/formsense/pkg/types"
)

// MergeSuggestionsInput is the input for formsense_merge_suggestions.
type MergeSuggestionsInput struct {
	Fields       []MergeField       `json:"fields" jsonschema:"Fields from formsense_analyze_form, or merged fields from an earlier merge"`
	Suggestions  []types.Suggestion `json:"suggestions,omitempty" jsonschema:"Suggestions from formsense_classify_fields"`
	Preferences  map[string]bool    `json:"preferences,omitempty" jsonschema:"AI acceptance per field name. false reverts that field to its pattern assessment"`
	BoostDivisor float64            `json:"boost_divisor,omitempty" jsonschema:"Divisor of the agreement boost (default: 4)"`
}

// MergeField is a field descriptor that may carry state from an earlier merge.
// Keys match the merged fields this tool returns, so its output can be fed
// back in.
type MergeField struct {
	Index                       int     `json:"index"`
	Name                        string  `json:"name"`
	ID                          string  `json:"id,omitempty"`
	Label                       string  `json:"label,omitempty"`
	Placeholder                 string  `json:"placeholder,omitempty"`
	InputType                   string  `json:"inputType,omitempty"`
	DetectedType                string  `json:"detectedType"`
	DetectionConfidence         float64 `json:"detectionConfidence"`
	ExpectedFormat              string  `json:"expectedFormat,omitempty"`
	OriginalDetectedType        string  `json:"originalDetectedType,omitempty"`
	OriginalDetectionConfidence float64 `json:"originalDetectionConfidence,omitempty"`
	AISuggested                 string  `json:"aiSuggested,omitempty"`
	AIConfidence                float64 `json:"aiConfidence,omitempty"`
	State                       string  `json:"state,omitempty" jsonschema:"pattern_only, ai_augmented or reverted"`
}

// MergeSuggestionsOutput is the output for formsense_merge_suggestions.
type MergeSuggestionsOutput struct {
	Fields  []types.MergedField `json:"fields,omitzero"`
	Summary MergeSummary        `json:"summary"`
}

// MergeSummary counts fields per arbitration state.
type MergeSummary struct {
	Total       int `json:"total"`
	PatternOnly int `json:"pattern_only"`
	AIAugmented int `json:"ai_augmented"`
	Overridden  int `json:"overridden"`
	Reverted    int `json:"reverted"`
}

// ToolMergeSuggestions folds AI suggestions into pattern classifications.
func ToolMergeSuggestions(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input MergeSuggestionsInput) (*sdkmcp.CallToolResult, MergeSuggestionsOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input MergeSuggestionsInput) (*sdkmcp.CallToolResult, MergeSuggestionsOutput, error) {
		if len(input.Fields) == 0 {
			return nil, MergeSuggestionsOutput{}, ErrInvalidInput("fields is required")
		}
		if input.BoostDivisor < 0 {
			return nil, MergeSuggestionsOutput{}, ErrInvalidInput("boost_divisor must not be negative")
		}

		fields := make([]types.MergedField, len(input.Fields))
		for i, f := range input.Fields {
			mf, err := f.toMerged()
			if err != nil {
				return nil, MergeSuggestionsOutput{}, err
			}
			fields[i] = mf
		}

		opts := d.Config.MergeOptions()
		if input.BoostDivisor > 0 {
			opts.BoostDivisor = input.BoostDivisor
		}

		merged := merge.Merge(fields, input.Suggestions, opts)
		if len(input.Preferences) > 0 {
			merged = merge.ApplyPreferences(merged, input.Preferences)
		}

		s := merge.Summarize(merged)
		return nil, MergeSuggestionsOutput{
			Fields: merged,
			Summary: MergeSummary{
				Total:       s.Total,
				PatternOnly: s.PatternOnly,
				AIAugmented: s.AIAugmented,
				Overridden:  s.Overridden,
				Reverted:    s.Reverted,
			},
		}, nil
	}
}

func (f MergeField) toMerged() (types.MergedField, error) {
	state := types.FieldState(f.State)
	switch state {
	case "", types.StatePatternOnly, types.StateAIAugmented, types.StateReverted:
	default:
		return types.MergedField{}, ErrInvalidInput("unknown field state " + f.State)
	}
	return types.MergedField{
		Index:                       f.Index,
		Name:                        f.Name,
		ID:                          f.ID,
		Label:                       f.Label,
		Placeholder:                 f.Placeholder,
		InputType:                   f.InputType,
		DetectedType:                f.DetectedType,
		DetectionConfidence:         f.DetectionConfidence,
		ExpectedFormat:              f.ExpectedFormat,
		OriginalDetectedType:        f.OriginalDetectedType,
		OriginalDetectionConfidence: f.OriginalDetectionConfidence,
		AISuggested:                 f.AISuggested,
		AIConfidence:                f.AIConfidence,
		State:                       state,
	}, nil
}
