// Package extract pulls typed suggestions out of free-form model output.
//
// Model text is untrusted: it may wrap JSON in prose or code fences, or not
// contain JSON at all. Extract never fails; anything it cannot use is dropped.
package extract

import (
	"encoding/json"
	"log/slog"
	"math"
	"regexp"
	"strings"

	validator "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/usestring/formsense/pkg/types"
)

// spanPattern matches from the first '{' or '[' to the last closing bracket.
var spanPattern = regexp.MustCompile(`(?s)\{.*\}|\[.*\]`)

var fencePattern = regexp.MustCompile("(?m)^\\s*```[A-Za-z0-9_-]*\\s*$")

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

var smartQuotes = strings.NewReplacer("\u201c", `"`, "\u201d", `"`, "\u2018", "'", "\u2019", "'")

// Extract returns the suggestions found in raw, or an empty slice.
func Extract(raw string) []types.Suggestion {
	value, ok := locate(raw)
	if !ok {
		value, ok = locate(sanitize(raw))
	}
	if !ok {
		slog.Debug("no JSON found in model output", slog.Int("length", len(raw)))
		return []types.Suggestion{}
	}

	elements := candidates(value)
	out := make([]types.Suggestion, 0, len(elements))
	for i, el := range elements {
		if err := elementSchema.Validate(el); err != nil {
			slog.Debug("dropping malformed suggestion",
				slog.Int("element", i),
				slog.String("error", firstLine(err)),
			)
			continue
		}
		if s, ok := toSuggestion(el); ok {
			out = append(out, s)
		}
	}
	return out
}

// locate parses the widest bracketed span in text.
func locate(text string) (any, bool) {
	span := spanPattern.FindString(text)
	if span == "" {
		return nil, false
	}
	v, err := validator.UnmarshalJSON(strings.NewReader(span))
	if err != nil {
		return nil, false
	}
	return v, true
}

// sanitize removes code-fence lines and stray backticks, straightens curly
// quotes and drops trailing commas before a closing bracket.
func sanitize(text string) string {
	text = fencePattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "`", "")
	text = smartQuotes.Replace(text)
	return trailingComma.ReplaceAllString(text, "$1")
}

// candidates flattens the parsed value into suggestion-shaped elements.
// Arrays are used as-is; an object contributes its "suggestions" array, or
// itself when it already looks like a suggestion.
func candidates(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case map[string]any:
		if list, ok := val["suggestions"].([]any); ok {
			return list
		}
		if _, ok := val["suggestedType"]; ok {
			return []any{val}
		}
	}
	return nil
}

func toSuggestion(el any) (types.Suggestion, bool) {
	obj, ok := el.(map[string]any)
	if !ok {
		return types.Suggestion{}, false
	}

	suggested := strings.TrimSpace(stringField(obj, "suggestedType"))
	conf, ok := number(obj["confidence"])
	if suggested == "" || !ok {
		return types.Suggestion{}, false
	}

	s := types.Suggestion{
		Name:          strings.TrimSpace(stringField(obj, "name")),
		SuggestedType: suggested,
		Confidence:    conf,
		Reason:        strings.TrimSpace(stringField(obj, "reason")),
	}
	if idx, ok := number(obj["index"]); ok && idx >= 0 && idx <= math.MaxInt32 {
		s.Index = types.IntPtr(int(idx))
	}
	return s, true
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
