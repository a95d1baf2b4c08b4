package merge

import "github.com/usestring/formsense/pkg/types"

// Revert restores a field's pattern assessment and marks it reverted.
// The AI evidence is kept for display.
func Revert(f types.MergedField) types.MergedField {
	f = baseline(f)
	f.DetectedType = f.OriginalDetectedType
	f.DetectionConfidence = f.OriginalDetectionConfidence
	f.State = types.StateReverted
	return f
}

// ApplyPreferences reverts every field carrying an AI suggestion whose name
// the user has rejected (prefs[name] == false). Fields the user accepted or
// never rated are left as they are.
func ApplyPreferences(fields []types.MergedField, prefs map[string]bool) []types.MergedField {
	out := make([]types.MergedField, len(fields))
	for i, f := range fields {
		f = baseline(f)
		if accepted, rated := prefs[f.Name]; rated && !accepted && f.State == types.StateAIAugmented {
			f = Revert(f)
		}
		out[i] = f
	}
	return out
}

// Summary counts fields per arbitration state.
type Summary struct {
	Total       int `json:"total"`
	PatternOnly int `json:"patternOnly"`
	AIAugmented int `json:"aiAugmented"`
	Overridden  int `json:"overridden"`
	Reverted    int `json:"reverted"`
}

// Summarize reports how many fields ended in each state. Overridden counts
// AI-augmented fields whose effective type differs from the pattern type.
func Summarize(fields []types.MergedField) Summary {
	s := Summary{Total: len(fields)}
	for _, f := range fields {
		switch f.State {
		case types.StateAIAugmented:
			s.AIAugmented++
			if f.DetectedType != f.OriginalDetectedType {
				s.Overridden++
			}
		case types.StateReverted:
			s.Reverted++
		default:
			s.PatternOnly++
		}
	}
	return s
}
