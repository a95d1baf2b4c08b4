// Package merge folds AI suggestions into pattern-based field classifications.
//
// Each field keeps its pre-merge pattern assessment (OriginalDetectedType and
// OriginalDetectionConfidence). Arbitration always starts from that snapshot,
// so merging the same suggestions any number of times gives the same result
// and a rejected AI override can always be undone.
package merge

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/text/cases"

	"github.com/usestring/formsense/pkg/types"
)

// DefaultBoostDivisor scales the agreement boost added to the chosen confidence.
const DefaultBoostDivisor = 4.0

// Options controls arbitration.
type Options struct {
	BoostDivisor float64
}

// DefaultOptions returns the standard merge options.
func DefaultOptions() Options {
	return Options{BoostDivisor: DefaultBoostDivisor}
}

// Fields wraps descriptors and merges suggestions into them.
func Fields(fields []types.FieldDescriptor, suggestions []types.Suggestion, opts Options) []types.MergedField {
	merged := make([]types.MergedField, len(fields))
	for i, f := range fields {
		merged[i] = types.NewMergedField(f)
	}
	return Merge(merged, suggestions, opts)
}

// Merge returns a copy of fields with suggestions applied. Suggestions are
// joined by index, or by case-folded name when they carry no index. When a
// field receives several suggestions the most confident one is used.
// Fields without a suggestion are returned unchanged.
func Merge(fields []types.MergedField, suggestions []types.Suggestion, opts Options) []types.MergedField {
	if opts.BoostDivisor <= 0 {
		opts.BoostDivisor = DefaultBoostDivisor
	}

	best := bestByField(fields, suggestions)

	out := make([]types.MergedField, len(fields))
	for i, f := range fields {
		f = baseline(f)
		if s, ok := best[f.Index]; ok && f.State != types.StateReverted {
			f = arbitrate(f, s, opts)
		}
		out[i] = f
	}
	return out
}

// Arbitrate decides the effective type and confidence from a pattern
// assessment and an AI assessment. The AI type wins only with strictly higher
// confidence; the confidence is boosted by the agreement of both signals and
// capped at 1.
func Arbitrate(patternType string, patternConf float64, aiType string, aiConf float64, opts Options) (string, float64) {
	if opts.BoostDivisor <= 0 {
		opts.BoostDivisor = DefaultBoostDivisor
	}
	chosenType, chosenConf := patternType, patternConf
	if aiConf > patternConf {
		chosenType, chosenConf = aiType, aiConf
	}
	return chosenType, math.Min(1, chosenConf+(patternConf+aiConf)/opts.BoostDivisor)
}

func arbitrate(f types.MergedField, s types.Suggestion, opts Options) types.MergedField {
	f.DetectedType, f.DetectionConfidence = Arbitrate(
		f.OriginalDetectedType, f.OriginalDetectionConfidence,
		s.SuggestedType, s.Confidence, opts,
	)
	f.AISuggested = s.SuggestedType
	f.AIConfidence = s.Confidence
	f.State = types.StateAIAugmented
	return f
}

// baseline gives a field without a state its snapshot and state. A field
// that already carries an original assessment keeps it; its state is inferred
// from the AI evidence it holds.
func baseline(f types.MergedField) types.MergedField {
	switch {
	case f.State != "":
		return f
	case f.OriginalDetectedType == "":
		return snapshot(f)
	case f.AISuggested != "":
		f.State = types.StateAIAugmented
	default:
		f.State = types.StatePatternOnly
	}
	return f
}

// snapshot captures the baseline of a field that has never been merged.
func snapshot(f types.MergedField) types.MergedField {
	f.OriginalDetectedType = f.DetectedType
	f.OriginalDetectionConfidence = f.DetectionConfidence
	f.State = types.StatePatternOnly
	return f
}

// bestByField resolves each suggestion to a field index and keeps the most
// confident suggestion per field. Earlier suggestions win ties.
func bestByField(fields []types.MergedField, suggestions []types.Suggestion) map[int]types.Suggestion {
	fold := cases.Fold()
	known := roaring.New()
	byName := make(map[string]int, len(fields))
	for _, f := range fields {
		if f.Index >= 0 {
			known.Add(uint32(f.Index))
		}
		if f.Name == "" {
			continue
		}
		key := fold.String(f.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = f.Index
		}
	}

	best := make(map[int]types.Suggestion, len(suggestions))
	for _, s := range suggestions {
		var idx int
		switch {
		case s.Index != nil:
			if *s.Index < 0 || !known.Contains(uint32(*s.Index)) {
				continue
			}
			idx = *s.Index
		case s.Name != "":
			i, ok := byName[fold.String(s.Name)]
			if !ok {
				continue
			}
			idx = i
		default:
			continue
		}
		if cur, ok := best[idx]; ok && cur.Confidence >= s.Confidence {
			continue
		}
		best[idx] = s
	}
	return best
}
