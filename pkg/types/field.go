package types

// UnknownType is the detected type of a field no heuristic recognized.
const UnknownType = "unknown"

// FieldTypes lists the semantic types the analyzer can detect, in match order.
// Backends are asked to answer with one of these where possible.
var FieldTypes = []string{
	"email",
	"phone",
	"firstName",
	"lastName",
	"middleName",
	"date",
	"gender",
	"country",
	"city",
	"address",
	"postalCode",
}

// FieldDescriptor is a form field as classified by pattern heuristics.
// Index is the caller's join key and is never renumbered.
type FieldDescriptor struct {
	Index               int     `json:"index"`
	Name                string  `json:"name"`
	ID                  string  `json:"id,omitempty"`
	Label               string  `json:"label,omitempty"`
	Placeholder         string  `json:"placeholder,omitempty"`
	InputType           string  `json:"inputType,omitempty"`
	DetectedType        string  `json:"detectedType"`
	DetectionConfidence float64 `json:"detectionConfidence"`
	ExpectedFormat      string  `json:"expectedFormat,omitempty"`
}

// Suggestion is one typed AI classification for a field.
// Index is nil when the backend answered by name only.
type Suggestion struct {
	Index         *int    `json:"index,omitempty"`
	Name          string  `json:"name,omitempty"`
	SuggestedType string  `json:"suggestedType"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason,omitempty"`
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }

// ClassifyResult is the aggregate of all chunks of one classification call.
type ClassifyResult struct {
	Suggestions  []Suggestion `json:"suggestions"`
	LatencyMs    int64        `json:"latencyMs"`
	Cached       bool         `json:"cached"`
	Candidates   int          `json:"candidates"`
	Chunks       int          `json:"chunks"`
	Requests     int          `json:"requests"`
	FailedChunks int          `json:"failedChunks,omitempty"`
}

// FieldState is the per-field arbitration state.
type FieldState string

// Field states.
const (
	StatePatternOnly FieldState = "pattern_only"
	StateAIAugmented FieldState = "ai_augmented"
	StateReverted    FieldState = "reverted"
)

// MergedField is a field descriptor folded together with AI evidence.
// The Original* values are the pre-merge pattern assessment and are captured
// exactly once, so a caller can always revert an AI override.
type MergedField struct {
	Index               int     `json:"index"`
	Name                string  `json:"name"`
	ID                  string  `json:"id,omitempty"`
	Label               string  `json:"label,omitempty"`
	Placeholder         string  `json:"placeholder,omitempty"`
	InputType           string  `json:"inputType,omitempty"`
	DetectedType        string  `json:"detectedType"`
	DetectionConfidence float64 `json:"detectionConfidence"`
	ExpectedFormat      string  `json:"expectedFormat,omitempty"`

	OriginalDetectedType        string     `json:"originalDetectedType"`
	OriginalDetectionConfidence float64    `json:"originalDetectionConfidence"`
	AISuggested                 string     `json:"aiSuggested,omitempty"`
	AIConfidence                float64    `json:"aiConfidence,omitempty"`
	State                       FieldState `json:"state,omitempty"`
}

// NewMergedField wraps a descriptor in the Pattern-Only state with its baseline captured.
func NewMergedField(f FieldDescriptor) MergedField {
	return MergedField{
		Index:                       f.Index,
		Name:                        f.Name,
		ID:                          f.ID,
		Label:                       f.Label,
		Placeholder:                 f.Placeholder,
		InputType:                   f.InputType,
		DetectedType:                f.DetectedType,
		DetectionConfidence:         f.DetectionConfidence,
		ExpectedFormat:              f.ExpectedFormat,
		OriginalDetectedType:        f.DetectedType,
		OriginalDetectionConfidence: f.DetectionConfidence,
		State:                       StatePatternOnly,
	}
}

// Descriptor returns the field's current effective descriptor.
func (m MergedField) Descriptor() FieldDescriptor {
	return FieldDescriptor{
		Index:               m.Index,
		Name:                m.Name,
		ID:                  m.ID,
		Label:               m.Label,
		Placeholder:         m.Placeholder,
		InputType:           m.InputType,
		DetectedType:        m.DetectedType,
		DetectionConfidence: m.DetectionConfidence,
		ExpectedFormat:      m.ExpectedFormat,
	}
}
