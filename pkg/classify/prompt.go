package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/usestring/formsense/pkg/extract"
	"github.com/usestring/formsense/pkg/types"
)

// promptField is the per-field payload of a prompt. Index is the caller's
// original index; index and name are kept first so they stay adjacent in the
// encoded JSON.
type promptField struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	ID           string `json:"id,omitempty"`
	Label        string `json:"label,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`
	InputType    string `json:"type,omitempty"`
	DetectedType string `json:"detectedType,omitempty"`
}

var suggestionSchemaJSON = func() string {
	data, err := json.Marshal(extract.SuggestionSchema())
	if err != nil {
		return ""
	}
	return string(data)
}()

// BuildPrompt renders the classification request for one chunk.
func BuildPrompt(page types.PageContext, excerpt string, chunk []types.FieldDescriptor, concise bool) string {
	fields := make([]promptField, len(chunk))
	for i, f := range chunk {
		fields[i] = promptField{
			Index:        f.Index,
			Name:         f.Name,
			ID:           f.ID,
			Label:        f.Label,
			Placeholder:  f.Placeholder,
			InputType:    f.InputType,
			DetectedType: f.DetectedType,
		}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		fieldsJSON = []byte("[]")
	}

	var b strings.Builder
	if concise {
		b.WriteString("Classify each form field. Reply with only a JSON array of {index, name, suggestedType, confidence}; confidence 0-1; keep each index unchanged.\n")
		writePage(&b, page)
		fmt.Fprintf(&b, "HTML: %s\n", excerpt)
		fmt.Fprintf(&b, "Fields: %s\n", fieldsJSON)
		return b.String()
	}

	b.WriteString("You are given the HTML of a web form and a list of its input fields.\n")
	b.WriteString("For each field, decide what kind of personal data it asks for.\n")
	fmt.Fprintf(&b, "Prefer one of these types: %s. Use \"unknown\" if none fits.\n", strings.Join(types.FieldTypes, ", "))
	b.WriteString("Return a JSON array with one object per field of the form {index, name, suggestedType, confidence, reason}, where confidence is between 0 and 1.\n")
	b.WriteString("Copy each field's index exactly as given; do not renumber fields.\n")
	if suggestionSchemaJSON != "" {
		fmt.Fprintf(&b, "Each object must match this JSON Schema: %s\n", suggestionSchemaJSON)
	}
	writePage(&b, page)
	fmt.Fprintf(&b, "\nHTML:\n%s\n", excerpt)
	fmt.Fprintf(&b, "\nFields: %s\n", fieldsJSON)
	b.WriteString("\nReturn the JSON array only, with no commentary.")
	return b.String()
}

func writePage(b *strings.Builder, page types.PageContext) {
	if page.PageTitle != "" {
		fmt.Fprintf(b, "Page title: %s\n", page.PageTitle)
	}
	if page.PageURL != "" {
		fmt.Fprintf(b, "Page URL: %s\n", page.PageURL)
	}
	if page.Company != "" {
		fmt.Fprintf(b, "Company: %s\n", page.Company)
	}
}
