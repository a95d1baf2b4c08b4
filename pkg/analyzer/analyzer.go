// Package analyzer collects form fields from HTML and classifies them with
// name, label and placeholder heuristics.
package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/usestring/formsense/pkg/types"
)

// Confidence assigned to heuristic results.
const (
	MatchedConfidence = 0.95
	UnknownConfidence = 0.2
)

type pattern struct {
	fieldType string
	re        *regexp.Regexp
}

// patterns are tried in order; the first match wins.
var patterns = []pattern{
	{"email", regexp.MustCompile(`(?i)email|mail|e-?mail`)},
	{"phone", regexp.MustCompile(`(?i)phone|mobile|tel|telephone|cell`)},
	{"firstName", regexp.MustCompile(`(?i)first.?name|fname|given.?name|first`)},
	{"lastName", regexp.MustCompile(`(?i)last.?name|lname|family.?name|surname|last`)},
	{"middleName", regexp.MustCompile(`(?i)middle.?name|mname|middle`)},
	{"date", regexp.MustCompile(`(?i)date|dob|birth|birthday|\d{1,2}/\d{1,2}/\d{4}`)},
	{"gender", regexp.MustCompile(`(?i)gender|sex`)},
	{"country", regexp.MustCompile(`(?i)country|nation|nationality`)},
	{"city", regexp.MustCompile(`(?i)city|town|location|municipality`)},
	{"address", regexp.MustCompile(`(?i)address|street|location|addr|postal`)},
	{"postalCode", regexp.MustCompile(`(?i)postal|zip|code|postcode`)},
}

// ignoredInputTypes never carry user data worth classifying.
var ignoredInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// Summary describes how much of a form the heuristics recognized.
type Summary struct {
	TotalFields     int            `json:"totalFields"`
	DetectedCount   int            `json:"detectedCount"`
	UndetectedCount int            `json:"undetectedCount"`
	DetectionRate   float64        `json:"detectionRate"`
	FieldTypes      map[string]int `json:"fieldTypes,omitempty"`
}

// Result is the outcome of analyzing one form.
type Result struct {
	Fields  []types.FieldDescriptor `json:"fields"`
	Summary Summary                 `json:"summary"`
}

// Analyze parses formHTML and returns its classified fields in document order.
// Field indices are positions in that order.
func Analyze(formHTML string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(formHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing form HTML: %w", err)
	}

	var fields []types.FieldDescriptor
	doc.Find("input, select, textarea").Each(func(_ int, el *goquery.Selection) {
		inputType := inputTypeOf(el)
		if ignoredInputTypes[inputType] {
			return
		}

		id, _ := el.Attr("id")
		name, _ := el.Attr("name")
		if name == "" {
			name = id
		}
		placeholder, _ := el.Attr("placeholder")

		f := types.FieldDescriptor{
			Index:       len(fields),
			Name:        name,
			ID:          id,
			Label:       findLabel(doc, el, id),
			Placeholder: placeholder,
			InputType:   inputType,
		}
		f.DetectedType = DetectType(f)
		f.DetectionConfidence = UnknownConfidence
		if f.DetectedType != types.UnknownType {
			f.DetectionConfidence = MatchedConfidence
		}
		f.ExpectedFormat = ExpectedFormat(f)
		fields = append(fields, f)
	})

	return &Result{Fields: fields, Summary: Summarize(fields)}, nil
}

// DetectType matches the field's name, placeholder and label against the
// known patterns, then falls back to the input type.
func DetectType(f types.FieldDescriptor) string {
	text := strings.ToLower(f.Name + " " + f.Placeholder + " " + f.Label)
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return p.fieldType
		}
	}
	switch f.InputType {
	case "email":
		return "email"
	case "tel":
		return "phone"
	case "date":
		return "date"
	}
	return types.UnknownType
}

// ExpectedFormat guesses the value format a field expects.
func ExpectedFormat(f types.FieldDescriptor) string {
	switch {
	case f.InputType == "date":
		return "YYYY-MM-DD"
	case f.DetectedType == "date":
		return "DD/MM/YYYY"
	case f.DetectedType == "phone" || f.InputType == "tel":
		return "E.164"
	case f.DetectedType == "email" || f.InputType == "email":
		return "email"
	}
	return "text"
}

// Summarize counts detected and undetected fields.
func Summarize(fields []types.FieldDescriptor) Summary {
	s := Summary{
		TotalFields: len(fields),
		FieldTypes:  make(map[string]int),
	}
	for _, f := range fields {
		s.FieldTypes[f.DetectedType]++
		if f.DetectedType != types.UnknownType {
			s.DetectedCount++
		}
	}
	s.UndetectedCount = s.TotalFields - s.DetectedCount
	if s.TotalFields > 0 {
		s.DetectionRate = float64(s.DetectedCount) / float64(s.TotalFields)
	}
	return s
}

func inputTypeOf(el *goquery.Selection) string {
	tag := goquery.NodeName(el)
	if tag != "input" {
		return tag
	}
	t, ok := el.Attr("type")
	if !ok || strings.TrimSpace(t) == "" {
		return "text"
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// findLabel resolves a field's label from label[for], a wrapping label, or
// aria-labelledby, in that order.
func findLabel(doc *goquery.Document, el *goquery.Selection, id string) string {
	if id != "" {
		var text string
		doc.Find("label").EachWithBreak(func(_ int, l *goquery.Selection) bool {
			if f, _ := l.Attr("for"); f == id {
				text = l.Text()
				return false
			}
			return true
		})
		if text != "" {
			return cleanText(text)
		}
	}
	if parent := el.Closest("label"); parent.Length() > 0 {
		return cleanText(parent.Text())
	}
	if ref, ok := el.Attr("aria-labelledby"); ok {
		var parts []string
		for _, refID := range strings.Fields(ref) {
			doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if v, _ := s.Attr("id"); v == refID {
					parts = append(parts, cleanText(s.Text()))
					return false
				}
				return true
			})
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
