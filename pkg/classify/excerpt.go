package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxHTMLChars caps the form HTML embedded in a prompt.
const DefaultMaxHTMLChars = 8192

var interTagSpace = regexp.MustCompile(`>\s+<`)

// formPolicy keeps the elements and attributes that name or describe a form
// field. Everything else is unwrapped to its text; script-like content,
// comments and styles are dropped.
var formPolicy = newFormPolicy()

func newFormPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"form", "fieldset", "legend", "label",
		"input", "select", "option", "optgroup", "textarea", "button", "datalist",
		"h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "span", "section",
		"table", "tr", "th", "td", "ul", "ol", "li",
	)
	p.AllowAttrs("id", "name", "title", "role", "placeholder", "autocomplete",
		"aria-label", "aria-labelledby", "aria-describedby").Globally()
	p.AllowAttrs("type", "value", "required", "pattern", "inputmode",
		"minlength", "maxlength", "min", "max", "multiple").OnElements("input", "select", "textarea", "button")
	p.AllowAttrs("for").OnElements("label")
	p.AllowAttrs("value", "label").OnElements("option", "optgroup")
	p.SkipElementsContent("svg", "template")
	return p
}

// Excerpt compacts form HTML for a prompt and truncates it to maxChars runes.
func Excerpt(formHTML string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxHTMLChars
	}
	compact := formPolicy.Sanitize(formHTML)
	compact = strings.TrimSpace(interTagSpace.ReplaceAllString(compact, "><"))
	return truncateRunes(compact, maxChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
