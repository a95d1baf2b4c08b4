package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// Output-text locations per wire shape, tried left to right.
var (
	completionsTextQuery = mustCompile(`.choices[0].output_text // .choices[0].text // .output // empty`)
	generateTextQuery    = mustCompile(`.content // .outputs[0] // empty`)
	modelNameQuery       = mustCompile(`(if type == "array" then .[0].name else (.data[0].id // .models[0].name) end) // empty`)
)

func mustCompile(expression string) *gojq.Code {
	query, err := gojq.Parse(expression)
	if err != nil {
		panic(fmt.Sprintf("invalid jq expression %q: %v", expression, err))
	}
	code, err := gojq.Compile(query)
	if err != nil {
		panic(fmt.Sprintf("failed to compile jq expression %q: %v", expression, err))
	}
	return code
}

// firstText runs code against a JSON document and returns its first non-empty
// result as text. Strings are returned trimmed, other values as compact JSON.
// Invalid JSON and jq runtime errors yield "".
func firstText(code *gojq.Code, data []byte) string {
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return ""
	}

	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return ""
		}
		if _, isErr := v.(error); isErr {
			continue
		}
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			return string(b)
		}
	}
}
