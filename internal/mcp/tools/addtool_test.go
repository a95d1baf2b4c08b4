package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOutputSchema_panicsOnNilSlice(t *testing.T) {
	type BadOutput struct {
		Items []string `json:"items"` // no omitzero → nil → null → schema expects array
	}
	assert.Panics(t, func() {
		CheckOutputSchema[BadOutput]("test_bad_tool")
	})
}

func TestCheckOutputSchema_okWithOmitzero(t *testing.T) {
	type GoodOutput struct {
		Items []string `json:"items,omitzero"`
	}
	assert.NotPanics(t, func() {
		CheckOutputSchema[GoodOutput]("test_good_tool")
	})
}

func TestCheckOutputSchema_okWithOmitempty(t *testing.T) {
	type GoodOutput struct {
		Items []string `json:"items,omitempty"`
	}
	assert.NotPanics(t, func() {
		CheckOutputSchema[GoodOutput]("test_good_tool")
	})
}

func TestCheckOutputSchema_okWithNoSlices(t *testing.T) {
	type SimpleOutput struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	assert.NotPanics(t, func() {
		CheckOutputSchema[SimpleOutput]("test_simple_tool")
	})
}

func TestCheckOutputSchema_okWithAny(t *testing.T) {
	assert.NotPanics(t, func() {
		CheckOutputSchema[any]("test_any_tool")
	})
}

func TestCheckOutputSchema_okWithPointerSlice(t *testing.T) {
	type PtrOutput struct {
		Items *[]string `json:"items"`
	}
	// Pointer to slice: zero value is nil pointer, serializes as null.
	// Schema allows null for pointer types, so this passes.
	assert.NotPanics(t, func() {
		CheckOutputSchema[PtrOutput]("test_ptr_tool")
	})
}

func TestCheckOutputSchema_panicsOnRawMessage(t *testing.T) {
	type BadOutput struct {
		Data json.RawMessage `json:"data,omitempty"`
	}
	assert.Panics(t, func() {
		CheckOutputSchema[BadOutput]("test_raw_message")
	})
}

func TestCheckOutputSchema_panicsOnRawMessageSlice(t *testing.T) {
	type BadOutput struct {
		Items []json.RawMessage `json:"items,omitzero"`
	}
	assert.Panics(t, func() {
		CheckOutputSchema[BadOutput]("test_raw_message_slice")
	})
}

func TestCheckOutputSchema_panicsOnNestedRawMessage(t *testing.T) {
	type Inner struct {
		Schema json.RawMessage `json:"schema,omitempty"`
	}
	type BadOutput struct {
		Nested Inner `json:"nested"`
	}
	assert.Panics(t, func() {
		CheckOutputSchema[BadOutput]("test_nested_raw_message")
	})
}

func TestCheckOutputSchema_okWithAnySlice(t *testing.T) {
	type GoodOutput struct {
		Items []any `json:"items,omitzero"`
	}
	assert.NotPanics(t, func() {
		CheckOutputSchema[GoodOutput]("test_any_slice")
	})
}

func TestCheckOutputSchema_panicsOnNestedNilSlice(t *testing.T) {
	type Item struct {
		Tags []string `json:"tags"`
	}
	type BadOutput struct {
		Items []Item `json:"items,omitzero"`
	}
	// The zero value has no items, so only the type walk can catch this.
	assert.Panics(t, func() {
		CheckOutputSchema[BadOutput]("test_nested_nil_slice")
	})
}

func TestCheckOutputSchema_panicsOnNilMap(t *testing.T) {
	type BadOutput struct {
		Counts map[string]int `json:"counts"`
	}
	assert.Panics(t, func() {
		CheckOutputSchema[BadOutput]("test_nil_map")
	})
}

func TestCheckOutputSchema_ignoresSkippedFields(t *testing.T) {
	type GoodOutput struct {
		Internal []string `json:"-"`
		Count    int      `json:"count"`
	}
	assert.NotPanics(t, func() {
		CheckOutputSchema[GoodOutput]("test_skipped")
	})
}

func TestCheckOutputSchema_formsenseOutputs(t *testing.T) {
	assert.NotPanics(t, func() {
		CheckOutputSchema[DiscoverBackendsOutput]("formsense_discover_backends")
		CheckOutputSchema[CheckBackendOutput]("formsense_check_backend")
		CheckOutputSchema[AnalyzeFormOutput]("formsense_analyze_form")
		CheckOutputSchema[ClassifyFieldsOutput]("formsense_classify_fields")
		CheckOutputSchema[MergeSuggestionsOutput]("formsense_merge_suggestions")
	})
}
