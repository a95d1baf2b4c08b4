package tools

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// AddTool registers a tool with the server after checking its output type
// with CheckOutputSchema.
//
// Panics if the output type cannot round-trip through its inferred schema.
func AddTool[In, Out any](srv *sdkmcp.Server, t *sdkmcp.Tool, h sdkmcp.ToolHandlerFor[In, Out]) {
	CheckOutputSchema[Out](t.Name)
	sdkmcp.AddTool(srv, t, h)
}

// CheckOutputSchema panics if values of T can marshal to JSON that fails the
// schema the MCP SDK infers from T.
//
// json.Marshal writes a nil slice or map as null while the inferred schema
// says "array" or "object". The zero value of T catches this for top-level
// fields; nested fields (a slice inside a slice element, say) are only
// reachable by walking the type, so every slice or map field anywhere in T
// must carry omitempty or omitzero.
//
// json.RawMessage is rejected too: it marshals as arbitrary JSON but is
// inferred as []byte.
//
// No-ops for the untyped "any" output, or when schema inference fails (the
// SDK reports that itself).
func CheckOutputSchema[T any](toolName string) {
	rt := reflect.TypeFor[T]()
	if rt == reflect.TypeFor[any]() {
		return
	}
	elem := rt
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}

	var rawPaths, nullablePaths []string
	walkFields(elem, nil, make(map[reflect.Type]bool), func(path []string, f reflect.StructField) {
		switch {
		case f.Type == rawMessageType || (f.Type.Kind() == reflect.Slice && f.Type.Elem() == rawMessageType):
			rawPaths = append(rawPaths, strings.Join(path, "."))
		case (f.Type.Kind() == reflect.Slice || f.Type.Kind() == reflect.Map) && !omitsZero(f):
			nullablePaths = append(nullablePaths, strings.Join(path, "."))
		}
	})

	if len(rawPaths) > 0 {
		panic(fmt.Sprintf(
			"AddTool %q: output type %s contains json.RawMessage at %s\n"+
				"  json.RawMessage serializes as transparent JSON but schema generator infers []byte (array of ints)\n"+
				"  Fix: change the field type to a concrete struct, or to any holding the decoded value",
			toolName, elem, strings.Join(rawPaths, ", "),
		))
	}
	if len(nullablePaths) > 0 {
		panic(fmt.Sprintf(
			"AddTool %q: output type %s has slice or map fields that marshal as null when nil: %s\n"+
				"  Fix: add `omitzero` (or `omitempty`) to their json tags",
			toolName, elem, strings.Join(nullablePaths, ", "),
		))
	}

	schema, err := jsonschema.ForType(elem, &jsonschema.ForOptions{})
	if err != nil {
		return
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return
	}

	data, err := json.Marshal(reflect.Zero(elem).Interface())
	if err != nil {
		return
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return
	}
	if err := resolved.Validate(&v); err != nil {
		panic(fmt.Sprintf(
			"AddTool %q: zero value of output type %s fails schema validation: %v\n"+
				"  JSON: %s",
			toolName, elem, err, data,
		))
	}
}

var rawMessageType = reflect.TypeFor[json.RawMessage]()

// walkFields calls visit for every exported struct field reachable from t,
// descending through pointers, slices, arrays and map values.
func walkFields(t reflect.Type, path []string, visited map[reflect.Type]bool, visit func([]string, reflect.StructField)) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == rawMessageType || visited[t] {
		return
	}
	visited[t] = true
	defer delete(visited, t)

	switch t.Kind() {
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || jsonName(f) == "-" {
				continue
			}
			fieldPath := append(append([]string(nil), path...), f.Name)
			visit(fieldPath, f)
			walkFields(f.Type, fieldPath, visited, visit)
		}
	case reflect.Slice, reflect.Array:
		walkFields(t.Elem(), append(path, "[]"), visited, visit)
	case reflect.Map:
		walkFields(t.Elem(), append(path, "[value]"), visited, visit)
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	return name
}

func omitsZero(f reflect.StructField) bool {
	_, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
	for _, o := range strings.Split(opts, ",") {
		if o == "omitempty" || o == "omitzero" {
			return true
		}
	}
	return false
}
