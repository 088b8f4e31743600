package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/relaystack/toolhost/internal/fault"
)

// Compiled is a JSON schema compiled once at registration time. A nil
// *Compiled accepts every value, which is how tools without a declared
// contract behave.
type Compiled struct {
	schema *jsonschema.Schema
	raw    map[string]any
}

// Compile builds a validator from a JSON-schema-shaped document. Compilation
// errors are registration-time errors; they never occur on the request path.
func Compile(doc map[string]any) (*Compiled, error) {
	if doc == nil {
		return nil, nil
	}

	// Round-trip through encoding/json so the compiler sees the same value
	// shapes a wire payload would produce.
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema marshal: %w", err)
	}
	var docObj any
	if err := json.Unmarshal(docBytes, &docObj); err != nil {
		return nil, fmt.Errorf("schema unmarshal: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", docObj); err != nil {
		return nil, fmt.Errorf("schema resource: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema compile: %w", err)
	}

	return &Compiled{schema: sch, raw: doc}, nil
}

// MustCompile is Compile for compiled-in definitions whose schemas are
// authored in source and cannot fail.
func MustCompile(doc map[string]any) *Compiled {
	c, err := Compile(doc)
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return c
}

// Raw returns the original schema document for transports that embed the
// contract verbatim in listings.
func (c *Compiled) Raw() map[string]any {
	if c == nil {
		return nil
	}
	return c.raw
}

// Validate checks a structured value against the schema and returns
// field-level violations, or nil when the value conforms.
func (c *Compiled) Validate(v any) []fault.FieldError {
	if c == nil {
		return nil
	}

	// Normalize through JSON so Go-native values (int, struct maps) compare
	// the way decoded wire payloads do.
	b, err := json.Marshal(v)
	if err != nil {
		return []fault.FieldError{{Path: "", Message: fmt.Sprintf("value is not JSON-representable: %v", err)}}
	}
	var norm any
	if err := json.Unmarshal(b, &norm); err != nil {
		return []fault.FieldError{{Path: "", Message: fmt.Sprintf("value decode: %v", err)}}
	}

	err = c.schema.Validate(norm)
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []fault.FieldError{{Path: "", Message: err.Error()}}
	}
	return flatten(ve)
}

// flatten walks the cause tree and keeps the leaves, which carry the
// specific violations.
func flatten(ve *jsonschema.ValidationError) []fault.FieldError {
	if len(ve.Causes) == 0 {
		return []fault.FieldError{{
			Path:    instancePath(ve.InstanceLocation),
			Message: ve.Error(),
		}}
	}
	var out []fault.FieldError
	for _, cause := range ve.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}

func instancePath(loc []string) string {
	if len(loc) == 0 {
		return ""
	}
	return "/" + strings.Join(loc, "/")
}
