// Package schema compiles JSON Schemas reflected from Go types and validates
// documents against them.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	reflector "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates documents against a compiled JSON Schema.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// Options controls how a Go type is reflected into a schema.
type Options struct {
	// FieldNameTag selects the struct tag used for property names ("json" by default).
	FieldNameTag string
	// AllowAdditionalProperties leaves unknown properties unconstrained.
	AllowAdditionalProperties bool
	// RequiredFromTags only marks fields tagged `jsonschema:"required"` as required.
	RequiredFromTags bool
	// Mapper overrides the schema of specific types.
	Mapper func(reflect.Type) *reflector.Schema
}

// Reflect builds the JSON Schema for v.
func Reflect(v interface{}, opts Options) *reflector.Schema {
	r := &reflector.Reflector{
		FieldNameTag:               opts.FieldNameTag,
		AllowAdditionalProperties:  opts.AllowAdditionalProperties,
		RequiredFromJSONSchemaTags: opts.RequiredFromTags,
		ExpandedStruct:             true,
		Anonymous:                  true,
		Mapper:                     opts.Mapper,
	}
	return r.Reflect(v)
}

// NewValidator compiles a schema document under the given resource name.
func NewValidator(name string, schemaJSON []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}

	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	return &Validator{name: name, schema: compiled}, nil
}

// ForType reflects v and compiles the resulting schema.
func ForType(name string, v interface{}, opts Options) (*Validator, error) {
	data, err := json.Marshal(Reflect(v, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema %s: %w", name, err)
	}
	return NewValidator(name, data)
}

// Name returns the resource name the validator was compiled under.
func (v *Validator) Name() string {
	return v.name
}

// Validate validates any value that can be marshaled to JSON.
func (v *Validator) Validate(data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal document for validation: %w", err)
	}
	return v.ValidateJSON(jsonData)
}

// ValidateJSON validates a raw JSON document.
func (v *Validator) ValidateJSON(raw []byte) error {
	doc, err := unmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON document: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var errorMessages []string
			collectErrors(validationErr, &errorMessages)
			return fmt.Errorf("schema validation failed:\n%s", strings.Join(errorMessages, "\n"))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// unmarshalJSON decodes a JSON document with json.Number for numbers, as
// required by jsonschema v5's Schema.Validate.
func unmarshalJSON(r io.Reader) (interface{}, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid character after top-level value")
	}
	return doc, nil
}

// collectErrors recursively collects all validation errors into a slice
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		*messages = append(*messages, fmt.Sprintf("- %s: %s", location, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
