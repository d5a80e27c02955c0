package config

import (
	"sync"

	"github.com/grovetools/pharmastock/schema"
)

var (
	schemaValidator     *SchemaValidator
	schemaValidatorErr  error
	schemaValidatorOnce sync.Once
)

// SchemaValidator validates raw configuration documents against the
// generated JSON Schema.
type SchemaValidator struct {
	validator *schema.Validator
}

// NewSchemaValidator returns the shared validator, compiling the schema on
// first use.
func NewSchemaValidator() (*SchemaValidator, error) {
	schemaValidatorOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			schemaValidatorErr = err
			return
		}
		v, err := schema.NewValidator("pharmastock.schema.json", data)
		if err != nil {
			schemaValidatorErr = err
			return
		}
		schemaValidator = &SchemaValidator{validator: v}
	})
	return schemaValidator, schemaValidatorErr
}

// Validate validates configuration data against the schema.
func (v *SchemaValidator) Validate(configData interface{}) error {
	return v.validator.Validate(configData)
}
