package config

import (
	"encoding/json"

	"github.com/grovetools/pharmastock/schema"
)

// GenerateSchema generates the JSON Schema for pharmastock.yml. Known
// sections are closed; unknown top-level keys are left open for extension
// sections such as logging.
func GenerateSchema() ([]byte, error) {
	s := schema.Reflect(&Config{}, schema.Options{
		FieldNameTag:     "yaml",
		RequiredFromTags: true,
	})
	s.AdditionalProperties = nil
	s.Title = "pharmastock configuration"
	s.Description = "Schema for pharmastock.yml properties."

	return json.MarshalIndent(s, "", "  ")
}
