package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID       int64    `json:"id" jsonschema:"required"`
	Name     string   `json:"name" jsonschema:"required"`
	Note     string   `json:"note,omitempty"`
	ParentID *int64   `json:"parentId" jsonschema:"oneof_type=integer;null"`
	Tags     []string `json:"tags,omitempty"`
}

func TestForTypeValidatesRequiredFields(t *testing.T) {
	v, err := ForType("sample.json", &sample{}, Options{
		AllowAdditionalProperties: true,
		RequiredFromTags:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, "sample.json", v.Name())

	t.Run("valid document", func(t *testing.T) {
		assert.NoError(t, v.ValidateJSON([]byte(`{"id":1,"name":"Paracetamol","parentId":null}`)))
	})

	t.Run("unknown properties allowed", func(t *testing.T) {
		assert.NoError(t, v.ValidateJSON([]byte(`{"id":1,"name":"x","extra":true}`)))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := v.ValidateJSON([]byte(`{"id":1}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation failed")
	})

	t.Run("wrong type", func(t *testing.T) {
		assert.Error(t, v.ValidateJSON([]byte(`{"id":"one","name":"x"}`)))
	})

	t.Run("not json", func(t *testing.T) {
		err := v.ValidateJSON([]byte(`{"id":`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON document")
	})
}

func TestValidateStruct(t *testing.T) {
	v, err := ForType("sample.json", &sample{}, Options{RequiredFromTags: true})
	require.NoError(t, err)

	assert.NoError(t, v.Validate(sample{ID: 3, Name: "Ibuprofen"}))
}

func TestClosedSchemaRejectsUnknownProperties(t *testing.T) {
	v, err := ForType("closed.json", &sample{}, Options{RequiredFromTags: true})
	require.NoError(t, err)

	assert.Error(t, v.ValidateJSON([]byte(`{"id":1,"name":"x","extra":true}`)))
}
