package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadSchemasCoverEveryTarget(t *testing.T) {
	docs, err := PayloadSchemas()
	require.NoError(t, err)
	assert.Len(t, docs, len(payloadSchemas))

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(docs[TargetStatsUpdated], &stats))
	assert.Contains(t, stats["required"], "totalMedicines")
}

func TestPayloadValidators(t *testing.T) {
	compiled, err := validators()
	require.NoError(t, err)

	movement := compiled[TargetMovementAdded]
	require.NotNil(t, movement)
	assert.NoError(t, movement.ValidateJSON([]byte(`{"id":7,"medicineName":"Ibuprofen 400mg","movementType":"IN_Purchase","quantity":10,"extra":true}`)))
	assert.Error(t, movement.ValidateJSON([]byte(`{"id":"seven","medicineName":"Ibuprofen 400mg","movementType":"IN_Purchase"}`)))
	assert.Error(t, movement.ValidateJSON([]byte(`{"medicineName":"Ibuprofen 400mg"}`)))
}
