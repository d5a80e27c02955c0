package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/grovetools/pharmastock/schema"
)

var (
	payloadValidatorsOnce sync.Once
	payloadValidators     map[string]*schema.Validator
	payloadValidatorsErr  error
)

// payloadSchemas lists the payload type of every known target.
var payloadSchemas = map[string]interface{}{
	TargetStatsUpdated:      &models.DashboardStats{},
	TargetAlertsUpdated:     &models.DashboardAlerts{},
	TargetMovementAdded:     &models.RecentMovement{},
	TargetNotificationAdded: &models.Notification{},
	TargetNotification:      &models.Notice{},
}

// Unknown properties are allowed so the backend can add fields.
var payloadSchemaOptions = schema.Options{
	AllowAdditionalProperties: true,
	RequiredFromTags:          true,
	Mapper:                    models.SchemaMapper,
}

// PayloadSchemas returns the JSON Schema document of every target's payload.
func PayloadSchemas() (map[string][]byte, error) {
	docs := make(map[string][]byte, len(payloadSchemas))
	for target, v := range payloadSchemas {
		data, err := json.MarshalIndent(schema.Reflect(v, payloadSchemaOptions), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s schema: %w", target, err)
		}
		docs[target] = data
	}
	return docs, nil
}

// validators compiles one schema per target on first use.
func validators() (map[string]*schema.Validator, error) {
	payloadValidatorsOnce.Do(func() {
		docs, err := PayloadSchemas()
		if err != nil {
			payloadValidatorsErr = err
			return
		}
		compiled := make(map[string]*schema.Validator, len(docs))
		for target, doc := range docs {
			validator, err := schema.NewValidator(target+".schema.json", doc)
			if err != nil {
				payloadValidatorsErr = fmt.Errorf("failed to build %s schema: %w", target, err)
				return
			}
			compiled[target] = validator
		}
		payloadValidators = compiled
	})
	return payloadValidators, payloadValidatorsErr
}
