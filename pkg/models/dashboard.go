// Package models defines the payloads exchanged with the pharmacy backend,
// both over REST and on the dashboard hub.
package models

import (
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

func init() {
	// The backend sends monetary values as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// DashboardStats is the headline counter snapshot. Every update replaces the
// previous value as a whole.
type DashboardStats struct {
	TotalMedicines      int             `json:"totalMedicines" jsonschema:"required"`
	TotalInventoryValue decimal.Decimal `json:"totalInventoryValue" jsonschema:"required"`
	CriticalAlerts      int             `json:"criticalAlerts" jsonschema:"required"`
	WarningAlerts       int             `json:"warningAlerts" jsonschema:"required"`
	ActiveBatches       int             `json:"activeBatches" jsonschema:"required"`
	LowStockItems       int             `json:"lowStockItems" jsonschema:"required"`
}

// AlertItem is one expiry or stock alert.
type AlertItem struct {
	MedicineID      int64     `json:"medicineId" jsonschema:"required"`
	MedicineName    string    `json:"medicineName"`
	BatchNumber     string    `json:"batchNumber"`
	ExpiryDate      Timestamp `json:"expiryDate"`
	DaysRemaining   int       `json:"daysRemaining"`
	CurrentQuantity int       `json:"currentQuantity"`
	Message         string    `json:"message,omitempty" jsonschema:"oneof_type=string;null"`
}

// DashboardAlerts groups alerts by severity.
type DashboardAlerts struct {
	Critical []AlertItem `json:"critical" jsonschema:"required"`
	Warning  []AlertItem `json:"warning" jsonschema:"required"`
}

// EmptyAlerts returns an alert set with non-nil, empty lists.
func EmptyAlerts() DashboardAlerts {
	return DashboardAlerts{Critical: []AlertItem{}, Warning: []AlertItem{}}
}

// OrEmpty returns a copy of a with nil lists replaced by empty ones.
func (a DashboardAlerts) OrEmpty() DashboardAlerts {
	if a.Critical == nil {
		a.Critical = []AlertItem{}
	}
	if a.Warning == nil {
		a.Warning = []AlertItem{}
	}
	return a
}

// Total returns the number of alerts across both severities.
func (a DashboardAlerts) Total() int {
	return len(a.Critical) + len(a.Warning)
}

// AlertsFromNotifications builds the alert set shown on the dashboard from
// system-alert notifications. Critical notifications go to the critical list,
// warnings to the warning list; every other type is ignored.
func AlertsFromNotifications(notifications []Notification) DashboardAlerts {
	alerts := EmptyAlerts()
	today := Timestamp{Time: time.Now().UTC().Truncate(24 * time.Hour)}

	for _, n := range notifications {
		item := AlertItem{
			ExpiryDate: today,
			Message:    n.Message,
		}
		if n.RelatedEntityID != nil {
			item.MedicineID = *n.RelatedEntityID
		}

		switch n.Type {
		case NotificationCritical:
			alerts.Critical = append(alerts.Critical, item)
		case NotificationWarning:
			alerts.Warning = append(alerts.Warning, item)
		}
	}

	return alerts
}

// RecentMovement is one stock movement, e.g. a purchase or a dispense.
type RecentMovement struct {
	ID           int64     `json:"id" jsonschema:"required"`
	MedicineName string    `json:"medicineName" jsonschema:"required"`
	BatchNumber  string    `json:"batchNumber"`
	MovementType string    `json:"movementType" jsonschema:"required"`
	Quantity     int       `json:"quantity"`
	Reason       string    `json:"reason,omitempty" jsonschema:"oneof_type=string;null"`
	PerformedAt  Timestamp `json:"performedAt"`
	PerformedBy  string    `json:"performedBy"`
}

// DisplayType strips the IN_/OUT_ direction prefix, e.g. "IN_Purchase" → "Purchase".
func (m RecentMovement) DisplayType() string {
	return strings.TrimPrefix(strings.TrimPrefix(m.MovementType, "IN_"), "OUT_")
}

// Inbound reports whether the movement adds stock.
func (m RecentMovement) Inbound() bool {
	return strings.HasPrefix(m.MovementType, "IN")
}

// InventoryValuation is the total stock valuation.
type InventoryValuation struct {
	TotalValue    decimal.Decimal `json:"totalValue"`
	TotalItems    int             `json:"totalItems"`
	ActiveBatches int             `json:"activeBatches"`
}

// LowStockAlert is a medicine whose total quantity is under its minimum level.
type LowStockAlert struct {
	MedicineID    int64  `json:"medicineId"`
	MedicineName  string `json:"medicineName"`
	MedicineCode  string `json:"medicineCode"`
	TotalQuantity int    `json:"totalQuantity"`
	MinimumLevel  int    `json:"minimumLevel"`
	CategoryName  string `json:"categoryName"`
}

// Notice is the generic message pushed on the hub's Notification target.
type Notice struct {
	Message   string    `json:"message" jsonschema:"required"`
	Type      string    `json:"type"`
	Timestamp Timestamp `json:"timestamp"`
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// SchemaMapper maps types that reflect poorly into JSON Schema. Decimals are
// accepted as numbers or numeric strings.
func SchemaMapper(t reflect.Type) *jsonschema.Schema {
	if t == decimalType {
		return &jsonschema.Schema{
			AnyOf: []*jsonschema.Schema{
				{Type: "number"},
				{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`},
			},
		}
	}
	return nil
}
