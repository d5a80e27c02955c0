package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01T10:15:30Z", time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC)},
		{"2026-03-01T10:15:30.1234567", time.Date(2026, 3, 1, 10, 15, 30, 123456700, time.UTC)},
		{"2026-03-01T10:15:30", time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC)},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(`"`+tt.in+`"`), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`42`), &ts))
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
}

func TestDashboardStatsDecimal(t *testing.T) {
	var stats DashboardStats
	require.NoError(t, json.Unmarshal([]byte(`{
		"totalMedicines": 120,
		"totalInventoryValue": 15234.75,
		"criticalAlerts": 2,
		"warningAlerts": 5,
		"activeBatches": 310,
		"lowStockItems": 7
	}`), &stats))

	assert.Equal(t, 120, stats.TotalMedicines)
	assert.True(t, decimal.RequireFromString("15234.75").Equal(stats.TotalInventoryValue))

	out, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"totalInventoryValue":15234.75`)
}

func TestAlertsFromNotifications(t *testing.T) {
	medicine := int64(42)
	alerts := AlertsFromNotifications([]Notification{
		{ID: 1, Type: NotificationCritical, Message: "Batch B-7 expired", RelatedEntityID: &medicine},
		{ID: 2, Type: NotificationWarning, Message: "Batch B-9 expires in 20 days"},
		{ID: 3, Type: NotificationInfo, Message: "Backup completed"},
		{ID: 4, Type: NotificationStockAlert, Message: "Low stock"},
	})

	require.Len(t, alerts.Critical, 1)
	require.Len(t, alerts.Warning, 1)
	assert.Equal(t, int64(42), alerts.Critical[0].MedicineID)
	assert.Equal(t, "Batch B-7 expired", alerts.Critical[0].Message)
	assert.Equal(t, int64(0), alerts.Warning[0].MedicineID)
	assert.Equal(t, 2, alerts.Total())

	empty := AlertsFromNotifications(nil)
	assert.NotNil(t, empty.Critical)
	assert.NotNil(t, empty.Warning)
}

func TestRecentMovementDisplayType(t *testing.T) {
	assert.Equal(t, "Purchase", RecentMovement{MovementType: "IN_Purchase"}.DisplayType())
	assert.Equal(t, "Dispense", RecentMovement{MovementType: "OUT_Dispense"}.DisplayType())
	assert.Equal(t, "Adjustment", RecentMovement{MovementType: "Adjustment"}.DisplayType())
	assert.True(t, RecentMovement{MovementType: "IN_Return"}.Inbound())
	assert.False(t, RecentMovement{MovementType: "OUT_Expired"}.Inbound())
}

func TestNotificationDecoding(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 9,
		"userId": null,
		"isSystemAlert": true,
		"title": "Expiry",
		"message": "Batch B-1 expires tomorrow",
		"isRead": false,
		"createdAt": "2026-03-01T08:00:00",
		"type": 4,
		"priority": 5,
		"relatedEntityId": 17,
		"relatedEntityType": "Batch"
	}`), &n))

	assert.Nil(t, n.UserID)
	require.NotNil(t, n.RelatedEntityID)
	assert.Equal(t, int64(17), *n.RelatedEntityID)
	assert.Equal(t, NotificationExpiryAlert, n.Type)
	assert.Equal(t, "ExpiryAlert", n.Type.String())
	assert.Equal(t, "NotificationType(9)", NotificationType(9).String())
	assert.Equal(t, 1, CountUnread([]Notification{n, {IsRead: true}}))
}
