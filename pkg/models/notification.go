package models

import "fmt"

// NotificationType classifies a notification.
type NotificationType int

const (
	NotificationInfo NotificationType = iota
	NotificationWarning
	NotificationCritical
	NotificationStockAlert
	NotificationExpiryAlert
)

// String returns the display name of the type.
func (t NotificationType) String() string {
	switch t {
	case NotificationInfo:
		return "Info"
	case NotificationWarning:
		return "Warning"
	case NotificationCritical:
		return "Critical"
	case NotificationStockAlert:
		return "StockAlert"
	case NotificationExpiryAlert:
		return "ExpiryAlert"
	default:
		return fmt.Sprintf("NotificationType(%d)", int(t))
	}
}

// Notification is a user or system notification.
type Notification struct {
	ID                int64            `json:"id" jsonschema:"required"`
	UserID            *int64           `json:"userId,omitempty" jsonschema:"oneof_type=integer;null"`
	IsSystemAlert     bool             `json:"isSystemAlert"`
	Title             string           `json:"title" jsonschema:"required"`
	Message           string           `json:"message"`
	IsRead            bool             `json:"isRead"`
	CreatedAt         Timestamp        `json:"createdAt"`
	Type              NotificationType `json:"type" jsonschema:"required"`
	Priority          int              `json:"priority"`
	RelatedEntityID   *int64           `json:"relatedEntityId,omitempty" jsonschema:"oneof_type=integer;null"`
	RelatedEntityType string           `json:"relatedEntityType,omitempty" jsonschema:"oneof_type=string;null"`
}

// CountUnread returns how many notifications are unread.
func CountUnread(notifications []Notification) int {
	n := 0
	for _, notification := range notifications {
		if !notification.IsRead {
			n++
		}
	}
	return n
}
