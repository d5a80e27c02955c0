// Package fakehub is an in-memory pharmacy backend: the dashboard REST API
// and the dashboard hub. It backs `pharmastock dev-server` and end-to-end tests.
package fakehub

import (
	"sort"
	"sync"
	"time"

	"github.com/grovetools/pharmastock/pkg/hub"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/shopspring/decimal"
)

// Event is one hub push.
type Event struct {
	Target  string
	Payload interface{}
}

// Store is the backend state. It is thread-safe and fans out every change
// as a hub event.
type Store struct {
	mu            sync.RWMutex
	stats         models.DashboardStats
	alerts        models.DashboardAlerts
	movements     []models.RecentMovement
	notifications []models.Notification
	lowStock      []models.LowStockAlert
	nextID        int64
	subscribers   map[chan Event]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		alerts:      models.EmptyAlerts(),
		nextID:      1000,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Stats returns the current counters.
func (s *Store) Stats() models.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Alerts returns the current alert set.
func (s *Store) Alerts() models.DashboardAlerts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts
}

// RecentMovements returns up to count movements, newest first.
func (s *Store) RecentMovements(count int) []models.RecentMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if count <= 0 || count > len(s.movements) {
		count = len(s.movements)
	}
	out := make([]models.RecentMovement, count)
	copy(out, s.movements[:count])
	return out
}

// Valuation returns the total stock value.
func (s *Store) Valuation() models.InventoryValuation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.InventoryValuation{
		TotalValue:    s.stats.TotalInventoryValue,
		TotalItems:    s.stats.TotalMedicines,
		ActiveBatches: s.stats.ActiveBatches,
	}
}

// LowStock returns medicines whose quantity is below threshold.
func (s *Store) LowStock(threshold int) []models.LowStockAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.LowStockAlert{}
	for _, item := range s.lowStock {
		if item.TotalQuantity < threshold {
			out = append(out, item)
		}
	}
	return out
}

// Notifications returns the user notifications, newest first.
func (s *Store) Notifications() []models.Notification {
	return s.filterNotifications(func(n models.Notification) bool { return !n.IsSystemAlert })
}

// SystemAlerts returns the system alert notifications, newest first.
func (s *Store) SystemAlerts() []models.Notification {
	return s.filterNotifications(func(n models.Notification) bool { return n.IsSystemAlert })
}

func (s *Store) filterNotifications(keep func(models.Notification) bool) []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Notification{}
	for _, n := range s.notifications {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// MarkRead marks one notification read. It reports whether it exists.
func (s *Store) MarkRead(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].IsRead = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every user notification read.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if !s.notifications[i].IsSystemAlert {
			s.notifications[i].IsRead = true
		}
	}
}

// Delete removes a notification. It reports whether it existed.
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i:i], s.notifications[i+1:]...)
			return true
		}
	}
	return false
}

// SetStats replaces the counters and pushes StatsUpdated.
func (s *Store) SetStats(stats models.DashboardStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	s.broadcast(Event{Target: hub.TargetStatsUpdated, Payload: stats})
}

// SetAlerts replaces the alert set and pushes AlertsUpdated.
func (s *Store) SetAlerts(alerts models.DashboardAlerts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = alerts.OrEmpty()
	s.stats.CriticalAlerts = len(s.alerts.Critical)
	s.stats.WarningAlerts = len(s.alerts.Warning)
	s.broadcast(Event{Target: hub.TargetAlertsUpdated, Payload: s.alerts})
	s.broadcast(Event{Target: hub.TargetStatsUpdated, Payload: s.stats})
}

// AddMovement records a stock movement, adjusts the counters and pushes
// MovementAdded followed by StatsUpdated.
func (s *Store) AddMovement(m models.RecentMovement, value decimal.Decimal) models.RecentMovement {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == 0 {
		s.nextID++
		m.ID = s.nextID
	}
	if m.PerformedAt.IsZero() {
		m.PerformedAt = models.NewTimestamp(time.Now())
	}
	s.movements = append([]models.RecentMovement{m}, s.movements...)
	if len(s.movements) > maxMovements {
		s.movements = s.movements[:maxMovements]
	}

	if m.Inbound() {
		s.stats.TotalInventoryValue = s.stats.TotalInventoryValue.Add(value)
	} else {
		s.stats.TotalInventoryValue = s.stats.TotalInventoryValue.Sub(value)
	}

	s.broadcast(Event{Target: hub.TargetMovementAdded, Payload: m})
	s.broadcast(Event{Target: hub.TargetStatsUpdated, Payload: s.stats})
	return m
}

// AddNotification stores a notification and pushes NotificationAdded.
func (s *Store) AddNotification(n models.Notification) models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == 0 {
		s.nextID++
		n.ID = s.nextID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = models.NewTimestamp(time.Now())
	}
	s.notifications = append([]models.Notification{n}, s.notifications...)
	s.broadcast(Event{Target: hub.TargetNotificationAdded, Payload: n})
	return n
}

// Notify pushes a generic notice.
func (s *Store) Notify(notice models.Notice) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if notice.Timestamp.IsZero() {
		notice.Timestamp = models.NewTimestamp(time.Now())
	}
	s.broadcast(Event{Target: hub.TargetNotification, Payload: notice})
}

// Publish pushes an arbitrary event, including malformed payloads for tests.
func (s *Store) Publish(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcast(e)
}

// broadcast must be called with s.mu held.
func (s *Store) broadcast(e Event) {
	for ch := range s.subscribers {
		select {
		case ch <- e:
		default:
			// Non-blocking send so a slow connection never stalls the store
		}
	}
}

// Subscribe creates a new subscription channel for hub events.
func (s *Store) Subscribe() chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, 100)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Subscribers returns the number of live hub connections.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

const maxMovements = 50

// Seed fills the store with a small demo pharmacy.
func (s *Store) Seed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := func(offset int) models.Timestamp {
		return models.NewTimestamp(now.AddDate(0, 0, offset).Truncate(24 * time.Hour))
	}
	ref := func(id int64) *int64 { return &id }

	s.alerts = models.DashboardAlerts{
		Critical: []models.AlertItem{
			{MedicineID: 3, MedicineName: "Insulin Glargine", BatchNumber: "INS-2291", ExpiryDate: day(4), DaysRemaining: 4, CurrentQuantity: 12},
		},
		Warning: []models.AlertItem{
			{MedicineID: 7, MedicineName: "Amoxicillin 500mg", BatchNumber: "AMX-0412", ExpiryDate: day(21), DaysRemaining: 21, CurrentQuantity: 140},
			{MedicineID: 9, MedicineName: "Salbutamol Inhaler", BatchNumber: "SAL-1187", ExpiryDate: day(27), DaysRemaining: 27, CurrentQuantity: 36},
		},
	}

	s.lowStock = []models.LowStockAlert{
		{MedicineID: 3, MedicineName: "Insulin Glargine", MedicineCode: "INS-G", TotalQuantity: 12, MinimumLevel: 40, CategoryName: "Endocrine"},
		{MedicineID: 11, MedicineName: "Epinephrine Auto-Injector", MedicineCode: "EPI-AI", TotalQuantity: 6, MinimumLevel: 20, CategoryName: "Emergency"},
		{MedicineID: 14, MedicineName: "Paracetamol 500mg", MedicineCode: "PCM-500", TotalQuantity: 95, MinimumLevel: 200, CategoryName: "Analgesics"},
	}

	s.movements = []models.RecentMovement{
		{ID: 105, MedicineName: "Paracetamol 500mg", BatchNumber: "PCM-7781", MovementType: "OUT_Dispense", Quantity: 20, PerformedAt: models.NewTimestamp(now.Add(-10 * time.Minute)), PerformedBy: "pharmacist"},
		{ID: 104, MedicineName: "Amoxicillin 500mg", BatchNumber: "AMX-0412", MovementType: "IN_Purchase", Quantity: 200, PerformedAt: models.NewTimestamp(now.Add(-55 * time.Minute)), PerformedBy: "admin"},
		{ID: 103, MedicineName: "Insulin Glargine", BatchNumber: "INS-2291", MovementType: "OUT_Dispense", Quantity: 2, PerformedAt: models.NewTimestamp(now.Add(-2 * time.Hour)), PerformedBy: "pharmacist"},
		{ID: 102, MedicineName: "Ibuprofen 400mg", BatchNumber: "IBU-3320", MovementType: "OUT_Adjustment", Quantity: 5, Reason: "Damaged packaging", PerformedAt: models.NewTimestamp(now.Add(-5 * time.Hour)), PerformedBy: "admin"},
		{ID: 101, MedicineName: "Salbutamol Inhaler", BatchNumber: "SAL-1187", MovementType: "IN_Purchase", Quantity: 48, PerformedAt: models.NewTimestamp(now.Add(-26 * time.Hour)), PerformedBy: "admin"},
	}

	s.notifications = []models.Notification{
		{ID: 21, UserID: ref(1), Title: "Low stock", Message: "Epinephrine Auto-Injector is below its minimum level", CreatedAt: models.NewTimestamp(now.Add(-30 * time.Minute)), Type: models.NotificationStockAlert, Priority: 2, RelatedEntityID: ref(11), RelatedEntityType: "Medicine"},
		{ID: 20, UserID: ref(1), Title: "Delivery received", Message: "Purchase order PO-118 was received", IsRead: true, CreatedAt: models.NewTimestamp(now.Add(-3 * time.Hour)), Type: models.NotificationInfo, Priority: 1},
		{ID: 12, IsSystemAlert: true, Title: "Batch expiring", Message: "Insulin Glargine batch INS-2291 expires in 4 days", CreatedAt: models.NewTimestamp(now.Add(-1 * time.Hour)), Type: models.NotificationCritical, Priority: 3, RelatedEntityID: ref(3), RelatedEntityType: "Medicine"},
		{ID: 11, IsSystemAlert: true, Title: "Batch expiring", Message: "Amoxicillin 500mg batch AMX-0412 expires in 21 days", CreatedAt: models.NewTimestamp(now.Add(-6 * time.Hour)), Type: models.NotificationWarning, Priority: 2, RelatedEntityID: ref(7), RelatedEntityType: "Medicine"},
	}
	sort.SliceStable(s.notifications, func(i, j int) bool {
		return s.notifications[i].CreatedAt.After(s.notifications[j].CreatedAt.Time)
	})

	s.stats = models.DashboardStats{
		TotalMedicines:      48,
		TotalInventoryValue: decimal.RequireFromString("182340.50"),
		CriticalAlerts:      len(s.alerts.Critical),
		WarningAlerts:       len(s.alerts.Warning),
		ActiveBatches:       131,
		LowStockItems:       len(s.lowStock),
	}
}
