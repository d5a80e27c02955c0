package live

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func movement(id int64) models.RecentMovement {
	return models.RecentMovement{ID: id, MedicineName: fmt.Sprintf("Medicine %d", id), MovementType: "IN_Purchase"}
}

func ids(movements []models.RecentMovement) []int64 {
	out := make([]int64, len(movements))
	for i, m := range movements {
		out[i] = m.ID
	}
	return out
}

// fakeSource publishes events the way the hub channel does.
type fakeSource struct {
	stats         *broadcast.Topic[models.DashboardStats]
	alerts        *broadcast.Topic[models.DashboardAlerts]
	movements     *broadcast.Topic[models.RecentMovement]
	notifications *broadcast.Topic[models.Notification]
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		stats:         broadcast.NewTopic[models.DashboardStats](broadcast.Options{Retain: true}),
		alerts:        broadcast.NewTopic[models.DashboardAlerts](broadcast.Options{Retain: true}),
		movements:     broadcast.NewTopic[models.RecentMovement](broadcast.Options{}),
		notifications: broadcast.NewTopic[models.Notification](broadcast.Options{}),
	}
}

func (s *fakeSource) Stats() *broadcast.Subscription[models.DashboardStats] {
	return s.stats.Subscribe()
}
func (s *fakeSource) Alerts() *broadcast.Subscription[models.DashboardAlerts] {
	return s.alerts.Subscribe()
}
func (s *fakeSource) Movements() *broadcast.Subscription[models.RecentMovement] {
	return s.movements.Subscribe()
}
func (s *fakeSource) Notifications() *broadcast.Subscription[models.Notification] {
	return s.notifications.Subscribe()
}

// fakeLoader serves canned snapshots and records calls.
type fakeLoader struct {
	mu            sync.Mutex
	stats         models.DashboardStats
	systemAlerts  []models.Notification
	movements     []models.RecentMovement
	notifications []models.Notification
	err           error
	markErr       error
	calls         []string
	// onMark runs inside MarkAsRead, before it returns.
	onMark func()
}

func (f *fakeLoader) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeLoader) GetStats(ctx context.Context) (models.DashboardStats, error) {
	return f.stats, f.record("stats")
}

func (f *fakeLoader) GetSystemAlerts(ctx context.Context) ([]models.Notification, error) {
	return f.systemAlerts, f.record("system-alerts")
}

func (f *fakeLoader) GetRecentMovements(ctx context.Context, count int) ([]models.RecentMovement, error) {
	return f.movements, f.record(fmt.Sprintf("movements:%d", count))
}

func (f *fakeLoader) GetMyNotifications(ctx context.Context) ([]models.Notification, error) {
	return f.notifications, f.record("notifications")
}

func (f *fakeLoader) MarkAsRead(ctx context.Context, id int64) error {
	f.record(fmt.Sprintf("read:%d", id))
	if f.onMark != nil {
		f.onMark()
	}
	return f.markErr
}

func (f *fakeLoader) MarkAllAsRead(ctx context.Context) error {
	f.record("read-all")
	return f.markErr
}

func (f *fakeLoader) DeleteNotification(ctx context.Context, id int64) error {
	f.record(fmt.Sprintf("delete:%d", id))
	return f.markErr
}

func TestPrependCapacityBeforeSnapshot(t *testing.T) {
	fold := Prepend(DefaultRecentMovements, movementID)

	var list []models.RecentMovement
	for i := int64(1); i <= 12; i++ {
		list = fold(list, movement(i))
		assert.LessOrEqual(t, len(list), DefaultRecentMovements)
	}
	assert.Equal(t, []int64{12, 11, 10, 9, 8}, ids(list))
}

func TestPrependOrdering(t *testing.T) {
	fold := Prepend(5, movementID)
	list := fold(fold([]models.RecentMovement{}, movement(1)), movement(2))
	assert.Equal(t, []int64{2, 1}, ids(list))
}

func TestPrependTruncation(t *testing.T) {
	fold := Prepend(3, movementID)
	initial := []models.RecentMovement{movement(3), movement(2), movement(1)}

	next := fold(initial, movement(4))
	assert.Equal(t, []int64{4, 3, 2}, ids(next))
	// The input is left untouched.
	assert.Equal(t, []int64{3, 2, 1}, ids(initial))
}

func TestPrependDedupe(t *testing.T) {
	fold := Prepend(5, movementID)
	initial := []models.RecentMovement{movement(3), movement(2), movement(1)}

	next := fold(initial, movement(2))
	assert.Equal(t, []int64{2, 3, 1}, ids(next))

	unbounded := Prepend(0, movementID)
	assert.Len(t, unbounded(initial, movement(9)), 4)
}

func TestViewSeedAndSnapshotIdentity(t *testing.T) {
	snapshot := []models.RecentMovement{movement(2), movement(1)}
	view := NewView("movements", []models.RecentMovement{}, ViewOptions[[]models.RecentMovement]{
		Loader: func(context.Context) ([]models.RecentMovement, error) { return snapshot, nil },
		Logger: quietLogger(),
	})
	defer view.Close()

	sub := view.Subscribe()
	seed := <-sub.C()
	assert.NotNil(t, seed)
	assert.Empty(t, seed)

	require.NoError(t, view.Load(context.Background()))
	got := <-sub.C()
	assert.Equal(t, snapshot, got)
	assert.Same(t, &snapshot[0], &got[0])
}

func TestViewLoadFailureKeepsValue(t *testing.T) {
	calls := 0
	view := NewView("stats", models.DashboardStats{}, ViewOptions[models.DashboardStats]{
		Loader: func(context.Context) (models.DashboardStats, error) {
			calls++
			if calls == 2 {
				return models.DashboardStats{}, errors.HTTPStatusError("GET", "/dashboard/stats", 503, "")
			}
			return models.DashboardStats{TotalMedicines: calls}, nil
		},
		Logger: quietLogger(),
	})
	defer view.Close()

	require.NoError(t, view.Load(context.Background()))
	err := view.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 503, errors.StatusCode(err))
	assert.Equal(t, 1, view.Current().TotalMedicines)

	// A later refresh recovers.
	require.NoError(t, view.Refresh(context.Background()))
	assert.Equal(t, 3, view.Current().TotalMedicines)
}

func TestStatsSnapshotThenPushReplaces(t *testing.T) {
	source := newFakeSource()
	loader := &fakeLoader{stats: models.DashboardStats{CriticalAlerts: 2, WarningAlerts: 1, TotalMedicines: 80}}
	d := NewDashboard(loader, source, DashboardOptions{Logger: quietLogger()})
	defer d.Close()
	d.Start()

	require.NoError(t, d.Stats.Load(context.Background()))
	source.stats.Publish(models.DashboardStats{CriticalAlerts: 3, WarningAlerts: 1})

	want := models.DashboardStats{CriticalAlerts: 3, WarningAlerts: 1}
	require.Eventually(t, func() bool { return d.Stats.Current() == want }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 0, d.Stats.Current().TotalMedicines)
}

func TestManualRefreshReplacesAlerts(t *testing.T) {
	source := newFakeSource()
	loader := &fakeLoader{systemAlerts: []models.Notification{
		{ID: 1, Title: "Expired", Message: "Batch B-1 expired", Type: models.NotificationCritical},
	}}
	d := NewDashboard(loader, source, DashboardOptions{Logger: quietLogger()})
	defer d.Close()
	d.Start()

	pushed := models.DashboardAlerts{
		Critical: []models.AlertItem{{MedicineID: 5}, {MedicineID: 6}},
		Warning:  []models.AlertItem{{MedicineID: 7}},
	}
	source.alerts.Publish(pushed)
	require.Eventually(t, func() bool { return d.Alerts.Current().Total() == 3 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, d.RefreshAlerts(context.Background()))
	alerts := d.Alerts.Current()
	require.Len(t, alerts.Critical, 1)
	assert.Equal(t, "Batch B-1 expired", alerts.Critical[0].Message)
	assert.Empty(t, alerts.Warning)
}

func TestMovementsFollowAndSnapshot(t *testing.T) {
	source := newFakeSource()
	loader := &fakeLoader{movements: []models.RecentMovement{movement(10), movement(9)}}
	d := NewDashboard(loader, source, DashboardOptions{RecentMovements: 3, Logger: quietLogger()})
	defer d.Close()
	d.Start()

	// Events before the snapshot become the list.
	source.movements.Publish(movement(1))
	source.movements.Publish(movement(2))
	require.Eventually(t, func() bool { return len(d.Movements.Current()) == 2 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []int64{2, 1}, ids(d.Movements.Current()))

	// The snapshot replaces them.
	require.NoError(t, d.Movements.Load(context.Background()))
	assert.Equal(t, []int64{10, 9}, ids(d.Movements.Current()))

	source.movements.Publish(movement(11))
	source.movements.Publish(movement(12))
	require.Eventually(t, func() bool { return d.Movements.Current()[0].ID == 12 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []int64{12, 11, 10}, ids(d.Movements.Current()))
	assert.Contains(t, loader.calls, "movements:3")
}

func TestMovementsSnapshotTruncatedToCapacity(t *testing.T) {
	var snapshot []models.RecentMovement
	for i := int64(1); i <= 8; i++ {
		snapshot = append(snapshot, movement(i))
	}
	loader := &fakeLoader{movements: snapshot}
	d := NewDashboard(loader, nil, DashboardOptions{RecentMovements: 5, Logger: quietLogger()})
	defer d.Close()

	require.NoError(t, d.Movements.Load(context.Background()))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(d.Movements.Current()))
	assert.Len(t, snapshot, 8, "the loader's slice is not modified")
}

func TestCloseReleasesSubscriptions(t *testing.T) {
	source := newFakeSource()
	d := NewDashboard(&fakeLoader{}, source, DashboardOptions{Logger: quietLogger()})
	d.Start()

	assert.Equal(t, 1, source.stats.Len())
	assert.Equal(t, 1, source.movements.Len())

	out := d.Stats.Subscribe()
	d.Close()

	assert.Equal(t, 0, source.stats.Len())
	assert.Equal(t, 0, source.alerts.Len())
	assert.Equal(t, 0, source.movements.Len())
	assert.Equal(t, 0, source.notifications.Len())

	// The output subscription is closed after the seed value.
	<-out.C()
	_, open := <-out.C()
	assert.False(t, open)

	// The source keeps serving other consumers.
	other := source.Stats()
	source.stats.Publish(models.DashboardStats{TotalMedicines: 1})
	assert.Equal(t, 1, (<-other.C()).TotalMedicines)
}

func TestDashboardLoadJoinsErrors(t *testing.T) {
	loader := &fakeLoader{
		stats:     models.DashboardStats{TotalInventoryValue: decimal.RequireFromString("10.50")},
		movements: []models.RecentMovement{movement(1)},
	}
	d := NewDashboard(loader, nil, DashboardOptions{Logger: quietLogger()})
	defer d.Close()

	require.NoError(t, d.Load(context.Background()))
	assert.Equal(t, "10.5", d.Stats.Current().TotalInventoryValue.String())
	assert.Len(t, d.Movements.Current(), 1)

	loader.err = errors.NetworkError("http://localhost:5000/api", io.ErrUnexpectedEOF)
	err := d.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNetwork))

	// Every view keeps its last value.
	assert.Equal(t, "10.5", d.Stats.Current().TotalInventoryValue.String())
	assert.Len(t, d.Movements.Current(), 1)
}

func notification(id int64, read bool) models.Notification {
	return models.Notification{ID: id, Title: fmt.Sprintf("N%d", id), IsRead: read, Type: models.NotificationInfo}
}

func TestNotificationMarkAsRead(t *testing.T) {
	loader := &fakeLoader{notifications: []models.Notification{notification(1, false), notification(2, false)}}
	list := NewNotificationList(loader, quietLogger())
	defer list.Close()
	require.NoError(t, list.Load(context.Background()))

	require.NoError(t, list.MarkAsRead(context.Background(), 1))
	assert.Equal(t, 1, list.UnreadCount())
	assert.Len(t, list.Visible(FilterUnread), 1)
	assert.Len(t, list.Visible(FilterAll), 2)

	// The loaded snapshot itself is not modified.
	assert.False(t, loader.notifications[0].IsRead)
}

func TestNotificationRollback(t *testing.T) {
	loader := &fakeLoader{notifications: []models.Notification{
		notification(1, false), notification(2, true), notification(3, false),
	}}
	list := NewNotificationList(loader, quietLogger())
	defer list.Close()
	require.NoError(t, list.Load(context.Background()))

	sub := list.Subscribe()
	<-sub.C()

	loader.markErr = errors.HTTPStatusError("PUT", "/notifications/read-all", 500, "")
	err := list.MarkAllAsRead(context.Background())
	require.Error(t, err)

	// The optimistic change was published, then undone.
	optimistic := <-sub.C()
	assert.Equal(t, 0, models.CountUnread(optimistic))
	rolledBack := <-sub.C()
	assert.Equal(t, []bool{false, true, false}, []bool{rolledBack[0].IsRead, rolledBack[1].IsRead, rolledBack[2].IsRead})

	require.Error(t, list.MarkAsRead(context.Background(), 3))
	assert.False(t, list.Current()[2].IsRead)
	assert.Equal(t, 2, list.UnreadCount())
}

func TestRollbackKeepsReloadedFlags(t *testing.T) {
	loader := &fakeLoader{notifications: []models.Notification{notification(1, false), notification(2, false)}}
	list := NewNotificationList(loader, quietLogger())
	defer list.Close()
	require.NoError(t, list.Load(context.Background()))

	// The server reports 1 as read by the time the mark call fails.
	loader.onMark = func() {
		loader.notifications = []models.Notification{notification(1, true), notification(2, false)}
		require.NoError(t, list.Load(context.Background()))
	}
	loader.markErr = errors.HTTPStatusError("PUT", "/notifications/1/read", 502, "")

	require.Error(t, list.MarkAsRead(context.Background(), 1))
	assert.True(t, list.Current()[0].IsRead)
	assert.Equal(t, 1, list.UnreadCount())

	// Without a reload in between the change is undone.
	loader.onMark = nil
	require.Error(t, list.MarkAsRead(context.Background(), 2))
	assert.False(t, list.Current()[1].IsRead)
}

func TestFilterNotifications(t *testing.T) {
	list := []models.Notification{notification(1, false), notification(2, true), notification(3, false)}

	assert.Equal(t, list, FilterNotifications(list, FilterAll))
	assert.Equal(t, list, FilterNotifications(list, ""))
	unread := FilterNotifications(list, FilterUnread)
	require.Len(t, unread, 2)
	assert.Equal(t, int64(1), unread[0].ID)
	assert.Equal(t, int64(3), unread[1].ID)
}

func TestNotificationDeleteWaitsForServer(t *testing.T) {
	loader := &fakeLoader{notifications: []models.Notification{notification(1, false), notification(2, false)}}
	list := NewNotificationList(loader, quietLogger())
	defer list.Close()
	require.NoError(t, list.Load(context.Background()))

	loader.markErr = errors.HTTPStatusError("DELETE", "/notifications/1", 404, "")
	require.Error(t, list.Delete(context.Background(), 1))
	assert.Len(t, list.Current(), 2)

	loader.markErr = nil
	require.NoError(t, list.Delete(context.Background(), 1))
	assert.Equal(t, int64(2), list.Current()[0].ID)
	assert.Len(t, list.Current(), 1)
}

func TestNotificationListFollow(t *testing.T) {
	source := newFakeSource()
	loader := &fakeLoader{notifications: []models.Notification{notification(1, true)}}
	list := NewNotificationList(loader, quietLogger())
	defer list.Close()
	list.Follow(source.Notifications())
	require.NoError(t, list.Load(context.Background()))

	source.notifications.Publish(notification(2, false))
	source.notifications.Publish(notification(2, false))

	require.Eventually(t, func() bool { return list.UnreadCount() == 1 }, waitTimeout, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, list.Current(), 2)
	assert.Equal(t, int64(2), list.Current()[0].ID)
}
