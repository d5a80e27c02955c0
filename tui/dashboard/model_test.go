package dashboard

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/grovetools/pharmastock/pkg/hub"
	"github.com/grovetools/pharmastock/pkg/live"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	mu      sync.Mutex
	read    []int64
	markErr error
}

func (f *fakeLoader) GetStats(context.Context) (models.DashboardStats, error) {
	return models.DashboardStats{TotalMedicines: 12, TotalInventoryValue: decimal.RequireFromString("99.5")}, nil
}

func (f *fakeLoader) GetSystemAlerts(context.Context) ([]models.Notification, error) {
	return []models.Notification{{ID: 1, Type: models.NotificationCritical, Message: "Batch B-1 expired"}}, nil
}

func (f *fakeLoader) GetRecentMovements(context.Context, int) ([]models.RecentMovement, error) {
	return []models.RecentMovement{{ID: 5, MedicineName: "Ibuprofen 400mg", MovementType: "OUT_Dispense", Quantity: 3}}, nil
}

func (f *fakeLoader) GetMyNotifications(context.Context) ([]models.Notification, error) {
	return []models.Notification{
		{ID: 2, Title: "Low stock", IsRead: false},
		{ID: 3, Title: "Delivery", IsRead: true},
	}, nil
}

func (f *fakeLoader) MarkAsRead(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return f.markErr
}

func (f *fakeLoader) MarkAllAsRead(context.Context) error             { return nil }
func (f *fakeLoader) DeleteNotification(context.Context, int64) error { return nil }

type fakeConnection struct {
	topic *broadcast.Topic[hub.ConnectionState]
}

func (c fakeConnection) State() hub.ConnectionState {
	s, _ := c.topic.Last()
	return s
}

func (c fakeConnection) States() *broadcast.Subscription[hub.ConnectionState] {
	return c.topic.Subscribe()
}

func newModel(t *testing.T, loader *fakeLoader) (Model, *live.Dashboard) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dash := live.NewDashboard(loader, nil, live.DashboardOptions{Logger: logrus.NewEntry(logger)})
	require.NoError(t, dash.Load(context.Background()))
	t.Cleanup(dash.Close)

	m := New(dash, Options{})
	t.Cleanup(m.Close)
	return m, dash
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch keys {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestRendersSnapshot(t *testing.T) {
	m, _ := newModel(t, &fakeLoader{})

	out := m.View()
	assert.Contains(t, out, "Pharmacy dashboard")
	assert.Contains(t, out, "99.50")
	assert.Contains(t, out, "Batch B-1 expired")
	assert.Contains(t, out, "Ibuprofen 400mg")
	assert.Contains(t, out, "1 unread")
	assert.NotContains(t, out, "Live", "no connection indicator without a channel")
}

func TestFilterAndSelection(t *testing.T) {
	m, _ := newModel(t, &fakeLoader{})
	assert.Len(t, m.visible(), 2)

	m, _ = press(t, m, "down")
	assert.Equal(t, 1, m.selected)

	m, _ = press(t, m, "tab")
	assert.Equal(t, live.FilterUnread, m.filter)
	assert.Len(t, m.visible(), 1)
	assert.Equal(t, 0, m.selected, "selection is clamped to the filtered list")

	m, _ = press(t, m, "tab")
	assert.Equal(t, live.FilterAll, m.filter)
}

func TestInitialFilter(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	dash := live.NewDashboard(&fakeLoader{}, nil, live.DashboardOptions{Logger: logrus.NewEntry(logger)})
	require.NoError(t, dash.Load(context.Background()))
	t.Cleanup(dash.Close)

	m := New(dash, Options{Filter: live.FilterUnread})
	t.Cleanup(m.Close)
	assert.Equal(t, live.FilterUnread, m.Filter())
	assert.Len(t, m.visible(), 1)

	m = New(dash, Options{Filter: "bogus"})
	t.Cleanup(m.Close)
	assert.Equal(t, live.FilterAll, m.Filter())
}

func TestMarkReadAction(t *testing.T) {
	loader := &fakeLoader{}
	m, dash := newModel(t, loader)

	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.busy)
	assert.NoError(t, m.Err())
	assert.Contains(t, m.status, "Low stock")
	assert.Equal(t, []int64{2}, loader.read)
	assert.Zero(t, dash.Notifications.UnreadCount())
}

func TestFailedActionShowsError(t *testing.T) {
	loader := &fakeLoader{markErr: errors.HTTPStatusError("PUT", "/notifications/2/read", 500, "")}
	m, dash := newModel(t, loader)

	m, cmd := press(t, m, "enter")
	next, _ := m.Update(cmd())
	m = next.(Model)

	require.Error(t, m.Err())
	assert.Contains(t, m.View(), "A server error occurred")
	assert.Equal(t, 1, dash.Notifications.UnreadCount(), "optimistic read is rolled back")
}

func TestLiveUpdatesAndConnection(t *testing.T) {
	loader := &fakeLoader{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	dash := live.NewDashboard(loader, nil, live.DashboardOptions{Logger: logrus.NewEntry(logger)})
	t.Cleanup(dash.Close)

	states := broadcast.NewTopic[hub.ConnectionState](broadcast.Options{Retain: true})
	states.Publish(hub.Connecting)
	m := New(dash, Options{Connection: fakeConnection{topic: states}})
	t.Cleanup(m.Close)
	assert.Contains(t, m.View(), "Connecting")

	states.Publish(hub.Connected)
	// The first value on the subscription is the replayed Connecting.
	for i := 0; i < 2; i++ {
		next, _ := m.Update(m.listenState()())
		m = next.(Model)
	}
	assert.Contains(t, m.View(), "Live")

	dash.Stats.Set(models.DashboardStats{TotalMedicines: 77})
	// Skip the replayed seed value.
	for i := 0; i < 2; i++ {
		next, _ := m.Update(m.listenStats()())
		m = next.(Model)
	}
	assert.Equal(t, 77, m.stats.TotalMedicines)
	assert.Contains(t, m.View(), fmt.Sprint(77))
}

func TestQuit(t *testing.T) {
	m, _ := newModel(t, &fakeLoader{})
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
