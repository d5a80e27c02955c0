package fakehub_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/internal/fakehub"
	"github.com/grovetools/pharmastock/pkg/api"
	"github.com/grovetools/pharmastock/pkg/hub"
	"github.com/grovetools/pharmastock/pkg/live"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "dev-token"

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type backend struct {
	server *fakehub.Server
	store  *fakehub.Store
	url    string
}

func startBackend(t *testing.T, opts fakehub.Options) *backend {
	t.Helper()
	store := fakehub.NewStore()
	store.Seed(time.Now())
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 50 * time.Millisecond
	}
	srv := fakehub.NewServer(store, opts, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.DropConnections()
		ts.Close()
	})
	return &backend{server: srv, store: store, url: ts.URL}
}

func newClient(t *testing.T, b *backend, accessToken string) *api.Client {
	t.Helper()
	client, err := api.New(api.Options{BaseURL: b.url + "/api", AccessToken: accessToken, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func newChannel(t *testing.T, b *backend, client *api.Client, transport string) *hub.Channel {
	t.Helper()
	c := hub.New(hub.Options{
		HubURL:           b.url + fakehub.HubPath,
		Transport:        transport,
		AccessToken:      client.Token,
		HTTPClient:       &http.Client{Jar: client.Jar(), Timeout: 5 * time.Second},
		ReconnectDelay:   30 * time.Millisecond,
		ReconnectPolicy:  []time.Duration{0, 20 * time.Millisecond},
		ServerTimeout:    2 * time.Second,
		ValidateMessages: true,
	}, quietLogger())
	t.Cleanup(func() { c.Close() })
	return c
}

func waitState(t *testing.T, c *hub.Channel, want hub.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 3*time.Second, 5*time.Millisecond,
		"state stayed %s, want %s", c.State(), want)
}

func TestSnapshotEndpoints(t *testing.T) {
	b := startBackend(t, fakehub.Options{AccessToken: token})
	client := newClient(t, b, token)
	ctx := context.Background()

	stats, err := client.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 48, stats.TotalMedicines)
	assert.True(t, decimal.RequireFromString("182340.50").Equal(stats.TotalInventoryValue))

	alerts, err := client.GetAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts.Critical, 1)
	assert.Len(t, alerts.Warning, 2)

	movements, err := client.GetRecentMovements(ctx, 3)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, int64(105), movements[0].ID)

	low, err := client.GetLowStock(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, low, 2)

	valuation, err := client.GetValuation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 131, valuation.ActiveBatches)

	system, err := client.GetSystemAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, system, 2)
	converted := models.AlertsFromNotifications(system)
	assert.Len(t, converted.Critical, 1)
	assert.Len(t, converted.Warning, 1)

	require.NoError(t, client.Health(ctx))
}

func TestNotificationEndpoints(t *testing.T) {
	b := startBackend(t, fakehub.Options{})
	client := newClient(t, b, "")
	ctx := context.Background()

	notifications, err := client.GetMyNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, 1, models.CountUnread(notifications))

	require.NoError(t, client.MarkAsRead(ctx, 21))
	require.NoError(t, client.DeleteNotification(ctx, 20))

	err = client.DeleteNotification(ctx, 20)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errors.StatusCode(err))
	assert.Contains(t, err.Error(), "Notification not found.")

	notifications, err = client.GetMyNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.True(t, notifications[0].IsRead)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	b := startBackend(t, fakehub.Options{AccessToken: token})
	client := newClient(t, b, "")

	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))
}

func TestExpiredSessionRefreshes(t *testing.T) {
	b := startBackend(t, fakehub.Options{AccessToken: token})
	client := newClient(t, b, token)

	b.server.FailNext(http.MethodGet, "/dashboard/stats", http.StatusUnauthorized, `{"message":"Session expired"}`, 1)

	stats, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 48, stats.TotalMedicines)

	u, err := url.Parse(b.url + "/api")
	require.NoError(t, err)
	assert.NotEmpty(t, client.Jar().Cookies(u), "refresh should set a session cookie")
}

func TestInjectedServerError(t *testing.T) {
	b := startBackend(t, fakehub.Options{})
	client := newClient(t, b, "")

	b.server.FailNext(http.MethodGet, "/dashboard/alerts", http.StatusServiceUnavailable, "<html>down</html>", 1)

	_, err := client.GetAlerts(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, errors.StatusCode(err))
	assert.Contains(t, errors.UserMessage(err), "unavailable")

	_, err = client.GetAlerts(context.Background())
	require.NoError(t, err)
}

func TestHubDeliversOverEachTransport(t *testing.T) {
	for _, transport := range []string{hub.TransportWebSockets, hub.TransportSSE, hub.TransportAuto} {
		t.Run(transport, func(t *testing.T) {
			b := startBackend(t, fakehub.Options{AccessToken: token})
			client := newClient(t, b, token)
			c := newChannel(t, b, client, transport)

			movements := c.Movements()
			stats := c.Stats()
			notices := c.Notices()

			require.NoError(t, c.Connect(context.Background()))
			waitState(t, c, hub.Connected)
			require.Eventually(t, func() bool { return b.server.Connections() == 1 }, time.Second, 5*time.Millisecond)

			added := b.store.AddMovement(models.RecentMovement{
				MedicineName: "Paracetamol 500mg",
				MovementType: "OUT_Dispense",
				Quantity:     2,
			}, decimal.RequireFromString("0.24"))

			select {
			case m := <-movements.C():
				assert.Equal(t, added.ID, m.ID)
				assert.Equal(t, "Dispense", m.DisplayType())
			case <-time.After(3 * time.Second):
				t.Fatal("movement not delivered")
			}

			select {
			case s := <-stats.C():
				assert.True(t, decimal.RequireFromString("182340.26").Equal(s.TotalInventoryValue), "got %s", s.TotalInventoryValue)
			case <-time.After(3 * time.Second):
				t.Fatal("stats not delivered")
			}

			b.store.Notify(models.Notice{Message: "Stock count completed", Type: "info"})
			select {
			case n := <-notices.C():
				assert.Equal(t, "Stock count completed", n.Message)
			case <-time.After(3 * time.Second):
				t.Fatal("notice not delivered")
			}
		})
	}
}

func TestHubDropsMalformedPayload(t *testing.T) {
	b := startBackend(t, fakehub.Options{})
	client := newClient(t, b, "")
	c := newChannel(t, b, client, hub.TransportWebSockets)
	stats := c.Stats()

	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, hub.Connected)

	b.store.Publish(fakehub.Event{Target: hub.TargetStatsUpdated, Payload: map[string]string{"totalMedicines": "many"}})
	b.store.SetStats(models.DashboardStats{TotalMedicines: 7, TotalInventoryValue: decimal.NewFromInt(10)})

	select {
	case s := <-stats.C():
		assert.Equal(t, 7, s.TotalMedicines)
	case <-time.After(3 * time.Second):
		t.Fatal("valid stats not delivered after malformed one")
	}
	assert.Equal(t, hub.Connected, c.State())
}

func TestHubReconnectsAfterDrop(t *testing.T) {
	b := startBackend(t, fakehub.Options{})
	client := newClient(t, b, "")
	c := newChannel(t, b, client, hub.TransportWebSockets)

	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, hub.Connected)
	// Subscribed late so the replayed state is Connected.
	states := c.States()

	b.server.DropConnections()

	seen := map[hub.ConnectionState]bool{}
	deadline := time.After(3 * time.Second)
	for !(seen[hub.Reconnecting] && c.State() == hub.Connected) {
		select {
		case s := <-states.C():
			seen[s] = true
		case <-deadline:
			t.Fatalf("did not reconnect, saw %v", seen)
		}
	}
	require.Eventually(t, func() bool { return b.server.Connections() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubServerCloseWithoutReconnect(t *testing.T) {
	b := startBackend(t, fakehub.Options{})
	client := newClient(t, b, "")
	c := newChannel(t, b, client, hub.TransportWebSockets)

	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, hub.Connected)
	// Subscribed late so the replayed state is Connected.
	states := c.States()

	b.server.CloseConnections("Server is shutting down", false)

	seen := map[hub.ConnectionState]bool{}
	deadline := time.After(3 * time.Second)
	for !(seen[hub.Disconnected] && c.State() == hub.Connected) {
		select {
		case s := <-states.C():
			seen[s] = true
		case <-deadline:
			t.Fatalf("did not recover, saw %v", seen)
		}
	}
	assert.False(t, seen[hub.Reconnecting], "a close without reconnect must not use the reconnect policy")
}

func TestHubHandshakeErrorRetries(t *testing.T) {
	b := startBackend(t, fakehub.Options{})
	b.server.SetHandshakeError("Hub is starting")
	client := newClient(t, b, "")
	c := newChannel(t, b, client, hub.TransportWebSockets)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeChannelHandshake), "got %v", err)

	b.server.SetHandshakeError("")
	waitState(t, c, hub.Connected)
}

func TestNegotiateOffersOnlyConfiguredTransports(t *testing.T) {
	b := startBackend(t, fakehub.Options{Transports: []string{"ServerSentEvents"}})
	client := newClient(t, b, "")

	c := newChannel(t, b, client, hub.TransportWebSockets)
	require.Error(t, c.Connect(context.Background()))

	auto := newChannel(t, b, client, hub.TransportAuto)
	require.NoError(t, auto.Connect(context.Background()))
	waitState(t, auto, hub.Connected)
}

func TestLiveDashboard(t *testing.T) {
	b := startBackend(t, fakehub.Options{AccessToken: token})
	client := newClient(t, b, token)
	c := newChannel(t, b, client, hub.TransportAuto)

	dash := live.NewDashboard(client, c, live.DashboardOptions{RecentMovements: 3, Logger: quietLogger()})
	t.Cleanup(dash.Close)
	dash.Start()

	require.NoError(t, dash.Load(context.Background()))
	assert.Equal(t, 48, dash.Stats.Current().TotalMedicines)
	assert.Len(t, dash.Movements.Current(), 3)
	assert.Equal(t, 1, dash.Notifications.UnreadCount())
	assert.Equal(t, 2, dash.Alerts.Current().Total())

	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, hub.Connected)
	require.Eventually(t, func() bool { return b.server.Connections() == 1 }, time.Second, 5*time.Millisecond)

	added := b.store.AddMovement(models.RecentMovement{
		MedicineName: "Amoxicillin 500mg",
		MovementType: "IN_Purchase",
		Quantity:     100,
	}, decimal.RequireFromString("45"))

	require.Eventually(t, func() bool {
		current := dash.Movements.Current()
		return len(current) == 3 && current[0].ID == added.ID
	}, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return decimal.RequireFromString("182385.50").Equal(dash.Stats.Current().TotalInventoryValue)
	}, 3*time.Second, 5*time.Millisecond)

	b.store.AddNotification(models.Notification{Title: "Low stock", Message: "Omeprazole is running low", Type: models.NotificationStockAlert})
	require.Eventually(t, func() bool { return dash.Notifications.UnreadCount() == 2 }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, dash.Notifications.MarkAllAsRead(context.Background()))
	assert.Equal(t, 0, dash.Notifications.UnreadCount())

	remote, err := client.GetMyNotifications(context.Background())
	require.NoError(t, err)
	assert.Zero(t, models.CountUnread(remote))
}

func TestSimulatorPushesEvents(t *testing.T) {
	store := fakehub.NewStore()
	store.Seed(time.Now())
	events := store.Subscribe()
	defer store.Unsubscribe(events)

	sim := fakehub.NewSimulator(store, quietLogger())
	sim.Register(fakehub.NewMovementGenerator(10*time.Millisecond, 1))
	sim.Register(fakehub.NewExpiryGenerator(10*time.Millisecond, 2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Start(ctx)
		close(done)
	}()

	targets := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for !(targets[hub.TargetMovementAdded] && targets[hub.TargetAlertsUpdated]) {
		select {
		case e := <-events:
			targets[e.Target] = true
		case <-deadline:
			t.Fatalf("saw only %v", targets)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}

	alerts := store.Alerts()
	assert.LessOrEqual(t, len(alerts.Critical), 5)
	assert.LessOrEqual(t, len(alerts.Warning), 8)
	assert.Equal(t, len(alerts.Critical), store.Stats().CriticalAlerts)
}
