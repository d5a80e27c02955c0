// Package hub maintains the persistent connection to the dashboard hub and
// turns its push messages into typed events.
//
// A Channel moves through four states:
//
//	Disconnected -> Connecting -> Connected -> Reconnecting -> Connected
//
// A failed initial connect falls back to Disconnected and is retried after
// ReconnectDelay, indefinitely. A dropped connection is retried on the
// ReconnectPolicy schedule; once that is exhausted, or the server closes the
// connection without allowing a reconnect, the channel returns to
// Disconnected and starts over with initial connects. Close stops everything.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/internal/metrics"
	"github.com/grovetools/pharmastock/logging"
	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	stateBuffer = 16
	eventBuffer = 64

	// maxPendingRecord bounds an unterminated record.
	maxPendingRecord = 4 * 1024 * 1024

	attemptInitial   = "initial"
	attemptReconnect = "reconnect"
)

// Channel is the live update channel to the dashboard hub.
type Channel struct {
	opts   Options
	dialer Dialer
	logger *logrus.Entry

	mu      sync.Mutex
	state   ConnectionState
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	states        *broadcast.Topic[ConnectionState]
	stats         *broadcast.Topic[models.DashboardStats]
	alerts        *broadcast.Topic[models.DashboardAlerts]
	movements     *broadcast.Topic[models.RecentMovement]
	notifications *broadcast.Topic[models.Notification]
	notices       *broadcast.Topic[models.Notice]
}

// New creates a disconnected Channel. A nil logger uses the "hub" component logger.
func New(opts Options, logger *logrus.Entry) *Channel {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.NewLogger("hub")
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewDialer(DialerOptions{
			HubURL:          opts.HubURL,
			Transport:       opts.Transport,
			SkipNegotiation: opts.SkipNegotiation,
			AccessToken:     opts.AccessToken,
			HTTPClient:      opts.HTTPClient,
			Logger:          logger,
		})
	}

	c := &Channel{
		opts:          opts,
		dialer:        dialer,
		logger:        logger,
		state:         Disconnected,
		states:        newTopic[ConnectionState]("states", true, stateBuffer),
		stats:         newTopic[models.DashboardStats](TargetStatsUpdated, true, stateBuffer),
		alerts:        newTopic[models.DashboardAlerts](TargetAlertsUpdated, true, stateBuffer),
		movements:     newTopic[models.RecentMovement](TargetMovementAdded, false, eventBuffer),
		notifications: newTopic[models.Notification](TargetNotificationAdded, false, eventBuffer),
		notices:       newTopic[models.Notice](TargetNotification, false, eventBuffer),
	}
	c.states.Publish(Disconnected)
	metrics.SetHubState(Disconnected.String())
	return c
}

func newTopic[T any](name string, retain bool, buffer int) *broadcast.Topic[T] {
	return broadcast.NewTopic[T](broadcast.Options{
		Retain: retain,
		Buffer: buffer,
		OnDrop: func() { metrics.IncDroppedDelivery(name) },
	})
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// States subscribes to connection state changes. The current state is
// delivered first.
func (c *Channel) States() *broadcast.Subscription[ConnectionState] {
	return c.states.Subscribe()
}

// Stats subscribes to StatsUpdated events. The most recent one is replayed.
func (c *Channel) Stats() *broadcast.Subscription[models.DashboardStats] {
	return c.stats.Subscribe()
}

// Alerts subscribes to AlertsUpdated events. The most recent one is replayed.
func (c *Channel) Alerts() *broadcast.Subscription[models.DashboardAlerts] {
	return c.alerts.Subscribe()
}

// Movements subscribes to MovementAdded events.
func (c *Channel) Movements() *broadcast.Subscription[models.RecentMovement] {
	return c.movements.Subscribe()
}

// Notifications subscribes to NotificationAdded events.
func (c *Channel) Notifications() *broadcast.Subscription[models.Notification] {
	return c.notifications.Subscribe()
}

// Notices subscribes to generic Notification events.
func (c *Channel) Notices() *broadcast.Subscription[models.Notice] {
	return c.notices.Subscribe()
}

// Connect starts the connection loop and waits for the outcome of the first
// attempt, or for ctx. A failed first attempt is returned but the channel
// keeps retrying in the background. Calling Connect on a channel that is
// already started is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.running = true
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	first := make(chan error, 1)
	go c.run(runCtx, first, done)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the connection loop and any pending retry. The channel stays
// Disconnected until Connect is called again.
func (c *Channel) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	<-done
	c.setState(Disconnected)
	c.logger.Info("Hub connection closed")
	return nil
}

func (c *Channel) setState(s ConnectionState) {
	c.mu.Lock()
	from := c.state
	if from == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	metrics.SetHubState(s.String())
	c.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   s.String(),
	}).Info("Hub state changed")
	c.states.Publish(s)
}

// connection is an open transport past the handshake.
type connection struct {
	transport Transport
	// pending holds bytes received after the handshake response.
	pending []byte
}

// drop describes why a served connection ended.
type drop struct {
	err       error
	reconnect bool
}

func (c *Channel) run(ctx context.Context, first chan<- error, done chan struct{}) {
	defer close(done)

	report := func(err error) {
		if first != nil {
			first <- err
			first = nil
		}
	}

	for {
		c.setState(Connecting)
		conn, err := c.open(ctx)
		recordAttempt(attemptInitial, err)
		if err != nil {
			report(err)
			if ctx.Err() != nil {
				return
			}
			c.setState(Disconnected)
			c.logger.WithError(err).Warnf("Hub connection failed, retrying in %s", c.opts.ReconnectDelay)
			if !sleep(ctx, c.opts.ReconnectDelay) {
				return
			}
			continue
		}

		c.setState(Connected)
		c.logger.WithField("transport", conn.transport.Name()).Info("Hub connected")
		report(nil)

		if !c.stayConnected(ctx, conn) {
			return
		}

		c.setState(Disconnected)
		if !sleep(ctx, c.opts.ReconnectDelay) {
			return
		}
	}
}

// stayConnected serves conn and reconnects after drops. It returns false when
// ctx is done and true when the channel has to start over.
func (c *Channel) stayConnected(ctx context.Context, conn *connection) bool {
	for {
		d := c.serve(ctx, conn)
		if ctx.Err() != nil {
			return false
		}
		if !d.reconnect {
			c.logger.WithError(d.err).Warn("Hub closed the connection")
			return true
		}

		c.setState(Reconnecting)
		c.logger.WithError(d.err).Warn("Hub connection lost, reconnecting")

		conn = nil
		for attempt, delay := range c.opts.ReconnectPolicy {
			if !sleep(ctx, delay) {
				return false
			}
			next, err := c.open(ctx)
			recordAttempt(attemptReconnect, err)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				c.logger.WithError(err).WithField("attempt", attempt+1).Debug("Reconnect attempt failed")
				continue
			}
			conn = next
			break
		}
		if conn == nil {
			c.logger.WithField("attempts", len(c.opts.ReconnectPolicy)).Warn("Reconnect attempts exhausted")
			return true
		}

		c.setState(Connected)
		c.logger.WithField("transport", conn.transport.Name()).Info("Hub reconnected")
	}
}

func recordAttempt(kind string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.IncHubAttempt(kind, result)
}

// open dials and performs the handshake.
func (c *Channel) open(ctx context.Context) (*connection, error) {
	t, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	hsCtx, cancel := context.WithTimeout(ctx, c.opts.ServerTimeout)
	defer cancel()

	if err := t.Send(hsCtx, handshakeRecord); err != nil {
		t.Close()
		return nil, errors.Wrap(err, errors.ErrCodeChannelHandshake, "failed to send handshake")
	}

	stop := context.AfterFunc(hsCtx, func() { t.Close() })
	var buf []byte
	for {
		data, err := t.Receive()
		if err != nil {
			stop()
			t.Close()
			if hsCtx.Err() != nil {
				return nil, errors.Wrap(hsCtx.Err(), errors.ErrCodeChannelHandshake, "no handshake response")
			}
			return nil, errors.Wrap(err, errors.ErrCodeChannelHandshake, "connection closed during handshake")
		}
		buf = append(buf, data...)

		i := bytes.IndexByte(buf, recordSeparator)
		if i < 0 {
			continue
		}
		if !stop() {
			t.Close()
			return nil, errors.Wrap(hsCtx.Err(), errors.ErrCodeChannelHandshake, "no handshake response")
		}
		if err := parseHandshake(buf[:i]); err != nil {
			t.Close()
			return nil, err
		}
		return &connection{transport: t, pending: buf[i+1:]}, nil
	}
}

// serve reads records until the connection ends.
func (c *Channel) serve(ctx context.Context, conn *connection) drop {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := conn.transport
	defer t.Close()

	var timedOut atomic.Bool
	watchdog := time.AfterFunc(c.opts.ServerTimeout, func() {
		timedOut.Store(true)
		t.Close()
	})
	defer watchdog.Stop()

	stop := context.AfterFunc(serveCtx, func() { t.Close() })
	defer stop()

	go c.keepAlive(serveCtx, t)

	pending := conn.pending
	conn.pending = nil
	for {
		records, rest := splitRecords(pending)
		for _, record := range records {
			if d, closed := c.handleRecord(record); closed {
				return d
			}
		}
		pending = rest
		if len(pending) > maxPendingRecord {
			return drop{err: errors.ChannelProtocolError("hub record exceeds size limit", nil), reconnect: true}
		}

		data, err := t.Receive()
		if err != nil {
			if timedOut.Load() {
				err = errors.NetworkError(c.opts.HubURL,
					fmt.Errorf("server timeout elapsed without receiving a message (%s)", c.opts.ServerTimeout))
			}
			return drop{err: err, reconnect: true}
		}
		watchdog.Reset(c.opts.ServerTimeout)
		pending = append(pending, data...)
	}
}

func (c *Channel) keepAlive(ctx context.Context, t Transport) {
	ticker := time.NewTicker(c.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Send(ctx, pingRecord); err != nil {
				if ctx.Err() == nil {
					c.logger.WithError(err).Debug("Keep-alive ping failed")
					t.Close()
				}
				return
			}
		}
	}
}

// handleRecord processes one record. It reports true when the server closed
// the connection.
func (c *Channel) handleRecord(record []byte) (drop, bool) {
	msg, err := parseMessage(record)
	if err != nil {
		c.protocolError("record", err)
		return drop{}, false
	}

	switch msg.Type {
	case messageInvocation:
		c.dispatch(msg)
	case messagePing:
	case messageClose:
		reason := "server closed the connection"
		if msg.Error != "" {
			reason += ": " + msg.Error
		}
		return drop{err: errors.New(errors.ErrCodeChannelClosed, reason), reconnect: msg.AllowReconnect}, true
	default:
		c.logger.WithField("type", describeType(msg.Type)).Debug("Ignoring hub message")
	}
	return drop{}, false
}

func (c *Channel) dispatch(msg message) {
	switch msg.Target {
	case TargetStatsUpdated:
		deliver(c, msg, c.stats, nil)
	case TargetAlertsUpdated:
		deliver(c, msg, c.alerts, models.DashboardAlerts.OrEmpty)
	case TargetMovementAdded:
		deliver(c, msg, c.movements, nil)
	case TargetNotificationAdded:
		deliver(c, msg, c.notifications, nil)
	case TargetNotification:
		deliver(c, msg, c.notices, nil)
	default:
		c.logger.WithField("target", msg.Target).Debug("Ignoring unknown hub target")
	}
}

// deliver validates and decodes the first argument of msg and publishes it.
func deliver[T any](c *Channel, msg message, topic *broadcast.Topic[T], normalize func(T) T) {
	if len(msg.Arguments) == 0 {
		c.protocolError(msg.Target, errors.ChannelProtocolError(msg.Target+" without arguments", nil))
		return
	}
	raw := msg.Arguments[0]

	if c.opts.ValidateMessages {
		vs, err := validators()
		if err != nil {
			c.logger.WithError(err).Error("Payload validation unavailable")
		} else if err := vs[msg.Target].ValidateJSON(raw); err != nil {
			c.protocolError(msg.Target, errors.ChannelProtocolError("invalid "+msg.Target+" payload", err))
			return
		}
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.protocolError(msg.Target, errors.ChannelProtocolError("undecodable "+msg.Target+" payload", err))
		return
	}
	if normalize != nil {
		v = normalize(v)
	}

	metrics.IncHubEvent(msg.Target)
	topic.Publish(v)
}

func (c *Channel) protocolError(reason string, err error) {
	metrics.IncHubProtocolError(reason)
	c.logger.WithError(err).WithField("reason", reason).Warn("Dropping malformed hub record")
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
