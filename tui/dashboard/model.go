// Package dashboard is the interactive live dashboard screen.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/pkg/broadcast"
	"github.com/grovetools/pharmastock/pkg/hub"
	"github.com/grovetools/pharmastock/pkg/live"
	"github.com/grovetools/pharmastock/pkg/models"
)

// actionTimeout bounds every REST call started from a key press.
const actionTimeout = 15 * time.Second

// Connection reports the live channel state.
type Connection interface {
	State() hub.ConnectionState
	States() *broadcast.Subscription[hub.ConnectionState]
}

type (
	stateMsg        hub.ConnectionState
	statsMsg        models.DashboardStats
	alertsMsg       models.DashboardAlerts
	movementsMsg    []models.RecentMovement
	notificationMsg []models.Notification
	noticeMsg       models.Notice

	// actionMsg reports the outcome of a REST action.
	actionMsg struct {
		status string
		err    error
	}
)

// Model is the dashboard screen.
type Model struct {
	dash    *live.Dashboard
	conn    Connection
	notices *broadcast.Subscription[models.Notice]

	stateSub        *broadcast.Subscription[hub.ConnectionState]
	statsSub        *broadcast.Subscription[models.DashboardStats]
	alertsSub       *broadcast.Subscription[models.DashboardAlerts]
	movementsSub    *broadcast.Subscription[[]models.RecentMovement]
	notificationSub *broadcast.Subscription[[]models.Notification]

	state         hub.ConnectionState
	stats         models.DashboardStats
	alerts        models.DashboardAlerts
	movements     []models.RecentMovement
	notifications []models.Notification
	lastNotice    *models.Notice

	filter   live.Filter
	selected int
	status   string
	err      error
	busy     bool

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	width   int
	height  int
}

// Options configures the dashboard screen.
type Options struct {
	// Connection may be nil for a snapshot-only dashboard.
	Connection Connection
	// Notices, when set, shows the latest generic hub notice in the footer.
	Notices *broadcast.Subscription[models.Notice]
	// Filter is the initial notification filter, FilterAll when empty.
	Filter live.Filter
}

// New creates the dashboard screen over dash.
func New(dash *live.Dashboard, opts Options) Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	filter := live.FilterAll
	if opts.Filter == live.FilterUnread {
		filter = live.FilterUnread
	}

	m := Model{
		dash:          dash,
		conn:          opts.Connection,
		notices:       opts.Notices,
		stats:         dash.Stats.Current(),
		alerts:        dash.Alerts.Current(),
		movements:     dash.Movements.Current(),
		notifications: dash.Notifications.Current(),
		filter:        filter,
		keys:          DefaultKeyMap(),
		help:          help.New(),
		spinner:       s,
	}
	m.statsSub = dash.Stats.Subscribe()
	m.alertsSub = dash.Alerts.Subscribe()
	m.movementsSub = dash.Movements.Subscribe()
	m.notificationSub = dash.Notifications.Subscribe()
	if m.conn != nil {
		m.state = m.conn.State()
		m.stateSub = m.conn.States()
	}
	return m
}

// listen waits for the next value on sub.
func listen[T any](sub *broadcast.Subscription[T], wrap func(T) tea.Msg) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-sub.C()
		if !ok {
			return nil
		}
		return wrap(v)
	}
}

func (m Model) listenState() tea.Cmd {
	return listen(m.stateSub, func(s hub.ConnectionState) tea.Msg { return stateMsg(s) })
}

func (m Model) listenStats() tea.Cmd {
	return listen(m.statsSub, func(s models.DashboardStats) tea.Msg { return statsMsg(s) })
}

func (m Model) listenAlerts() tea.Cmd {
	return listen(m.alertsSub, func(a models.DashboardAlerts) tea.Msg { return alertsMsg(a) })
}

func (m Model) listenMovements() tea.Cmd {
	return listen(m.movementsSub, func(v []models.RecentMovement) tea.Msg { return movementsMsg(v) })
}

func (m Model) listenNotifications() tea.Cmd {
	return listen(m.notificationSub, func(v []models.Notification) tea.Msg { return notificationMsg(v) })
}

func (m Model) listenNotices() tea.Cmd {
	return listen(m.notices, func(n models.Notice) tea.Msg { return noticeMsg(n) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.listenState(),
		m.listenStats(),
		m.listenAlerts(),
		m.listenMovements(),
		m.listenNotifications(),
		m.listenNotices(),
	)
}

// Close releases the screen's subscriptions. The dashboard itself is owned
// by the caller.
func (m Model) Close() {
	for _, unsubscribe := range []func(){
		m.statsSub.Unsubscribe,
		m.alertsSub.Unsubscribe,
		m.movementsSub.Unsubscribe,
		m.notificationSub.Unsubscribe,
	} {
		unsubscribe()
	}
	if m.stateSub != nil {
		m.stateSub.Unsubscribe()
	}
}

// action runs fn with a timeout and reports status on success.
func action(status string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{status: status, err: fn(ctx)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = hub.ConnectionState(msg)
		return m, m.listenState()
	case statsMsg:
		m.stats = models.DashboardStats(msg)
		return m, m.listenStats()
	case alertsMsg:
		m.alerts = models.DashboardAlerts(msg)
		return m, m.listenAlerts()
	case movementsMsg:
		m.movements = msg
		return m, m.listenMovements()
	case notificationMsg:
		m.notifications = msg
		m.clampSelection()
		return m, m.listenNotifications()
	case noticeMsg:
		notice := models.Notice(msg)
		m.lastNotice = &notice
		return m, m.listenNotices()

	case actionMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
		} else {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.visible())-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Filter):
		if m.filter != live.FilterUnread {
			m.filter = live.FilterUnread
		} else {
			m.filter = live.FilterAll
		}
		m.clampSelection()
	case key.Matches(msg, m.keys.Refresh):
		return m.start("Alerts refreshed", m.dash.RefreshAlerts)
	case key.Matches(msg, m.keys.Reload):
		return m.start("Dashboard reloaded", m.dash.Load)
	case key.Matches(msg, m.keys.MarkAllRead):
		return m.start("All notifications marked as read", m.dash.Notifications.MarkAllAsRead)
	case key.Matches(msg, m.keys.MarkRead):
		if n, ok := m.selectedNotification(); ok && !n.IsRead {
			return m.start(fmt.Sprintf("Marked %q as read", n.Title), func(ctx context.Context) error {
				return m.dash.Notifications.MarkAsRead(ctx, n.ID)
			})
		}
	case key.Matches(msg, m.keys.Delete):
		if n, ok := m.selectedNotification(); ok {
			return m.start(fmt.Sprintf("Deleted %q", n.Title), func(ctx context.Context) error {
				return m.dash.Notifications.Delete(ctx, n.ID)
			})
		}
	}
	return m, nil
}

func (m Model) start(status string, fn func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.err = nil
	return m, action(status, fn)
}

func (m Model) visible() []models.Notification {
	return live.FilterNotifications(m.notifications, m.filter)
}

func (m Model) selectedNotification() (models.Notification, bool) {
	visible := m.visible()
	if m.selected < 0 || m.selected >= len(visible) {
		return models.Notification{}, false
	}
	return visible[m.selected], true
}

func (m *Model) clampSelection() {
	n := len(m.visible())
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// Filter returns the notification filter in use.
func (m Model) Filter() live.Filter {
	return m.filter
}

// Err returns the error of the last failed action.
func (m Model) Err() error {
	return m.err
}

// errorText is the footer text for the last failed action.
func (m Model) errorText() string {
	if m.err == nil {
		return ""
	}
	return errors.UserMessage(m.err)
}
