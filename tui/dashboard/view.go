package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/pharmastock/pkg/hub"
	"github.com/grovetools/pharmastock/pkg/models"
	"github.com/grovetools/pharmastock/tui/components/table"
	"github.com/grovetools/pharmastock/tui/theme"
)

// View implements tea.Model.
func (m Model) View() string {
	t := theme.DefaultTheme

	sections := []string{
		m.renderHeader(),
		m.renderStats(),
		m.renderAlerts(),
		t.Title.Render("Recent movements"),
		RenderMovements(m.movements),
		t.Title.Render(fmt.Sprintf("Notifications (%d unread, showing %s)", models.CountUnread(m.notifications), m.filter)),
		m.renderNotifications(),
		m.renderFooter(),
	}
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	t := theme.DefaultTheme
	title := t.Header.MarginBottom(0).Render("Pharmacy dashboard")
	if m.conn == nil {
		return title
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", m.renderConnection())
}

func (m Model) renderConnection() string {
	t := theme.DefaultTheme
	switch m.state {
	case hub.Connected:
		return t.Success.Render(theme.IconConnected + " Live")
	case hub.Connecting:
		return t.Info.Render(m.spinner.View() + " Connecting")
	case hub.Reconnecting:
		return t.Warning.Render(theme.IconReconnecting + " Reconnecting " + m.spinner.View())
	default:
		return t.Muted.Render(theme.IconDisconnected + " Offline")
	}
}

func (m Model) renderStats() string {
	t := theme.DefaultTheme
	box := func(label, value string, style lipgloss.Style) string {
		return t.Box.Render(t.Muted.Render(label) + "\n" + style.Render(value))
	}

	boxes := []string{
		box("Medicines", strconv.Itoa(m.stats.TotalMedicines), t.Bold),
		box("Inventory value", m.stats.TotalInventoryValue.StringFixed(2), t.Bold),
		box("Critical", strconv.Itoa(m.stats.CriticalAlerts), t.Error),
		box("Warnings", strconv.Itoa(m.stats.WarningAlerts), t.Warning),
		box("Active batches", strconv.Itoa(m.stats.ActiveBatches), t.Bold),
		box("Low stock", strconv.Itoa(m.stats.LowStockItems), t.Highlight),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m Model) renderAlerts() string {
	return RenderAlerts(m.alerts)
}

// RenderAlerts renders the critical and warning lists.
func RenderAlerts(alerts models.DashboardAlerts) string {
	t := theme.DefaultTheme
	if alerts.Total() == 0 {
		return t.Muted.Render("No active alerts")
	}

	var lines []string
	for _, a := range alerts.Critical {
		lines = append(lines, t.Error.Render(theme.IconCritical)+" "+describeAlert(a))
	}
	for _, a := range alerts.Warning {
		lines = append(lines, t.Warning.Render(theme.IconWarning)+" "+describeAlert(a))
	}
	return strings.Join(lines, "\n")
}

func describeAlert(a models.AlertItem) string {
	if a.MedicineName == "" {
		return a.Message
	}
	text := fmt.Sprintf("%s (batch %s) expires %s", a.MedicineName, a.BatchNumber, a.ExpiryDate.Format("2006-01-02"))
	if a.DaysRemaining > 0 {
		text += fmt.Sprintf(", %d days left", a.DaysRemaining)
	}
	return text
}

// RenderMovements renders movements as a table.
func RenderMovements(movements []models.RecentMovement) string {
	if len(movements) == 0 {
		return theme.DefaultTheme.Muted.Render("No movements yet")
	}
	rows := make([][]string, 0, len(movements))
	for _, mv := range movements {
		quantity := strconv.Itoa(mv.Quantity)
		if mv.Inbound() {
			quantity = "+" + quantity
		} else {
			quantity = "-" + quantity
		}
		rows = append(rows, []string{
			mv.PerformedAt.Format("Jan 02 15:04"),
			mv.MedicineName,
			mv.DisplayType(),
			quantity,
			mv.PerformedBy,
		})
	}
	return table.NewBuilder().
		WithHeaders("When", "Medicine", "Type", "Qty", "By").
		WithMutedColumn(0).
		WithRows(rows...).
		String()
}

// NotificationRows renders notifications as table rows.
func NotificationRows(notifications []models.Notification) [][]string {
	rows := make([][]string, 0, len(notifications))
	for _, n := range notifications {
		marker := " "
		if !n.IsRead {
			marker = theme.IconUnread
		}
		rows = append(rows, []string{
			marker,
			n.CreatedAt.Format("Jan 02 15:04"),
			n.Type.String(),
			n.Title,
			n.Message,
		})
	}
	return rows
}

func (m Model) renderNotifications() string {
	visible := m.visible()
	if len(visible) == 0 {
		return theme.DefaultTheme.Muted.Render("No notifications")
	}
	return table.SelectableTable([]string{"", "When", "Type", "Title", "Message"}, NotificationRows(visible), m.selected)
}

func (m Model) renderFooter() string {
	t := theme.DefaultTheme
	var lines []string

	switch {
	case m.busy:
		lines = append(lines, t.Info.Render(m.spinner.View()+" Working..."))
	case m.err != nil:
		lines = append(lines, t.Error.Render(m.errorText()))
	case m.status != "":
		lines = append(lines, t.Success.Render(m.status))
	}
	if m.lastNotice != nil {
		lines = append(lines, t.Accent.Render("Notice: ")+m.lastNotice.Message)
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}
