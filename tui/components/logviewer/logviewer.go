// Package logviewer is a scrolling viewer that tails pharmastock log files.
package logviewer

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/pharmastock/tui/theme"
	"github.com/hpcloud/tail"
)

// maxLines bounds the lines kept in memory.
const maxLines = 5000

// LogLineMsg is sent when a new log line is received.
type LogLineMsg struct {
	Component string
	Line      string
}

// Model is the log viewer.
type Model struct {
	viewport   viewport.Model
	tails      []*tail.Tail
	mu         *sync.Mutex
	follow     bool
	ready      bool
	logChannel chan LogLineMsg
	lines      []string
}

// New creates a log viewer of the given size.
func New(width, height int) Model {
	return Model{
		viewport:   viewport.New(width, height),
		mu:         &sync.Mutex{},
		follow:     true,
		logChannel: make(chan LogLineMsg, 100),
	}
}

// Start tails files, keyed by component name. With fromStart false only new
// lines are shown.
func (m *Model) Start(files map[string]string, fromStart bool) tea.Cmd {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()

	whence := io.SeekEnd
	if fromStart {
		whence = io.SeekStart
	}
	for component, path := range files {
		t, err := tail.TailFile(path, tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: false,
			Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
			Logger:    stdlog.New(io.Discard, "", 0),
		})
		if err != nil {
			continue
		}
		m.tails = append(m.tails, t)

		go func(component string, t *tail.Tail) {
			for line := range t.Lines {
				m.logChannel <- LogLineMsg{Component: component, Line: line.Text}
			}
		}(component, t)
	}

	return m.waitForLogLine()
}

// Stop halts all tailing.
func (m *Model) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tails {
		_ = t.Stop()
	}
	m.tails = nil
}

func (m *Model) waitForLogLine() tea.Cmd {
	return func() tea.Msg {
		return <-m.logChannel
	}
}

func (m *Model) setWrappedContent() {
	if !m.ready {
		return
	}
	wrapWidth := m.viewport.Width - 1
	if wrapWidth < 1 {
		wrapWidth = 1
	}
	wrap := lipgloss.NewStyle().Width(wrapWidth)

	wrapped := make([]string, len(m.lines))
	for i, line := range m.lines {
		wrapped[i] = wrap.Render(line)
	}
	m.viewport.SetContent(strings.Join(wrapped, "\n"))
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 1
		m.ready = true
		m.setWrappedContent()
	case LogLineMsg:
		m.lines = append(m.lines, FormatLine(msg.Component, msg.Line))
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
		m.setWrappedContent()
		if m.follow {
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, m.waitForLogLine())
	case tea.KeyMsg:
		if msg.String() == "f" {
			m.follow = !m.follow
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the visible lines with a scrollbar.
func (m Model) View() string {
	if !m.ready {
		return "Initializing log viewer..."
	}

	lines := strings.Split(m.viewport.View(), "\n")
	bar := scrollbar(&m.viewport, len(lines))
	for i := range lines {
		lines[i] += bar[i]
	}

	status := "follow: off"
	if m.follow {
		status = "follow: on"
	}
	return strings.Join(lines, "\n") + "\n" + theme.DefaultTheme.Muted.Render(status+" · f toggle · q quit")
}

// IsFollowing reports whether new lines scroll the view.
func (m Model) IsFollowing() bool {
	return m.follow
}

// Lines returns the formatted lines received so far.
func (m Model) Lines() []string {
	return m.lines
}

func scrollbar(vp *viewport.Model, height int) []string {
	bar := make([]string, height)
	total := vp.TotalLineCount()

	thumbStart, thumbSize := 0, height
	if total > vp.Height && total > 0 {
		thumbSize = max(1, height*vp.Height/total)
		percent := min(max(vp.ScrollPercent(), 0), 1)
		thumbStart = int(float64(height-thumbSize)*percent + 0.5)
	}
	for i := range bar {
		switch {
		case total == 0:
			bar[i] = " "
		case i >= thumbStart && i < thumbStart+thumbSize:
			bar[i] = theme.DefaultTheme.Muted.Render("█")
		default:
			bar[i] = theme.DefaultTheme.Muted.Render("░")
		}
	}
	return bar
}

// FormatLine renders a JSON log line as "time [component] LEVEL: msg".
// Lines that are not JSON are returned with the component prefix only.
func FormatLine(component, line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		if component == "" {
			return line
		}
		return fmt.Sprintf("[%s] %s", theme.DefaultTheme.Accent.Render(component), line)
	}

	msg, _ := entry["msg"].(string)
	level, _ := entry["level"].(string)
	ts, _ := entry["time"].(string)
	if c, ok := entry["component"].(string); ok && c != "" {
		component = c
	}

	var parts []string
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		parts = append(parts, parsed.Format("15:04:05"))
	}
	if component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", theme.DefaultTheme.Accent.Render(component)))
	}

	levelStyle := theme.DefaultTheme.Info
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = theme.DefaultTheme.Error
	case "warning", "warn":
		levelStyle = theme.DefaultTheme.Warning
	}
	parts = append(parts, levelStyle.Render(strings.ToUpper(level))+":", msg)

	return strings.Join(parts, " ")
}
