package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/pharmastock/tui"
	"github.com/grovetools/pharmastock/tui/components/logviewer"
)

// logsModel is the full-screen log viewer.
type logsModel struct {
	viewer logviewer.Model
	start  tea.Cmd
}

func (m logsModel) Init() tea.Cmd {
	return m.start
}

func (m logsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.viewer, cmd = m.viewer.Update(msg)
	return m, cmd
}

func (m logsModel) View() string {
	return m.viewer.View()
}

func runLogsTUI(files map[string]string) error {
	tui.InitializeTUI()
	viewer := logviewer.New(80, 24)
	start := viewer.Start(files, true)
	defer viewer.Stop()

	_, err := tea.NewProgram(logsModel{viewer: viewer, start: start}, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}
