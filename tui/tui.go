// Package tui holds the terminal UI shared by the pharmastock commands.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// InitializeTUI forces true color when CLICOLOR_FORCE=1 or COLORTERM=truecolor
// is set, so the dashboard keeps its colors when piped or recorded.
func InitializeTUI() {
	if os.Getenv("CLICOLOR_FORCE") == "1" || os.Getenv("COLORTERM") == "truecolor" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}
