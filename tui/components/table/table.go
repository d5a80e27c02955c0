// Package table renders the tables shared by the dashboard and the one-shot
// commands.
package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/grovetools/pharmastock/tui/theme"
)

// Options configures a table.
type Options struct {
	Bordered bool
	// MutedColumns are rendered in the muted style, e.g. timestamps.
	MutedColumns map[int]bool
	Theme        *theme.Theme
}

// DefaultOptions returns a bordered table in the default theme.
func DefaultOptions() Options {
	return Options{Bordered: true, Theme: theme.DefaultTheme}
}

// Builder provides a fluent interface for creating styled tables.
type Builder struct {
	headers []string
	rows    [][]string
	width   int
	options Options
}

// NewBuilder creates a new table builder.
func NewBuilder() *Builder {
	return &Builder{options: DefaultOptions()}
}

// WithTheme sets the theme.
func (b *Builder) WithTheme(t *theme.Theme) *Builder {
	b.options.Theme = t
	return b
}

// WithBorder enables or disables the border.
func (b *Builder) WithBorder(bordered bool) *Builder {
	b.options.Bordered = bordered
	return b
}

// WithMutedColumn renders column col in the muted style.
func (b *Builder) WithMutedColumn(col int) *Builder {
	if b.options.MutedColumns == nil {
		b.options.MutedColumns = make(map[int]bool)
	}
	b.options.MutedColumns[col] = true
	return b
}

// WithHeaders sets the table headers.
func (b *Builder) WithHeaders(headers ...string) *Builder {
	b.headers = headers
	return b
}

// WithRows appends rows.
func (b *Builder) WithRows(rows ...[]string) *Builder {
	b.rows = append(b.rows, rows...)
	return b
}

// WithWidth sets the total table width.
func (b *Builder) WithWidth(width int) *Builder {
	b.width = width
	return b
}

// Build creates the styled table.
func (b *Builder) Build() *ltable.Table {
	t := b.options.Theme
	if t == nil {
		t = theme.DefaultTheme
	}

	table := ltable.New()
	if b.options.Bordered {
		table = table.
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(t.Colors.Border))
	} else {
		table = table.Border(lipgloss.HiddenBorder())
	}
	if len(b.headers) > 0 {
		table = table.Headers(b.headers...)
	}
	if b.width > 0 {
		table = table.Width(b.width)
	}

	muted := b.options.MutedColumns
	table = table.StyleFunc(func(row, col int) lipgloss.Style {
		if row == ltable.HeaderRow {
			return t.TableHeader.Padding(0, 1)
		}
		style := lipgloss.NewStyle().Padding(0, 1)
		if muted[col] {
			style = style.Foreground(t.Colors.MutedText)
		}
		return style
	})

	for _, row := range b.rows {
		table = table.Row(row...)
	}
	return table
}

// String renders the table.
func (b *Builder) String() string {
	return b.Build().String()
}

// SimpleTable renders a bordered table with headers and rows.
func SimpleTable(headers []string, rows [][]string) string {
	return NewBuilder().WithHeaders(headers...).WithRows(rows...).String()
}

// StatusTable renders label/value pairs without a border.
func StatusTable(items [][]string) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		if len(item) >= 2 {
			rows = append(rows, []string{theme.DefaultTheme.Muted.Render(item[0] + ":"), item[1]})
		}
	}
	return NewBuilder().WithBorder(false).WithRows(rows...).String()
}

// SelectableTable renders a table with an arrow next to the selected data
// row. A negative selected index renders no arrow.
func SelectableTable(headers []string, rows [][]string, selected int) string {
	rendered := NewBuilder().WithHeaders(headers...).WithRows(rows...).String()
	lines := strings.Split(rendered, "\n")

	// Top border, then the header and its separator when present.
	first := 1
	if len(headers) > 0 {
		first = 3
	}

	arrow := theme.DefaultTheme.Highlight.Render(theme.IconArrow)
	var sb strings.Builder
	for i, line := range lines {
		if selected >= 0 && i == first+selected {
			sb.WriteString(arrow + " ")
		} else {
			sb.WriteString("  ")
		}
		sb.WriteString(line)
		if i < len(lines)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
