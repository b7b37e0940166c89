package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/maxreport/types"
)

// maxColumnWidth caps a column so wide values do not push the rest
// off screen.
const maxColumnWidth = 32

// InspectModel is a Bubble Tea model for browsing a fetched table.
type InspectModel struct {
	viewType string
	data     any
	grid     table.Model
	ok       bool
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	m := InspectModel{
		viewType: viewType,
		data:     data,
	}
	if t, ok := data.(*types.Table); ok && viewType == ViewInspectTable {
		m.grid = newGrid(t)
		m.ok = true
	}
	return m
}

func newGrid(t *types.Table) table.Model {
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = len(col)
	}
	rows := make([]table.Row, len(t.Rows))
	for r, row := range t.Rows {
		cells := make(table.Row, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = cell(row[col])
			widths[i] = max(widths[i], len(cells[i]))
		}
		rows[r] = cells
	}

	columns := make([]table.Column, len(t.Columns))
	for i, col := range t.Columns {
		columns[i] = table.Column{Title: col, Width: min(widths[i], maxColumnWidth)}
	}

	styles := table.DefaultStyles()
	styles.Header = HeaderStyle
	styles.Selected = SelectedStyle

	return table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows), 20)+3),
		table.WithStyles(styles),
	)
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.ok && msg.Height > 6 {
			m.grid.SetHeight(msg.Height - 6)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	if !m.ok {
		return m, nil
	}
	var cmd tea.Cmd
	m.grid, cmd = m.grid.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch {
	case m.viewType != ViewInspectTable:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	case !m.ok:
		content = "Invalid data type for inspect_table"
	default:
		content = m.renderInspectTable()
	}

	help := HelpStyle.Render("↑/↓ to scroll, q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectTable() string {
	t := m.data.(*types.Table)

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Report Rows"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Rows:"), ValueStyle.Render(fmt.Sprintf("%d", t.Len())))
	fmt.Fprintf(&b, "%s %s\n\n", LabelStyle.Render("Columns:"), ValueStyle.Render(fmt.Sprintf("%d", len(t.Columns))))

	if t.Empty() {
		b.WriteString(WarningStyle.Render("(no results)"))
	} else {
		b.WriteString(m.grid.View())
	}
	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
