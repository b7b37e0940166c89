package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/maxreport/metrics"
)

// FetchSummary is the data shown by the stats_fetch view. It is the same
// payload the CLI renders as json or yaml without --tui.
type FetchSummary struct {
	Outcome     string           `json:"outcome"`
	Error       string           `json:"error,omitempty"`
	StoragePath string           `json:"storage_path,omitempty"`
	Elapsed     time.Duration    `json:"elapsed"`
	Metrics     metrics.Snapshot `json:"metrics"`
}

// RowsPerSecond returns the fetch throughput, or 0 before any time passed.
func (s *FetchSummary) RowsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Metrics.Rows) / s.Elapsed.Seconds()
}

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsFetch:
		content = m.renderStatsFetch()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsFetch() string {
	data, ok := m.data.(*FetchSummary)
	if !ok {
		return "Invalid data type for stats_fetch"
	}
	snap := data.Metrics

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Fetch Statistics"))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"Fetch ID", snap.FetchID},
		{"Report", snap.Report},
		{"Outcome", data.Outcome},
		{"Elapsed", data.Elapsed.Round(time.Millisecond).String()},
		{"Rows/s", fmt.Sprintf("%.1f", data.RowsPerSecond())},
	}
	if data.StoragePath != "" {
		rows = append(rows, [2]string{"Stored At", data.StoragePath})
	}
	if data.Error != "" {
		rows = append(rows, [2]string{"Error", data.Error})
	}
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		if row[0] == "Outcome" {
			value = StateStyle(row[1]).Render(row[1])
		}
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), value)
	}
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Rows", snap.Rows, highlightColor),
		m.renderStatBox("Pages", snap.Pages, highlightColor),
		m.renderStatBox("Attempts", snap.Attempts, successColor),
		m.renderStatBox("Retries", snap.Retries, warningColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Terminal", snap.TerminalFailures, errorColor),
		m.renderStatBox("Exhausted", snap.ExhaustedFailures, errorColor),
		m.renderStatBox("Sink OK", snap.SinkWriteSuccess, successColor),
		m.renderStatBox("Sink Failed", snap.SinkWriteFailure, errorColor),
	))

	if len(snap.StatusCounts) > 0 {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Statuses:"))
		for _, code := range slices.Sorted(maps.Keys(snap.StatusCounts)) {
			fmt.Fprintf(&b, " %s", ValueStyle.Render(fmt.Sprintf("%d=%d", code, snap.StatusCounts[code])))
		}
	}
	if snap.TransportErrors > 0 {
		fmt.Fprintf(&b, "\n%s %s", LabelStyle.Render("Transport:"),
			ErrorStyle.Render(fmt.Sprintf("%d errors", snap.TransportErrors)))
	}

	return BoxStyle.Render(b.String())
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
