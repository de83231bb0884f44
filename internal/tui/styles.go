package tui

import "github.com/charmbracelet/lipgloss"

var (
	canvasStyle      = lipgloss.NewStyle().Padding(1, 2)
	statsStyle       = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(48)
	headerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	valueStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	activeParamStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	graphStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444")).Bold(true)

	modeStyles = map[string]lipgloss.Style{
		"IDLE":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#666688")),
		"MANUAL": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00")),
		"AUTO":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88")),
	}
)

func modeBadge(mode string) string {
	if s, ok := modeStyles[mode]; ok {
		return s.Render(mode)
	}
	return mode
}
