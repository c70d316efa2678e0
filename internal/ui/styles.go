package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/lordbuffcloud/srv"
)

var (
	fgColor      = lipgloss.Color("15")
	accentColor  = lipgloss.Color("6")
	subtleColor  = lipgloss.Color("8")
	warningColor = lipgloss.Color("3")
	errorColor   = lipgloss.Color("1")
	successColor = lipgloss.Color("2")

	titleStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			PaddingLeft(2)

	rowSelectedStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true).
				PaddingLeft(0)

	subtleStyle = lipgloss.NewStyle().
			Foreground(subtleColor)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	stateRunningStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	stateStoppedStyle = lipgloss.NewStyle().Foreground(subtleColor)
	statePendingStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	stateFailedStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// stateStyle returns the style for rendering a lifecycle state
func stateStyle(state srv.State) lipgloss.Style {
	switch state {
	case srv.StateRunning:
		return stateRunningStyle
	case srv.StateStarting, srv.StateStopping:
		return statePendingStyle
	case srv.StateFailed:
		return stateFailedStyle
	default:
		return stateStoppedStyle
	}
}
