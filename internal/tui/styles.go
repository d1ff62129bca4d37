package tui

import "github.com/charmbracelet/lipgloss"

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("170")).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	labelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	clickableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	disabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	emptyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	nameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	loadingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)
