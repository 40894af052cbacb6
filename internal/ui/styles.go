// Package ui renders command output for the terminal.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	InfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	BoldStyle    = lipgloss.NewStyle().Bold(true)
)

// Markers shown in front of messages.
const (
	SuccessIcon   = "✔"
	ErrorIcon     = "✖"
	InfoIcon      = "ⓘ"
	WarningIcon   = "⚠"
	PublishedMark = "●"
	DraftMark     = "○"
)
