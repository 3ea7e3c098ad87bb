package main

import "github.com/charmbracelet/lipgloss"

type uiTheme struct {
	header      lipgloss.Style
	topic       lipgloss.Style
	panel       lipgloss.Style
	sidebar     lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	self        lipgloss.Style
	other       lipgloss.Style
	facilitator lipgloss.Style
	timestamp   lipgloss.Style
	muted       lipgloss.Style
}

func newTheme() uiTheme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	amber := lipgloss.Color("#ffb86c")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		topic: lipgloss.NewStyle().Foreground(muted).Italic(true),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
		sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		footer:      lipgloss.NewStyle().Foreground(muted),
		status:      lipgloss.NewStyle().Foreground(mint),
		errorStatus: lipgloss.NewStyle().Foreground(amber).Bold(true),
		self:        lipgloss.NewStyle().Foreground(mint).Bold(true),
		other:       lipgloss.NewStyle().Foreground(blue).Bold(true),
		facilitator: lipgloss.NewStyle().Foreground(pink).Bold(true),
		timestamp:   lipgloss.NewStyle().Foreground(muted),
		muted:       lipgloss.NewStyle().Foreground(muted),
	}
}
