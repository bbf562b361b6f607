package main

import "github.com/charmbracelet/lipgloss"

var (
	// Color palette
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#04B575")
	warningColor = lipgloss.Color("#FFA500")
	mutedColor   = lipgloss.Color("#666666")
)

type styles struct {
	ok     lipgloss.Style
	name   lipgloss.Style
	kind   lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	warn   lipgloss.Style
	border lipgloss.Style
}

// newStyles returns the output styles, or unstyled ones when plain is set.
func newStyles(plain bool) styles {
	if plain {
		s := lipgloss.NewStyle()
		return styles{ok: s, name: s, kind: s, header: s.Padding(0, 1), cell: s.Padding(0, 1), warn: s.Padding(0, 1), border: s}
	}
	return styles{
		ok:     lipgloss.NewStyle().Bold(true).Foreground(successColor),
		name:   lipgloss.NewStyle().Bold(true),
		kind:   lipgloss.NewStyle().Foreground(primaryColor),
		header: lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1),
		cell:   lipgloss.NewStyle().Padding(0, 1),
		warn:   lipgloss.NewStyle().Foreground(warningColor).Padding(0, 1),
		border: lipgloss.NewStyle().Foreground(mutedColor),
	}
}
