package tui

import (
	"github.com/charmbracelet/lipgloss"

	"wirevpn/internal/vpn"
)

// Color palette
var (
	colorGreen  = lipgloss.Color("40")  // connected
	colorYellow = lipgloss.Color("220") // connecting
	colorRed    = lipgloss.Color("196") // errors
	colorCyan   = lipgloss.Color("39")  // endpoints
	colorGray   = lipgloss.Color("244") // labels
	colorWhite  = lipgloss.Color("255") // values
	colorDim    = lipgloss.Color("240") // secondary text
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	labelStyle = lipgloss.NewStyle().
			Width(20).
			Foreground(colorGray)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	stateConnectedStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	stateConnectingStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	stateStoppedStyle = lipgloss.NewStyle().
				Foreground(colorRed)

	urlStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	timeStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(10)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	updateAvailableStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)
)

// StateText returns the styled state name.
func StateText(s vpn.State) string {
	switch s {
	case vpn.StateConnected:
		return stateConnectedStyle.Render(string(s))
	case vpn.StateConnecting:
		return stateConnectingStyle.Render(string(s))
	case vpn.StateStopped:
		return stateStoppedStyle.Render(string(s))
	default:
		return valueStyle.Render("unknown")
	}
}

// ReadyText renders a readiness probe result.
func ReadyText(r vpn.ReadyState) string {
	if r.Ready {
		return stateConnectedStyle.Render("ready") + hintStyle.Render(" v"+r.Version)
	}
	if r.Reason == "" {
		return hintStyle.Render("-")
	}
	return errorStyle.Render(string(r.Reason))
}
