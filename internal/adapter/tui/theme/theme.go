// Package theme holds the colors and styles shared by the DevSpace terminal UI.
// lipgloss drops color output when NO_COLOR is set.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"devspace/internal/domain"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#00695c", Dark: "#4db6ac"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#283593", Dark: "#9fa8da"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
	ColorBgAlt   = lipgloss.AdaptiveColor{Light: "#f5f5f5", Dark: "#2d2d2d"}
	ColorFgDim   = lipgloss.AdaptiveColor{Light: "#9e9e9e", Dark: "#757575"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
)

// Transcript labels.
var (
	UserLabel   = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
	AgentLabel  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	SystemLabel = lipgloss.NewStyle().Foreground(ColorMuted).Bold(true)
	ErrorLabel  = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	Timestamp   = lipgloss.NewStyle().Foreground(ColorFgDim)
)

var (
	Header = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Padding(0, 1)

	Divider = lipgloss.NewStyle().Foreground(ColorBorder)

	StatusBar = lipgloss.NewStyle().
			Foreground(ColorFgDim).
			Background(ColorBgAlt).
			Padding(0, 1)

	StatusKey = lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true)

	InputPrompt = lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true)

	// Panel frames CLI output such as status tables.
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)
)

// AgentStatus styles an agent lifecycle phase.
func AgentStatus(s domain.AgentStatus) lipgloss.Style {
	switch s {
	case domain.StatusActive:
		return TextWarning
	case domain.StatusIdle:
		return TextSuccess
	case domain.StatusError:
		return TextError
	default:
		return TextMuted
	}
}

// StatusBadge renders s with its lifecycle symbol.
func StatusBadge(s domain.AgentStatus) string {
	sym := SymbolInfo
	switch s {
	case domain.StatusIdle:
		sym = SymbolSuccess
	case domain.StatusError:
		sym = SymbolError
	case domain.StatusStopped:
		sym = SymbolStopped
	}
	return AgentStatus(s).Render(sym + " " + string(s))
}

// MaxContentWidth caps the width of rendered markdown.
const MaxContentWidth = 100

// Clamp returns v clamped to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
