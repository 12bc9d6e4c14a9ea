package style

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorGreen     = lipgloss.Color("42")
	colorRed       = lipgloss.Color("196")
)

var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorGreen)
	StatusStyle  = lipgloss.NewStyle().Foreground(colorDarkGray)
)

// --- Handshake ---
var (
	BannerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	PromptStyle = lipgloss.NewStyle().Foreground(colorLightGray)
)

// --- Chat ---
var (
	PeerLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	FileNameStyle  = lipgloss.NewStyle().Foreground(colorLightGray)
)

// NewProgressBar creates a progress bar with a consistent style.
func NewProgressBar() progress.Model {
	return progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(30),
	)
}
