package tui

import "github.com/charmbracelet/lipgloss"

// The chat surface draws from one small palette; everything else is
// composed from these.
var (
	colorAccent = lipgloss.Color("#F59E0B")
	colorUser   = lipgloss.Color("#60A5FA")
	colorAgent  = lipgloss.Color("#A78BFA")
	colorMuted  = lipgloss.Color("#6B7280")
	colorOK     = lipgloss.Color("#10B981")
	colorErr    = lipgloss.Color("#EF4444")
	colorWarn   = lipgloss.Color("#FBBF24")
)

var (
	userPromptStyle = lipgloss.NewStyle().Foreground(colorUser).Bold(true)
	agentLabelStyle = lipgloss.NewStyle().Foreground(colorAgent).Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	reasoningStyle  = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	toolOKStyle     = lipgloss.NewStyle().Foreground(colorOK)
	toolErrStyle    = lipgloss.NewStyle().Foreground(colorErr)
	approvalStyle   = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	modeBadgeStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	statusStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	spinnerStyle    = lipgloss.NewStyle().Foreground(colorAccent)
)
