package tui

import (
	"dyscraper/pkg/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Palette
	accentCyan   = lipgloss.Color("#25F4EE")
	accentPink   = lipgloss.Color("#FE2C55")
	accentGreen  = lipgloss.Color("#39FF14")
	accentYellow = lipgloss.Color("#FFE600")
	accentOrange = lipgloss.Color("#FF8A00")
	alertRed     = lipgloss.Color("#FF0000")
	darkBg       = lipgloss.Color("#0E0E12")
	darkBg2      = lipgloss.Color("#1C1C24")
	dimWhite     = lipgloss.Color("#B0B0B0")

	// Base styles
	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	logoStyle = lipgloss.NewStyle().
			Foreground(accentCyan).
			Bold(true).
			Padding(1, 0).
			Align(lipgloss.Center)

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentPink).
			Background(darkBg2).
			Padding(1, 2)

	// Stats styles
	statsLabelStyle = lipgloss.NewStyle().
			Foreground(accentCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(accentYellow)

	// Status styles
	successStyle = lipgloss.NewStyle().
			Foreground(accentGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(accentOrange).
			Bold(true)

	// Account row styles
	accountStyle = lipgloss.NewStyle().
			Foreground(accentGreen).
			Bold(true)

	accountDoneStyle = lipgloss.NewStyle().
				Foreground(dimWhite).
				Faint(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	// Log styles
	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	logMessageStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	// Help style
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(1, 0, 0, 2)

	// Title styles for panels
	titleStyle = lipgloss.NewStyle().
			Background(accentPink).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	speedStyle = lipgloss.NewStyle().
			Foreground(accentCyan)
)

// StateStyle returns the style used to render a run state
func StateStyle(state models.State) lipgloss.Style {
	switch state {
	case models.StateDone:
		return successStyle
	case models.StateAborted:
		return errorStyle
	case models.StatePaginating:
		return speedStyle
	default:
		return warningStyle
	}
}

// OutcomeStyle returns the style and marker for an item outcome
func OutcomeStyle(status models.Status) (lipgloss.Style, string) {
	switch status {
	case models.StatusSuccess:
		return successStyle, "✓"
	case models.StatusSkipped:
		return dimStyle, "="
	default:
		return errorStyle, "✗"
	}
}
