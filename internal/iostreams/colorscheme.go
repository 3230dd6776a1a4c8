package iostreams

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Semantic palette.
var (
	ColorPrimary = lipgloss.Color("#E8714A")
	ColorSuccess = lipgloss.Color("#04B575")
	ColorWarning = lipgloss.Color("#FFCC00")
	ColorError   = lipgloss.Color("#FF5F87")
	ColorMuted   = lipgloss.Color("#626262")
)

// Text styles.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	DividerStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

// ColorScheme formats text for the terminal. When colors are disabled,
// methods return the input unmodified.
type ColorScheme struct {
	enabled bool
}

// NewColorScheme creates a ColorScheme.
func NewColorScheme(enabled bool) *ColorScheme {
	return &ColorScheme{enabled: enabled}
}

// Enabled returns whether colors are enabled.
func (cs *ColorScheme) Enabled() bool { return cs.enabled }

func (cs *ColorScheme) render(style lipgloss.Style, s string) string {
	if !cs.enabled {
		return s
	}
	return style.Render(s)
}

// Red returns the string in the error color.
func (cs *ColorScheme) Red(s string) string { return cs.render(ErrorStyle, s) }

// Green returns the string in the success color.
func (cs *ColorScheme) Green(s string) string { return cs.render(SuccessStyle, s) }

// Yellow returns the string in the warning color.
func (cs *ColorScheme) Yellow(s string) string { return cs.render(WarningStyle, s) }

// Muted returns the string dimmed.
func (cs *ColorScheme) Muted(s string) string { return cs.render(MutedStyle, s) }

// Bold returns the string in bold.
func (cs *ColorScheme) Bold(s string) string { return cs.render(BoldStyle, s) }

// Title returns the string in the primary heading style.
func (cs *ColorScheme) Title(s string) string { return cs.render(TitleStyle, s) }

// Redf returns a formatted string in the error color.
func (cs *ColorScheme) Redf(format string, a ...any) string {
	return cs.Red(fmt.Sprintf(format, a...))
}

// SuccessIcon returns a check mark, colored when enabled.
func (cs *ColorScheme) SuccessIcon() string {
	if !cs.enabled {
		return "[ok]"
	}
	return cs.Green("✓")
}

// FailureIcon returns a cross, colored when enabled.
func (cs *ColorScheme) FailureIcon() string {
	if !cs.enabled {
		return "[x]"
	}
	return cs.Red("✗")
}

// WarningIcon returns a warning sign, colored when enabled.
func (cs *ColorScheme) WarningIcon() string {
	if !cs.enabled {
		return "[!]"
	}
	return cs.Yellow("!")
}
