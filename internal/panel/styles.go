package panel

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - LED on, found devices
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors
	WarningColor = lipgloss.Color("#FFA500") // Orange - dropped input
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
)

var (
	// HeaderTitleStyle is for the panel title
	HeaderTitleStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true).
				PaddingLeft(2)

	// HeaderParamKeyStyle is for parameter keys (e.g., "Serial:")
	HeaderParamKeyStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	// HeaderParamValueStyle is for parameter values
	HeaderParamValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	// ScreenStyle frames the display pixels
	ScreenStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Foreground(TextColor)

	// InvertStyle is for inverted text on the display
	InvertStyle = lipgloss.NewStyle().Reverse(true)

	// LEDOnStyle and LEDOffStyle draw the status LED
	LEDOnStyle  = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	LEDOffStyle = lipgloss.NewStyle().Foreground(MutedColor)

	// StatusStyle is for the line under the screen
	StatusStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	// WarningStyle is for dropped button events
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)

	// ResultKeyStyle is for device list keys
	ResultKeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(10)

	// ResultValueStyle is for device list values
	ResultValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	// DeviceTitleStyle is for a discovered device name
	DeviceTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	// EmptyStyle is for "nothing found" messages
	EmptyStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)
)

// LED markers
const (
	LEDOnMarker  = "●"
	LEDOffMarker = "○"
)

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}
