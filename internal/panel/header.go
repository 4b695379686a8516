package panel

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one key/value line of a header.
type Param struct {
	Key   string
	Value string
}

// Header is a title banner with aligned parameters.
type Header struct {
	Title  string
	Params []Param
	Width  int
}

// Render returns the styled header as a string
func (h Header) Render() string {
	width := h.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	title := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	if len(h.Params) == 0 {
		return h.box(width).Render(title)
	}

	keyWidth := 0
	for _, p := range h.Params {
		if len(p.Key) > keyWidth {
			keyWidth = len(p.Key)
		}
	}
	lines := make([]string, 0, len(h.Params))
	for _, p := range h.Params {
		key := HeaderParamKeyStyle.Render(p.Key + ":" + strings.Repeat(" ", keyWidth-len(p.Key)))
		lines = append(lines, key+" "+HeaderParamValueStyle.Render(p.Value))
	}

	dividerWidth := width - 6
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat("─", dividerWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, title, divider, strings.Join(lines, "\n"))
	return h.box(width).Render(content)
}

func (h Header) box(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2)
}
