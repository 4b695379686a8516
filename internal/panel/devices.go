package panel

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/serial2ip/internal/discovery"
)

// RenderDevices formats discovered bridges as a list of styled blocks.
func RenderDevices(devices []*discovery.Device) string {
	if len(devices) == 0 {
		return EmptyStyle.Render("No bridges found") + "\n"
	}

	blocks := make([]string, 0, len(devices))
	for _, d := range devices {
		rows := []string{DeviceTitleStyle.Render(d.Instance)}
		add := func(k, v string) {
			if v == "" {
				return
			}
			rows = append(rows, ResultKeyStyle.Render(k)+ResultValueStyle.Render(v))
		}
		add("Address", d.Addr())
		add("Host", d.Hostname)
		add("Serial", d.Serial)
		add("Version", d.GetMetadata("version"))
		if baud := d.Baudrate(); baud != 0 {
			add("Baudrate", fmt.Sprintf("%d", baud))
		}
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, rows...))
	}
	return fmt.Sprintf("Found %d bridge(s):\n\n%s\n", len(devices), strings.Join(blocks, "\n\n"))
}
