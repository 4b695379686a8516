package display

import (
	"fmt"
	"strconv"

	"github.com/muurk/serial2ip/internal/version"
	"github.com/muurk/serial2ip/internal/wifi"
	"go.uber.org/zap"
)

// Layout.
const (
	animLineY       = 11
	animEraserWidth = 8
	listTop         = 12
	listRowHeight   = 10
	visibleListRows = 5
)

// redraw paints the current page, then the popup, and commits the frame.
// c.mu must be held.
func (c *Controller) redraw() {
	d := c.drawer
	d.Clear()

	switch c.page {
	case PageHome:
		c.drawHome()
	case PageUart:
		c.drawUart()
	case PageNetwork:
		c.drawNetwork()
	case PageHelp:
		c.drawHelp()
	}

	switch c.popup {
	case PopupMenu:
		c.drawMenu()
	case PopupMsg:
		c.drawMessage()
	}

	if err := d.Refresh(); err != nil {
		c.log.Warn("Failed to refresh display", zap.Error(err))
	}
}

func (c *Controller) drawHome() {
	d := c.drawer
	h := c.home

	d.DrawImage(0, 0, SignalIcon(h.Level), false)
	switch h.State {
	case wifi.StateConnected:
		d.DrawText(16, 0, h.SSID, FontSmall, false)
	case wifi.StateConnecting:
		d.DrawText(16, 0, "Connecting", FontSmall, false)
	default:
		d.DrawText(16, 0, "Disconnected", FontSmall, false)
	}

	// Moving gap along the separator.
	for x := 0; x < Width; x++ {
		if x >= c.eraser && x < c.eraser+animEraserWidth {
			continue
		}
		d.DrawHLine(x, animLineY, 1, 1)
	}

	ip := h.IP
	if ip == "" {
		ip = "0.0.0.0"
	}
	d.DrawText(0, 14, ip, FontLarge, false)

	d.DrawText(0, 32, fmt.Sprintf("UART %d", h.Baudrate), FontSmall, false)
	tcp := "TCP off"
	if h.Forwarding {
		tcp = fmt.Sprintf("TCP :%d [%d]", h.TCPPort, h.Clients)
	}
	d.DrawText(0, 41, tcp, FontSmall, false)
	d.DrawText(0, 50, fmt.Sprintf("U%s T%s",
		formatCount(h.Stats.UartRxBytes), formatCount(h.Stats.TCPRxBytes)), FontSmall, false)

	if c.showCPU {
		cpu := "--"
		if h.CPU >= 0 {
			cpu = strconv.Itoa(h.CPU) + "%"
		}
		d.DrawText(Width-6*8, 32, "CPU "+cpu, FontSmall, true)
	}
}

func (c *Controller) drawTitle(title string) {
	c.drawer.FillArea(0, 0, Width, 10, true)
	c.drawer.DrawText(1, 1, title, FontSmall, true)
}

// window returns the first visible row of a list so that sel is shown.
func window(sel, n int) int {
	if n <= visibleListRows || sel < visibleListRows {
		return 0
	}
	return sel - visibleListRows + 1
}

func (c *Controller) drawUart() {
	c.drawTitle("UART Baudrate")
	cur := c.home.Baudrate
	first := window(c.uartSel, len(c.rates))
	for i := first; i < len(c.rates) && i < first+visibleListRows; i++ {
		label := strconv.FormatUint(uint64(c.rates[i]), 10)
		if c.rates[i] == cur {
			label += " <"
		}
		y := listTop + (i-first)*listRowHeight
		c.drawer.DrawText(4, y+1, label, FontSmall, i == c.uartSel)
	}
}

func (c *Controller) drawNetwork() {
	c.drawTitle("WiFi Networks")
	first := window(c.cursor, len(c.rows))
	for i := first; i < len(c.rows) && i < first+visibleListRows; i++ {
		row := c.rows[i]
		y := listTop + (i-first)*listRowHeight
		selected := i == c.cursor
		if selected {
			c.drawer.FillArea(0, y, Width, listRowHeight-1, true)
		}
		c.drawer.DrawImage(1, y, SignalIcon(row.Level), selected)
		label := row.SSID
		if row.Connected {
			label = "*" + label
		}
		c.drawer.DrawText(16, y+1, label, FontSmall, selected)
	}
}

func (c *Controller) drawHelp() {
	d := c.drawer
	x := 0
	if c.qr.Width > 0 {
		scale := Height / c.qr.Width
		if scale < 1 {
			scale = 1
		}
		for j := 0; j < c.qr.Height; j++ {
			for i := 0; i < c.qr.Width; i++ {
				d.FillArea(i*scale, j*scale, scale, scale, c.qr.At(i, j))
			}
		}
		x = c.qr.Width*scale + 2
	}

	d.DrawText(x, 0, version.Model, FontSmall, false)
	d.DrawText(x, 10, version.Version, FontSmall, false)
	d.DrawText(x, 20, version.Serial, FontSmall, false)
	if c.forceHelp {
		d.DrawText(x, 40, "No WiFi", FontSmall, true)
		d.DrawText(x, 50, "use console", FontSmall, false)
	} else {
		d.DrawText(x, 50, "2x: back", FontSmall, false)
	}
}

func (c *Controller) drawMenu() {
	d := c.drawer
	const x, y, w = 32, 10, 64
	h := len(MenuEntries)*listRowHeight + 6
	d.FillArea(x, y, w, h, false)
	d.DrawRect(x, y, w, h, 1)
	for i, e := range MenuEntries {
		ey := y + 3 + i*listRowHeight
		if i == c.menuSel {
			d.FillArea(x+2, ey, w-4, listRowHeight-1, true)
		}
		d.DrawText(x+6, ey+1, e.Label, FontSmall, i == c.menuSel)
	}
}

func (c *Controller) drawMessage() {
	d := c.drawer
	const x, y, w, h = 8, 20, 112, 24
	d.FillArea(x, y, w, h, false)
	d.DrawRect(x, y, w, h, 2)
	tx := x + (w-len(c.msgText)*FontSmall.Width)/2
	if tx < x+3 {
		tx = x + 3
	}
	d.DrawText(tx, y+8, c.msgText, FontSmall, false)
}

// formatCount renders a byte counter compactly.
func formatCount(n uint32) string {
	switch {
	case n < 10000:
		return strconv.FormatUint(uint64(n), 10)
	case n < 1000*1000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	case n < 1000*1000*1000:
		return fmt.Sprintf("%.1fM", float64(n)/(1000*1000))
	default:
		return fmt.Sprintf("%.1fG", float64(n)/(1000*1000*1000))
	}
}
