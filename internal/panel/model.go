package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/serial2ip/internal/display"
	"github.com/muurk/serial2ip/internal/version"
)

const (
	// ClickWindow is how long a run of space presses stays open.
	ClickWindow = 400 * time.Millisecond

	// FrameInterval is the repaint period of the panel.
	FrameInterval = display.SlotDuration

	// LongPressSeconds is the hold time reported by the long press key.
	LongPressSeconds = 3
)

type frameMsg time.Time

type clicksDoneMsg struct{ seq int }

// Model is the bubbletea model of the front panel simulator.
type Model struct {
	canvas  *display.Canvas
	led     *display.MemoryLED
	buttons *display.ButtonQueue
	start   time.Time
	now     time.Time

	clicks   uint8
	clickSeq int
	dropped  int
	last     string

	keys  keyMap
	help  help.Model
	width int
}

// New creates a panel over the display's canvas, LED and button queue.
func New(canvas *display.Canvas, led *display.MemoryLED, buttons *display.ButtonQueue) Model {
	now := time.Now()
	return Model{
		canvas:  canvas,
		led:     led,
		buttons: buttons,
		start:   now,
		now:     now,
		keys:    defaultKeyMap(),
		help:    help.New(),
		width:   GetTerminalWidth(),
	}
}

func frame() tea.Cmd {
	return tea.Tick(FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Init starts the repaint ticker.
func (m Model) Init() tea.Cmd {
	return frame()
}

// Update handles key presses and timers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}
		return m, nil

	case frameMsg:
		m.now = time.Time(msg)
		return m, frame()

	case clicksDoneMsg:
		if msg.seq != m.clickSeq || m.clicks == 0 {
			return m, nil
		}
		n := m.clicks
		m.clicks = 0
		m.post(display.Click(n))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Click):
			if m.clicks < 255 {
				m.clicks++
			}
			m.clickSeq++
			seq := m.clickSeq
			return m, tea.Tick(ClickWindow, func(time.Time) tea.Msg { return clicksDoneMsg{seq: seq} })
		case key.Matches(msg, m.keys.Double):
			m.post(display.Click(2))
		case key.Matches(msg, m.keys.Triple):
			m.post(display.Click(3))
		case key.Matches(msg, m.keys.LongPress):
			m.post(display.LongPress(LongPressSeconds))
		}
	}
	return m, nil
}

func (m *Model) post(ev display.ButtonEvent) {
	switch ev.Type {
	case display.ButtonLongPressed:
		m.last = fmt.Sprintf("held %ds", ev.Seconds)
	default:
		m.last = fmt.Sprintf("%d click(s)", ev.Clicks)
	}
	if !m.buttons.Post(ev) {
		m.dropped++
	}
}

// View renders the header, the screen, the LED and the key help.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(Header{
		Title: version.Product,
		Params: []Param{
			{"Model", version.Model},
			{"Serial", version.Serial},
			{"Version", version.Version},
		},
		Width: m.width,
	}.Render())
	b.WriteString("\n")

	b.WriteString(ScreenStyle.Render(RenderScreen(m.canvas.Render())))
	b.WriteString("\n")

	led := LEDOffStyle.Render(LEDOffMarker)
	if m.led.LitAt(m.now.Sub(m.start)) {
		led = LEDOnStyle.Render(LEDOnMarker)
	}
	status := "LED " + led
	if m.clicks > 0 {
		status += fmt.Sprintf("  pressing x%d", m.clicks)
	} else if m.last != "" {
		status += "  last: " + m.last
	}
	if m.dropped > 0 {
		status += "  " + WarningStyle.Render(fmt.Sprintf("dropped %d", m.dropped))
	}
	b.WriteString(StatusStyle.Render(status))
	b.WriteString("\n\n")

	b.WriteString(StatusStyle.Render(m.help.View(m.keys)))
	b.WriteString("\n")
	return b.String()
}

// RenderScreen turns braille cells into text, reversing inverted runs.
func RenderScreen(rows [][]display.Cell) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		var line, run strings.Builder
		inverted := false
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if inverted {
				line.WriteString(InvertStyle.Render(run.String()))
			} else {
				line.WriteString(run.String())
			}
			run.Reset()
		}
		for _, c := range row {
			if c.Invert != inverted {
				flush()
				inverted = c.Invert
			}
			run.WriteRune(c.R)
		}
		flush()
		lines[i] = line.String()
	}
	return strings.Join(lines, "\n")
}

// Run shows the panel until the user quits or ctx ends.
func Run(ctx context.Context, canvas *display.Canvas, led *display.MemoryLED, buttons *display.ButtonQueue) error {
	p := tea.NewProgram(New(canvas, led, buttons), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("panel: %w", err)
	}
	return nil
}
