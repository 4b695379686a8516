package panel

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/serial2ip/internal/discovery"
	"github.com/muurk/serial2ip/internal/display"
)

func newTestModel() (Model, *display.ButtonQueue, *display.Canvas, *display.MemoryLED) {
	canvas := display.NewCanvas()
	led := display.NewMemoryLED()
	q := display.NewButtonQueue()
	return New(canvas, led, q), q, canvas, led
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update() returned %T, want Model", next)
	}
	return nm, cmd
}

func TestUpdate_ClickRun(t *testing.T) {
	m, q, _, _ := newTestModel()

	m, cmd := update(t, m, space)
	if cmd == nil {
		t.Fatal("space returned no timer command")
	}
	m, _ = update(t, m, space)
	if m.clicks != 2 {
		t.Fatalf("clicks = %d, want 2", m.clicks)
	}

	// The first press's timer is stale.
	m, _ = update(t, m, clicksDoneMsg{seq: 1})
	if _, ok := q.TryNext(); ok {
		t.Fatal("stale timer posted an event")
	}

	m, _ = update(t, m, clicksDoneMsg{seq: m.clickSeq})
	ev, ok := q.TryNext()
	if !ok {
		t.Fatal("no event posted after the click window")
	}
	if ev != display.Click(2) {
		t.Errorf("posted %+v, want Click(2)", ev)
	}
	if m.clicks != 0 {
		t.Errorf("clicks = %d after posting, want 0", m.clicks)
	}
}

func TestUpdate_DirectKeys(t *testing.T) {
	tests := []struct {
		key  string
		want display.ButtonEvent
	}{
		{"2", display.Click(2)},
		{"3", display.Click(3)},
		{"l", display.LongPress(LongPressSeconds)},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, q, _, _ := newTestModel()
			_, _ = update(t, m, runes(tt.key))
			ev, ok := q.TryNext()
			if !ok {
				t.Fatalf("key %q posted nothing", tt.key)
			}
			if ev != tt.want {
				t.Errorf("key %q posted %+v, want %+v", tt.key, ev, tt.want)
			}
		})
	}
}

func TestUpdate_DroppedWhenQueueFull(t *testing.T) {
	m, _, _, _ := newTestModel()
	for i := 0; i < display.ButtonQueueSize+3; i++ {
		m, _ = update(t, m, runes("2"))
	}
	if m.dropped != 3 {
		t.Errorf("dropped = %d, want 3", m.dropped)
	}
	if !strings.Contains(m.View(), "dropped 3") {
		t.Error("View() does not report dropped events")
	}
}

func TestUpdate_Quit(t *testing.T) {
	m, _, _, _ := newTestModel()
	_, cmd := update(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestView_ScreenAndLED(t *testing.T) {
	m, _, canvas, led := newTestModel()
	canvas.DrawText(0, 0, "HELLO", display.FontSmall, false)
	if err := canvas.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	_ = led.Set(true)
	m, _ = update(t, m, frameMsg(m.start.Add(time.Second)))
	view := m.View()
	if !strings.Contains(view, "HELLO") {
		t.Error("View() does not contain the display text")
	}
	if !strings.Contains(view, LEDOnMarker) {
		t.Error("View() does not show a lit LED")
	}

	_ = led.Set(false)
	if view := m.View(); !strings.Contains(view, LEDOffMarker) {
		t.Error("View() does not show a dark LED")
	}
}

func TestRenderScreen(t *testing.T) {
	rows := [][]display.Cell{
		{{R: 'a'}, {R: 'b', Invert: true}, {R: 'c', Invert: true}, {R: 'd'}},
	}
	got := RenderScreen(rows)
	if !strings.Contains(got, "a") || !strings.Contains(got, "bc") || !strings.Contains(got, "d") {
		t.Errorf("RenderScreen() = %q, want a, bc and d", got)
	}
}

func TestRenderDevices(t *testing.T) {
	if got := RenderDevices(nil); !strings.Contains(got, "No bridges found") {
		t.Errorf("RenderDevices(nil) = %q", got)
	}

	got := RenderDevices([]*discovery.Device{{
		Instance: "bench",
		IP:       "192.168.1.20",
		Port:     5678,
		Serial:   "SN1",
		Metadata: map[string]string{"baud": "9600", "version": "1.0.0"},
	}})
	for _, want := range []string{"Found 1 bridge(s)", "bench", "192.168.1.20:5678", "SN1", "9600", "1.0.0"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderDevices() missing %q in %q", want, got)
		}
	}
}

func TestHeader_Render(t *testing.T) {
	got := Header{Title: "front panel", Params: []Param{{"Serial", "SN1"}}, Width: 60}.Render()
	if !strings.Contains(got, "FRONT PANEL") || !strings.Contains(got, "SN1") {
		t.Errorf("Render() = %q", got)
	}
}
