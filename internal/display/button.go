package display

import "fmt"

// ButtonEventType is the kind of a button event.
type ButtonEventType int

const (
	ButtonPressed ButtonEventType = iota + 1
	ButtonReleased
	ButtonLongPressed
	ButtonClicks // a run of clicks ended
)

func (t ButtonEventType) String() string {
	switch t {
	case ButtonPressed:
		return "pressed"
	case ButtonReleased:
		return "released"
	case ButtonLongPressed:
		return "long_pressed"
	case ButtonClicks:
		return "continue_click_stopped"
	default:
		return fmt.Sprintf("ButtonEventType(%d)", int(t))
	}
}

// ButtonEvent is produced by the GPIO layer. Seconds is set for
// ButtonLongPressed (1..30) and Clicks for ButtonClicks (1..255).
type ButtonEvent struct {
	Type    ButtonEventType
	Seconds uint16
	Clicks  uint8
}

// Click returns a ButtonClicks event for n clicks.
func Click(n uint8) ButtonEvent {
	return ButtonEvent{Type: ButtonClicks, Clicks: n}
}

// LongPress returns a ButtonLongPressed event held for s seconds.
func LongPress(s uint16) ButtonEvent {
	return ButtonEvent{Type: ButtonLongPressed, Seconds: s}
}

// ButtonQueueSize is the capacity of the button queue.
const ButtonQueueSize = 8

// ButtonQueue carries events from one producer to the display loop.
type ButtonQueue struct {
	ch chan ButtonEvent
}

// NewButtonQueue creates an empty queue.
func NewButtonQueue() *ButtonQueue {
	return &ButtonQueue{ch: make(chan ButtonEvent, ButtonQueueSize)}
}

// Post enqueues ev and reports false when the queue was full and the event
// was dropped.
func (q *ButtonQueue) Post(ev ButtonEvent) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

// TryNext returns the oldest queued event without blocking.
func (q *ButtonQueue) TryNext() (ButtonEvent, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return ButtonEvent{}, false
	}
}

// drain returns every queued event without blocking.
func (q *ButtonQueue) drain() []ButtonEvent {
	var out []ButtonEvent
	for {
		ev, ok := q.TryNext()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}
