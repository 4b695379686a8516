package wifi

import (
	"fmt"
	"sync"
)

// EventType identifies a station event published by the Manager.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventGotIP
)

// String returns a human-readable name for the event type
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventGotIP:
		return "got_ip"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is published to subscribers on station state changes. Address fields
// are only set for EventGotIP.
type Event struct {
	Type    EventType `json:"-"`
	Name    string    `json:"type"`
	SSID    string    `json:"ssid"`
	BSSID   [6]byte   `json:"-"`
	RSSI    int8      `json:"rssi,omitempty"`
	IP      uint32    `json:"-"`
	Netmask uint32    `json:"-"`
	Gateway uint32    `json:"-"`
}

// dispatcher fans events out to subscribers from a single goroutine, so
// handlers never run concurrently with each other.
type dispatcher struct {
	queue chan Event
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	handlers map[int]func(Event)
	nextID   int
}

func newDispatcher(size int) *dispatcher {
	return &dispatcher{
		queue:    make(chan Event, size),
		done:     make(chan struct{}),
		handlers: make(map[int]func(Event)),
	}
}

func (d *dispatcher) start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case ev := <-d.queue:
				d.deliver(ev)
			case <-d.done:
				// Flush what is already queued.
				for {
					select {
					case ev := <-d.queue:
						d.deliver(ev)
					default:
						return
					}
				}
			}
		}
	}()
}

func (d *dispatcher) stop() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	d.wg.Wait()
}

func (d *dispatcher) deliver(ev Event) {
	d.mu.Lock()
	handlers := make([]func(Event), 0, len(d.handlers))
	for id := 0; id < d.nextID; id++ {
		if h, ok := d.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (d *dispatcher) publish(ev Event) {
	ev.Name = ev.Type.String()
	select {
	case d.queue <- ev:
	case <-d.done:
	}
}

func (d *dispatcher) subscribe(h func(Event)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}
}
