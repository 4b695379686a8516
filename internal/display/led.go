package display

import (
	"sync"
	"time"
)

// SlotDuration is the length of one flash pattern slot.
const SlotDuration = 100 * time.Millisecond

// MemoryLED is an LED that only records its mode. The panel simulator and
// the tests read it back.
type MemoryLED struct {
	mu      sync.Mutex
	solid   bool
	on      bool
	pattern uint32
	mask    uint32
	changes int
}

// NewMemoryLED creates an LED that is off.
func NewMemoryLED() *MemoryLED {
	return &MemoryLED{solid: true}
}

func (l *MemoryLED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.solid, l.on = true, on
	l.pattern, l.mask = 0, 0
	l.changes++
	return nil
}

func (l *MemoryLED) Flash(pattern, mask uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.solid = false
	l.pattern, l.mask = pattern, mask
	l.changes++
	return nil
}

// Mode returns the current setting. solid is false while flashing.
func (l *MemoryLED) Mode() (solid, on bool, pattern, mask uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.solid, l.on, l.pattern, l.mask
}

// Changes counts Set and Flash calls.
func (l *MemoryLED) Changes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changes
}

// LitAt reports whether the LED is lit at elapsed time since the pattern
// started.
func (l *MemoryLED) LitAt(elapsed time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.solid {
		return l.on
	}
	slot := int(elapsed/SlotDuration) % SlotsInUse(l.mask)
	return l.pattern&(1<<uint(slot)) != 0
}
