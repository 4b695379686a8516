package uart

import (
	"errors"
	"sync"
	"time"

	"go.bug.st/serial"
)

var errFakeClosed = errors.New("fake port closed")

// FakePort is an in-memory Port. Bytes passed to Feed come back from Read,
// and bytes written are collected for inspection. With Loopback set,
// writes are fed back to the read side as well.
type FakePort struct {
	Loopback bool

	mu          sync.Mutex
	cond        *sync.Cond
	rx          []byte
	tx          []byte
	mode        serial.Mode
	readTimeout time.Duration
	held        bool
	failWrites  bool
	closed      bool
}

// NewFakePort creates an open fake port.
func NewFakePort() *FakePort {
	p := &FakePort{readTimeout: ReadTimeout}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed queues bytes for Read.
func (p *FakePort) Feed(data []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, data...)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Read returns queued bytes, waiting up to the read timeout.
func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(p.readTimeout)
	for len(p.rx) == 0 && !p.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		t := time.AfterFunc(remaining, p.cond.Broadcast)
		p.cond.Wait()
		t.Stop()
	}
	if p.closed {
		return 0, errFakeClosed
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

// Write blocks while the port is held, then records b.
func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	for p.held && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		p.mu.Unlock()
		return 0, errFakeClosed
	}
	if p.failWrites {
		p.mu.Unlock()
		return 0, errors.New("fake write failure")
	}
	p.tx = append(p.tx, b...)
	if p.Loopback {
		p.rx = append(p.rx, b...)
	}
	p.mu.Unlock()
	p.cond.Broadcast()
	return len(b), nil
}

// Hold makes writes block until Release, as a stalled line would.
func (p *FakePort) Hold() {
	p.mu.Lock()
	p.held = true
	p.mu.Unlock()
}

// Release lets held writes complete.
func (p *FakePort) Release() {
	p.mu.Lock()
	p.held = false
	p.mu.Unlock()
	p.cond.Broadcast()
}

// SetFailWrites makes every write fail.
func (p *FakePort) SetFailWrites(fail bool) {
	p.mu.Lock()
	p.failWrites = fail
	p.mu.Unlock()
}

// Written returns a copy of everything written so far.
func (p *FakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx...)
}

// WaitWritten blocks until at least n bytes were written or the timeout
// passes, and returns what was written.
func (p *FakePort) WaitWritten(n int, timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if out := p.Written(); len(out) >= n {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	return p.Written()
}

// Mode returns the last mode set on the port.
func (p *FakePort) Mode() serial.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode implements Port.
func (p *FakePort) SetMode(mode *serial.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errFakeClosed
	}
	p.mode = *mode
	return nil
}

// SetReadTimeout implements Port.
func (p *FakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

// Close implements Port and wakes blocked readers and writers.
func (p *FakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return nil
}
