package wifi

import (
	"errors"
	"net"
	"sync"
)

// SimNetwork is an access point visible to a SimRadio.
type SimNetwork struct {
	SSID     string  `yaml:"ssid"`
	Password string  `yaml:"password"`
	RSSI     int8    `yaml:"rssi"`
	BSSID    [6]byte `yaml:"-"`
}

// SimRadio is an in-process Radio with a configurable set of access points.
// It answers scans and connects immediately and delivers events in order
// from its own goroutine. It backs the "sim" driver and the tests.
type SimRadio struct {
	mu           sync.Mutex
	networks     []SimNetwork
	handler      func(RadioEvent)
	queue        chan RadioEvent
	done         chan struct{}
	wg           sync.WaitGroup
	started      bool
	linked       *SimNetwork
	scanFails    bool
	unresponsive bool
	scans        int
	attempts     map[string]int
	lease        net.IP
	gateway      net.IP
}

// NewSimRadio creates a simulated radio seeing networks.
func NewSimRadio(networks ...SimNetwork) *SimRadio {
	return &SimRadio{
		networks: append([]SimNetwork(nil), networks...),
		attempts: make(map[string]int),
		lease:    net.IPv4(192, 168, 4, 2),
		gateway:  net.IPv4(192, 168, 4, 1),
	}
}

// Start implements Radio.
func (r *SimRadio) Start(handler func(RadioEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("sim radio already started")
	}
	r.handler = handler
	r.queue = make(chan RadioEvent, 64)
	r.done = make(chan struct{})
	r.started = true

	r.wg.Add(1)
	go r.deliver(r.queue, r.done)
	return nil
}

func (r *SimRadio) deliver(queue <-chan RadioEvent, done <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case ev := <-queue:
			r.handler(ev)
		case <-done:
			return
		}
	}
}

// Stop implements Radio.
func (r *SimRadio) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.linked = nil
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

// emitLocked queues an event. r.mu must be held.
func (r *SimRadio) emitLocked(ev RadioEvent) {
	if !r.started {
		return
	}
	select {
	case r.queue <- ev:
	default:
	}
}

// Scan implements Radio.
func (r *SimRadio) Scan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return errors.New("sim radio not started")
	}
	r.scans++
	r.emitLocked(RadioEvent{Type: RadioScanDone, ScanOK: !r.scanFails})
	return nil
}

// ScanResults implements Radio.
func (r *SimRadio) ScanResults() ([]ScanEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScanEntry, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, ScanEntry{SSID: n.SSID, BSSID: n.BSSID, RSSI: n.RSSI})
	}
	return out, nil
}

// Connect implements Radio.
func (r *SimRadio) Connect(ssid, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return errors.New("sim radio not started")
	}
	r.attempts[ssid]++
	if r.unresponsive {
		return nil
	}

	for i := range r.networks {
		n := &r.networks[i]
		if n.SSID != ssid {
			continue
		}
		if n.Password != password {
			r.emitLocked(RadioEvent{Type: RadioDisconnected, SSID: ssid, Reason: "auth failed"})
			return nil
		}
		linked := *n
		r.linked = &linked
		r.emitLocked(RadioEvent{Type: RadioConnected, SSID: ssid, BSSID: n.BSSID, RSSI: n.RSSI})
		r.emitLocked(RadioEvent{
			Type:    RadioGotIP,
			IP:      PackIPv4(r.lease),
			Netmask: PackIPv4(net.IPv4(255, 255, 255, 0)),
			Gateway: PackIPv4(r.gateway),
			DNS1:    PackIPv4(r.gateway),
		})
		return nil
	}

	r.emitLocked(RadioEvent{Type: RadioDisconnected, SSID: ssid, Reason: "no ap found"})
	return nil
}

// Disconnect implements Radio.
func (r *SimRadio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linked == nil {
		return nil
	}
	ssid := r.linked.SSID
	r.linked = nil
	r.emitLocked(RadioEvent{Type: RadioDisconnected, SSID: ssid, Reason: "local"})
	return nil
}

// Signal implements Radio.
func (r *SimRadio) Signal() (int8, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linked == nil {
		return 0, false
	}
	return r.linked.RSSI, true
}

// SetNetworks replaces the visible access points.
func (r *SimRadio) SetNetworks(networks ...SimNetwork) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks = append([]SimNetwork(nil), networks...)
}

// SetScanFails makes subsequent scans report failure.
func (r *SimRadio) SetScanFails(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanFails = fail
}

// SetUnresponsive makes subsequent connects never answer.
func (r *SimRadio) SetUnresponsive(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresponsive = v
}

// DropLink simulates the access point going away.
func (r *SimRadio) DropLink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linked == nil {
		return
	}
	ssid := r.linked.SSID
	r.linked = nil
	r.emitLocked(RadioEvent{Type: RadioDisconnected, SSID: ssid, Reason: "beacon timeout"})
}

// Scans returns how many scans were started.
func (r *SimRadio) Scans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

// ConnectAttempts returns how many connects were requested for ssid.
func (r *SimRadio) ConnectAttempts(ssid string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[ssid]
}
