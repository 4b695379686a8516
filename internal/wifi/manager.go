package wifi

import (
	"context"
	"sync"
	"time"

	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/nvs"
	"github.com/muurk/serial2ip/internal/syserr"
	"go.uber.org/zap"
)

// Config holds the timing of the connection manager.
type Config struct {
	// AutoConnect is the initial auto-connect preference.
	AutoConnect bool

	TickInterval      time.Duration // auto-connect loop period
	ShortInterval     time.Duration // next scan while retrying a target
	LongInterval      time.Duration // next scan after a target was given up
	DisconnectBackoff time.Duration // next scan after losing a link
	InitialDelay      time.Duration // first scan after Start
	ScanTimeout       time.Duration
	ConnectTimeout    time.Duration
	MaxAttempts       uint8
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		AutoConnect:       true,
		TickInterval:      500 * time.Millisecond,
		ShortInterval:     10 * time.Second,
		LongInterval:      30 * time.Second,
		DisconnectBackoff: 5 * time.Second,
		InitialDelay:      time.Second,
		ScanTimeout:       10 * time.Second,
		ConnectTimeout:    15 * time.Second,
		MaxAttempts:       3,
	}
}

// Manager is the station connection manager. It owns the credential store,
// the scan coordinator and the auto-connect loop, and publishes Connected,
// Disconnected and GotIP events.
type Manager struct {
	cfg     Config
	radio   Radio
	store   *Store
	scanner *Scanner
	events  *dispatcher
	log     *zap.Logger
	now     func() time.Time

	// connectMu admits a single connect attempt at a time.
	connectMu sync.Mutex

	mu          sync.Mutex
	up          bool
	status      ConnectionStatus
	autoConnect bool
	suspended   bool
	oneShot     bool
	nextScan    time.Time
	retry       retryState
	pending     chan bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager over radio, persisting records through h.
func NewManager(radio Radio, h *nvs.Handle, cfg Config) *Manager {
	log := logging.Component("wifi")
	return &Manager{
		cfg:         cfg,
		radio:       radio,
		store:       NewStore(h, log),
		scanner:     NewScanner(radio, log),
		events:      newDispatcher(32),
		log:         log,
		now:         time.Now,
		autoConnect: cfg.AutoConnect,
	}
}

// Start loads the records, brings the radio up and starts the auto-connect
// loop.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.open(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

func (m *Manager) open() error {
	m.mu.Lock()
	if m.up {
		m.mu.Unlock()
		return syserr.InvalidState("wifi.start", "already started")
	}
	if err := m.store.Load(); err != nil {
		// An unreadable store starts empty.
		m.log.Warn("Failed to load records", zap.Error(err))
	}
	m.mu.Unlock()

	m.events.start()
	if err := m.radio.Start(m.handleRadioEvent); err != nil {
		m.events.stop()
		return syserr.IO("wifi.start", "failed to start radio", err)
	}

	m.mu.Lock()
	m.up = true
	m.nextScan = m.now().Add(m.cfg.InitialDelay)
	m.retry = retryState{useShortInterval: true}
	m.mu.Unlock()
	m.scanner.SetRadioUp(true)

	m.log.Info("Station started",
		zap.Int("records", len(m.Records())),
		zap.Bool("auto_connect", m.cfg.AutoConnect))
	return nil
}

// Stop ends the auto-connect loop and stops the radio. A stopped Manager
// cannot be started again.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.up {
		m.mu.Unlock()
		return nil
	}
	m.up = false
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.scanner.SetRadioUp(false)
	err := m.radio.Stop()
	m.events.stop()
	if err != nil {
		return syserr.IO("wifi.stop", "failed to stop radio", err)
	}
	return nil
}

// Subscribe registers h for station events. Handlers run one at a time on
// the dispatcher goroutine. The returned function unsubscribes.
func (m *Manager) Subscribe(h func(Event)) func() {
	return m.events.subscribe(h)
}

// Scanner returns the scan coordinator shared by all users of the radio.
func (m *Manager) Scanner() *Scanner {
	return m.scanner
}

// GetStatus returns a snapshot of the link. Address fields are zero unless
// connected.
func (m *Manager) GetStatus() ConnectionStatus {
	m.mu.Lock()
	st := m.status
	m.mu.Unlock()

	if st.State != StateConnected {
		st.IP, st.Netmask, st.Gateway, st.DNS1, st.DNS2 = 0, 0, 0, 0, 0
		st.ConnectedSince = time.Time{}
		return st
	}
	if rssi, ok := m.radio.Signal(); ok {
		st.RSSI = rssi
	}
	return st
}

// Records returns the valid credential records in slot order.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Records()
}

// AddOrUpdate stores credentials.
func (m *Manager) AddOrUpdate(ssid, password string, everSuccess bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.AddOrUpdate(ssid, password, everSuccess)
}

// AddRecord stores credentials that have not been proven yet.
func (m *Manager) AddRecord(ssid, password string) error {
	return m.AddOrUpdate(ssid, password, false)
}

// DeleteRecord removes the record for ssid.
func (m *Manager) DeleteRecord(ssid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retry.target == ssid {
		m.retry = retryState{useShortInterval: true}
	}
	return m.store.Delete(ssid)
}

// ResetNetworkStatus makes ssid eligible for auto-connect again.
func (m *Manager) ResetNetworkStatus(ssid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.ResetNetworkStatus(ssid); err != nil {
		return err
	}
	if m.retry.target == ssid {
		m.retry = retryState{useShortInterval: true}
	}
	return nil
}

// SetAutoConnect sets the user's auto-connect preference.
func (m *Manager) SetAutoConnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoConnect = enabled
	m.log.Debug("Auto connect preference changed", zap.Bool("enabled", enabled))
}

// SuspendAutoConnect holds auto-connect off while an interactive session
// runs, without touching the user's preference.
func (m *Manager) SuspendAutoConnect(suspend bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = suspend
}

// AutoConnect reports whether auto-connect is currently in effect.
func (m *Manager) AutoConnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoConnect && !m.suspended
}

// TryAutoConnectOnce asks the loop for one scan-and-connect round on its
// next tick, regardless of the auto-connect setting and deadline.
func (m *Manager) TryAutoConnectOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oneShot = true
}

// Connect associates with ssid and waits for the outcome. Only one connect
// runs at a time. On success the credentials are stored as proven.
func (m *Manager) Connect(ctx context.Context, ssid, password string) error {
	if err := validateCredentials(ssid, password); err != nil {
		return err
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if !m.up {
		m.mu.Unlock()
		return syserr.InvalidState("wifi.connect", "station not started")
	}
	wasLinked := m.status.State != StateDisconnected
	m.store.setUserDisconnected(ssid, false)
	m.mu.Unlock()

	if wasLinked {
		if err := m.radio.Disconnect(); err != nil {
			m.log.Warn("Failed to drop current link", zap.Error(err))
		}
		m.waitState(StateDisconnected, 2*time.Second)
		m.markDisconnected()
	}

	result := make(chan bool, 1)
	m.mu.Lock()
	m.pending = result
	m.status.State = StateConnecting
	m.status.SSID = ssid
	m.mu.Unlock()

	m.log.Info("Connecting", zap.String("ssid", ssid))
	if err := m.radio.Connect(ssid, password); err != nil {
		m.clearPending(result)
		m.markDisconnected()
		return syserr.IO("wifi.connect", "driver rejected connect to "+ssid, err)
	}

	timer := time.NewTimer(m.cfg.ConnectTimeout)
	defer timer.Stop()

	var ok bool
	select {
	case ok = <-result:
	case <-timer.C:
		m.abortConnect(result)
		return syserr.Timeout("wifi.connect", "no answer from %s within %s", ssid, m.cfg.ConnectTimeout)
	case <-ctx.Done():
		m.abortConnect(result)
		return syserr.Wrap(syserr.ErrTypeTimeout, "wifi.connect", "connect cancelled", ctx.Err())
	}

	if !ok {
		m.log.Warn("Connect failed", zap.String("ssid", ssid))
		return syserr.New(syserr.ErrTypeIO, "wifi.connect", "failed to connect to "+ssid)
	}

	m.mu.Lock()
	if err := m.store.AddOrUpdate(ssid, password, true); err != nil {
		m.log.Warn("Failed to store credentials", zap.String("ssid", ssid), zap.Error(err))
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) abortConnect(result chan bool) {
	m.clearPending(result)
	if err := m.radio.Disconnect(); err != nil {
		m.log.Warn("Failed to abort connect", zap.Error(err))
	}
	m.markDisconnected()
}

func (m *Manager) clearPending(result chan bool) {
	m.mu.Lock()
	if m.pending == result {
		m.pending = nil
	}
	m.mu.Unlock()
}

// markDisconnected forces the local state to Disconnected and publishes the
// transition if there was one.
func (m *Manager) markDisconnected() {
	m.mu.Lock()
	prev := m.status
	m.resetStatusLocked()
	m.mu.Unlock()

	if prev.State != StateDisconnected {
		m.events.publish(Event{Type: EventDisconnected, SSID: prev.SSID})
	}
}

func (m *Manager) resetStatusLocked() {
	m.status = ConnectionStatus{State: StateDisconnected}
}

func (m *Manager) waitState(want State, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		st := m.status.State
		m.mu.Unlock()
		if st == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Disconnect drops the link and excludes its network from auto-connect until
// the user connects to it again.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if !m.up {
		m.mu.Unlock()
		return syserr.InvalidState("wifi.disconnect", "station not started")
	}
	prev := m.status
	bound := ""
	if prev.State != StateDisconnected {
		bound = prev.SSID
	}
	for _, r := range m.store.Records() {
		m.store.setUserDisconnected(r.SSID, bound != "" && r.SSID == bound)
	}
	m.resetStatusLocked()
	m.mu.Unlock()

	if prev.State != StateDisconnected {
		m.events.publish(Event{Type: EventDisconnected, SSID: prev.SSID})
	}

	if err := m.radio.Disconnect(); err != nil {
		return syserr.IO("wifi.disconnect", "driver failed to disconnect", err)
	}
	m.log.Info("Disconnected by user", zap.String("ssid", bound))
	return nil
}

func (m *Manager) handleRadioEvent(ev RadioEvent) {
	switch ev.Type {
	case RadioScanDone:
		m.scanner.handleScanDone(ev.ScanOK)

	case RadioConnected:
		m.mu.Lock()
		m.status.State = StateConnected
		m.status.SSID = ev.SSID
		m.status.BSSID = ev.BSSID
		m.status.RSSI = ev.RSSI
		m.status.ConnectedSince = m.now()
		m.retry = retryState{useShortInterval: true}
		if m.store.setEverSuccess(ev.SSID, true) {
			if err := m.store.Save(); err != nil {
				m.log.Warn("Failed to save records", zap.Error(err))
			}
		}
		pending := m.pending
		m.pending = nil
		m.mu.Unlock()

		if pending != nil {
			pending <- true
		}
		m.log.Info("Connected",
			zap.String("ssid", ev.SSID),
			zap.String("bssid", FormatBSSID(ev.BSSID)),
			zap.Int8("rssi", ev.RSSI))
		m.events.publish(Event{Type: EventConnected, SSID: ev.SSID, BSSID: ev.BSSID, RSSI: ev.RSSI})

	case RadioDisconnected:
		m.mu.Lock()
		if m.status.State == StateConnecting && ev.SSID != "" && ev.SSID != m.status.SSID {
			// Late event for the link dropped before this attempt.
			m.mu.Unlock()
			m.log.Debug("Ignoring stale disconnect", zap.String("ssid", ev.SSID))
			return
		}
		prev := m.status
		m.resetStatusLocked()
		m.nextScan = m.now().Add(m.cfg.DisconnectBackoff)
		pending := m.pending
		m.pending = nil
		m.mu.Unlock()

		if pending != nil {
			pending <- false
		}
		if prev.State != StateDisconnected {
			ssid := prev.SSID
			if ssid == "" {
				ssid = ev.SSID
			}
			m.log.Info("Disconnected", zap.String("ssid", ssid), zap.String("reason", ev.Reason))
			m.events.publish(Event{Type: EventDisconnected, SSID: ssid})
		}

	case RadioGotIP:
		m.mu.Lock()
		if m.status.State != StateConnected {
			m.mu.Unlock()
			return
		}
		m.status.IP = ev.IP
		m.status.Netmask = ev.Netmask
		m.status.Gateway = ev.Gateway
		m.status.DNS1 = ev.DNS1
		m.status.DNS2 = ev.DNS2
		ssid := m.status.SSID
		m.mu.Unlock()

		m.log.Info("Got IP", zap.String("ip", FormatIPv4(ev.IP)), zap.String("gateway", FormatIPv4(ev.Gateway)))
		m.events.publish(Event{Type: EventGotIP, SSID: ssid, IP: ev.IP, Netmask: ev.Netmask, Gateway: ev.Gateway})
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.step(ctx)
		}
	}
}

// step runs one auto-connect decision.
func (m *Manager) step(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	enabled := m.autoConnect && !m.suspended
	due := m.oneShot || (enabled && m.status.State == StateDisconnected && now.After(m.nextScan))
	if !due || !m.up {
		m.mu.Unlock()
		return
	}
	oneShot := m.oneShot
	m.oneShot = false
	m.mu.Unlock()

	m.log.Debug("Background scan", zap.Bool("one_shot", oneShot))

	results, err := m.scanner.ScanBlocking(ctx, m.cfg.ScanTimeout)
	if err != nil {
		m.log.Warn("Background scan failed", zap.Error(err))
		m.scheduleNext()
		return
	}

	m.mu.Lock()
	best, ok := selectBest(results, m.store.Records())
	if !ok {
		m.mu.Unlock()
		m.log.Debug("No suitable network found", zap.Int("seen", len(results)))
		m.scheduleNext()
		return
	}
	ssid := best.record.SSID
	if m.retry.target != ssid {
		m.retry = retryState{target: ssid, useShortInterval: true}
	}
	m.retry.attempts++
	attempt := m.retry.attempts
	password := best.record.Password
	m.mu.Unlock()

	m.log.Info("Auto connecting",
		zap.String("ssid", ssid),
		zap.Uint8("attempt", attempt),
		zap.Uint8("max_attempts", m.cfg.MaxAttempts))

	err = m.Connect(ctx, ssid, password)

	m.mu.Lock()
	switch {
	case err == nil:
		m.retry = retryState{useShortInterval: true}
	case m.retry.target == ssid && m.retry.attempts >= m.cfg.MaxAttempts:
		m.log.Warn("Giving up on network", zap.String("ssid", ssid), zap.Uint8("attempts", m.retry.attempts))
		if m.store.setEverSuccess(ssid, false) {
			if err := m.store.Save(); err != nil {
				m.log.Warn("Failed to save records", zap.Error(err))
			}
		}
		// The target is kept so the next rounds for it stay on the long
		// interval.
		m.retry = retryState{target: ssid, useShortInterval: false}
	}
	m.mu.Unlock()

	m.scheduleNext()
}

func (m *Manager) scheduleNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextScan = m.now().Add(m.intervalLocked())
}

func (m *Manager) intervalLocked() time.Duration {
	if m.retry.useShortInterval {
		return m.cfg.ShortInterval
	}
	return m.cfg.LongInterval
}
