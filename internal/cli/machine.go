package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/syserr"
	"github.com/muurk/serial2ip/internal/uart"
	"github.com/muurk/serial2ip/internal/wifi"
	"go.uber.org/zap"
)

const (
	// ActivityTimeout returns the console to the main menu when idle.
	ActivityTimeout = 60 * time.Second
	// ScanTimeout bounds the scan of the Scan & Connect screen.
	ScanTimeout = 10 * time.Second
	// MaxScanResults is the number of networks listed after a scan.
	MaxScanResults = 32
)

// Station is the part of the Wi-Fi manager the console drives.
type Station interface {
	GetStatus() wifi.ConnectionStatus
	Records() []wifi.Record
	Scanner() *wifi.Scanner
	Connect(ctx context.Context, ssid, password string) error
	Disconnect() error
	AddRecord(ssid, password string) error
	DeleteRecord(ssid string) error
	TryAutoConnectOnce()
	SuspendAutoConnect(suspend bool)
}

// Bridge is the part of the UART bridge the console drives.
type Bridge interface {
	GetStatus() bridge.Status
	SetBaudrate(baud uint32) error
}

// Options tune a Machine.
type Options struct {
	Allow1500k bool
	// Timeout is the inactivity timeout, ActivityTimeout when zero.
	Timeout time.Duration
	// ScanTimeout bounds Scan & Connect, ScanTimeout when zero.
	ScanTimeout time.Duration
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

type state int

const (
	stateMain state = iota
	stateStatus
	stateWiFi
	stateUART
	stateAbout
)

type subState int

const (
	subNone subState = iota
	subAutoConnect
	subScanConnect
	subDisconnect
	subListNetworks
	subDeleteNetwork
	subAddNetwork
)

type step int

const (
	stepNone step = iota
	stepChooseNetwork
	stepInputPassword
	stepConfirmDisconnect
	stepDeleteNetwork
	stepAddSSID
	stepAddPassword
)

// Machine is the console menu state machine. Each Input is one line; an
// empty line is a bare Enter.
type Machine struct {
	out     io.Writer
	station Station
	bridge  Bridge
	rates   []uint32
	timeout time.Duration
	scanTO  time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu      sync.Mutex
	state   state
	sub     subState
	step    step
	active  bool
	timer   *time.Timer
	gen     uint64
	closed  bool
	scan    []wifi.ScanEntry
	scanOK  bool
	done    bool
	records []wifi.Record
	index   int
	ssid    string
}

// New creates a machine writing its screens to out.
func New(out io.Writer, st Station, br Bridge, opts Options) (*Machine, error) {
	if out == nil || st == nil || br == nil {
		return nil, syserr.InvalidArgument("cli.new", "output, station and bridge are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = ActivityTimeout
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = ScanTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		out:     out,
		station: st,
		bridge:  br,
		rates:   uart.Baudrates(opts.Allow1500k),
		timeout: opts.Timeout,
		scanTO:  opts.ScanTimeout,
		now:     opts.Now,
		log:     logging.Component("cli"),
	}, nil
}

// Active reports whether a menu other than Main is open. While active,
// auto-connect is suspended.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Input dispatches one line of user input.
func (m *Machine) Input(ctx context.Context, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	raw := strings.TrimRight(line, "\r\n")
	line = strings.TrimSpace(raw)
	switch m.state {
	case stateMain:
		m.handleMain(line)
	case stateStatus, stateAbout:
		m.returnToMain()
	case stateWiFi:
		switch m.sub {
		case subAutoConnect, subListNetworks:
			m.backToWiFi()
		case subScanConnect:
			m.handleScanConnect(ctx, raw)
		case subDisconnect:
			m.handleDisconnect(line)
		case subDeleteNetwork:
			m.handleDelete(line)
		case subAddNetwork:
			m.handleAdd(raw)
		default:
			m.handleWiFi(ctx, line)
		}
	case stateUART:
		m.handleUART(line)
	}

	m.setActiveLocked(m.state != stateMain)
}

// Reset returns to the main menu without printing.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// Close stops the inactivity timer and gives auto-connect back.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.closed = true
}

func (m *Machine) resetLocked() {
	m.state = stateMain
	m.sub = subNone
	m.step = stepNone
	m.scan = nil
	m.records = nil
	m.setActiveLocked(false)
}

func (m *Machine) setActiveLocked(active bool) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	if active {
		gen := m.gen
		m.timer = time.AfterFunc(m.timeout, func() { m.onTimeout(gen) })
	}

	if active == m.active {
		return
	}
	m.active = active
	m.station.SuspendAutoConnect(active)
	m.log.Debug("Console activity changed", zap.Bool("active", active))
}

// onTimeout fires gen's timer. A timer replaced by later input is stale.
func (m *Machine) onTimeout(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || !m.active || m.closed {
		return
	}
	m.log.Info("Console inactive, returning to main menu")
	m.resetLocked()
	m.showMain()
}

func (m *Machine) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

func (m *Machine) footer() {
	m.printf("--------\n")
	m.printf("Input [Enter] to return\n")
}

func (m *Machine) exitFooter() {
	m.printf("--------\n")
	m.printf("0. Exit\n")
	m.printf("--------\n")
}

func (m *Machine) invalid(line string) {
	m.printf("***Invalid input: %s\n", line)
}

// parseIndex parses a menu index. Malformed input reports ok=false.
func parseIndex(line string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (m *Machine) returnToMain() {
	m.state = stateMain
	m.sub = subNone
	m.step = stepNone
	m.showMain()
}

func (m *Machine) backToWiFi() {
	m.sub = subNone
	m.step = stepNone
	m.showWiFi()
}

func (m *Machine) handleMain(line string) {
	if line == "" {
		m.showMain()
		return
	}
	switch line {
	case "1":
		m.state = stateStatus
		m.showStatus()
	case "2":
		m.state = stateWiFi
		m.sub = subNone
		m.showWiFi()
	case "3":
		m.state = stateUART
		m.showUART()
	case "4":
		m.state = stateAbout
		m.showAbout()
	default:
		m.invalid(line)
		m.showMain()
	}
}

func (m *Machine) handleWiFi(ctx context.Context, line string) {
	if line == "" {
		m.showWiFi()
		return
	}
	switch line {
	case "0":
		m.returnToMain()
	case "1":
		m.sub = subAutoConnect
		m.autoConnectOnce()
	case "2":
		m.sub = subScanConnect
		m.startScanConnect(ctx)
	case "3":
		m.sub = subDisconnect
		m.startDisconnect()
	case "4":
		m.sub = subListNetworks
		m.showNetworks()
	case "5":
		m.sub = subDeleteNetwork
		m.showDeleteMenu()
	case "6":
		m.sub = subAddNetwork
		m.printf("\n=== Add WiFi Network ===\n")
		m.printf("Please input SSID: ")
		m.step = stepAddSSID
	default:
		m.invalid(line)
		m.showWiFi()
	}
}

func (m *Machine) handleUART(line string) {
	if line == "" {
		m.showUART()
		return
	}
	n, ok := parseIndex(line)
	if !ok || n > len(m.rates) {
		m.invalid(line)
		m.showUART()
		return
	}
	if n == 0 {
		m.returnToMain()
		return
	}

	baud := m.rates[n-1]
	if err := m.bridge.SetBaudrate(baud); err != nil {
		m.log.Warn("Failed to set baudrate", zap.Uint32("baudrate", baud), zap.Error(err))
		m.printf("***Failed to set baudrate: %s\n", syserr.ShortMessage(err))
	} else {
		m.printf("Set baudrate to %d success\n", baud)
	}
	m.returnToMain()
}

func (m *Machine) autoConnectOnce() {
	m.printf("\n=== WiFi Auto Connect ===\n")
	m.station.TryAutoConnectOnce()
	m.printf("Auto connect request submitted, please wait...\n")
	m.footer()
}

func (m *Machine) startScanConnect(ctx context.Context) {
	m.printf("\n=== WiFi Scan & Connect ===\n")
	m.printf("Scanning...\n")

	status := m.station.GetStatus()
	m.scan, m.scanOK, m.done = nil, false, false

	entries, err := m.station.Scanner().ScanBlocking(ctx, m.scanTO)
	switch {
	case err != nil:
		m.log.Warn("Console scan failed", zap.Error(err))
		m.printf("***Scan failed: %s\n", syserr.ShortMessage(err))
	case len(entries) == 0:
		m.printf("Scan success, but no network found\n")
	default:
		if len(entries) > MaxScanResults {
			entries = entries[:MaxScanResults]
		}
		m.scan, m.scanOK = entries, true
		m.step = stepChooseNetwork

		m.printf("Found %d networks:\n", len(entries))
		for i, e := range entries {
			mark := ""
			if status.State == wifi.StateConnected && status.SSID == e.SSID {
				mark = "<"
			}
			m.printf("%d. %-32s RSSI: %d %s\n", i+1, e.SSID, e.RSSI, mark)
		}
		m.exitFooter()
		m.printf("Please input network index: ")
		return
	}
	m.footer()
}

func (m *Machine) handleScanConnect(ctx context.Context, line string) {
	if !m.scanOK || m.done {
		m.backToWiFi()
		return
	}

	switch m.step {
	case stepChooseNetwork:
		if line == "" {
			m.printf("Please input network index: ")
			return
		}
		n, ok := parseIndex(line)
		if !ok || n > len(m.scan) {
			m.invalid(line)
			m.printf("Please input network index: ")
			return
		}
		if n == 0 {
			m.backToWiFi()
			return
		}
		m.index = n - 1
		m.printf("\nSelected network: %s\n", m.scan[m.index].SSID)
		m.printf("Please input password: ")
		m.step = stepInputPassword

	case stepInputPassword:
		if line == "" {
			m.printf("Please input password: ")
			return
		}
		ssid := m.scan[m.index].SSID
		m.printf("\nStart connecting to %s...\n", ssid)
		if err := m.station.Connect(ctx, ssid, line); err != nil {
			m.log.Warn("Console connect failed", zap.String("ssid", ssid), zap.Error(err))
			m.printf("***Failed to connect to %s: %s\n", ssid, syserr.ShortMessage(err))
		} else {
			m.printf("Connected to %s successfully\n", ssid)
		}
		m.footer()
		m.done = true
	}
}

func (m *Machine) startDisconnect() {
	m.printf("\n=== WiFi Disconnect ===\n")
	status := m.station.GetStatus()
	if status.State == wifi.StateConnected {
		m.printf("WiFi is connected to [%s]\n", status.SSID)
		m.printf("--------\n")
		m.printf("Are you sure to disconnect? (Y/n): ")
		m.step = stepConfirmDisconnect
		return
	}
	m.printf("WiFi is not connected\n")
	m.footer()
}

func (m *Machine) handleDisconnect(line string) {
	if m.step == stepConfirmDisconnect {
		if line == "Y" || line == "y" {
			if err := m.station.Disconnect(); err != nil {
				m.printf("***Failed to disconnect WiFi: %s\n", syserr.ShortMessage(err))
			} else {
				m.printf("WiFi disconnected successfully\n")
			}
		} else {
			m.printf("Disconnect cancelled\n")
		}
	}
	m.backToWiFi()
}

func (m *Machine) showDeleteMenu() {
	m.records = m.station.Records()
	m.printf("\n=== Delete WiFi Network ===\n")
	if len(m.records) == 0 {
		m.printf("No WiFi network found\n")
		m.footer()
		return
	}
	m.printf("Found %d networks:\n", len(m.records))
	for i, r := range m.records {
		m.printf("%d. %-32s\n", i+1, r.SSID)
	}
	m.exitFooter()
	m.printf("Please input network index: ")
	m.step = stepDeleteNetwork
}

func (m *Machine) handleDelete(line string) {
	if m.step != stepDeleteNetwork {
		m.backToWiFi()
		return
	}
	if line == "" {
		m.printf("Please input network index: ")
		return
	}
	n, ok := parseIndex(line)
	if !ok || n > len(m.records) {
		m.invalid(line)
		m.printf("Please input network index: ")
		return
	}
	if n == 0 {
		m.backToWiFi()
		return
	}

	ssid := m.records[n-1].SSID
	if err := m.station.DeleteRecord(ssid); err != nil {
		m.printf("***Failed to delete WiFi network: %s\n", syserr.ShortMessage(err))
	} else {
		m.printf("Deleted WiFi network: %s\n", ssid)
	}
	m.footer()
	m.step = stepNone
}

func (m *Machine) handleAdd(line string) {
	switch m.step {
	case stepAddSSID:
		if line == "" {
			m.printf("Please input SSID: ")
			return
		}
		if len(line) > wifi.MaxSSIDLen {
			m.printf("***SSID too long (max %d characters)\n", wifi.MaxSSIDLen)
			m.printf("Please input SSID: ")
			return
		}
		m.ssid = line
		m.printf("Please input password (or press Enter for none): ")
		m.step = stepAddPassword

	case stepAddPassword:
		if len(line) > wifi.MaxPasswordLen {
			m.printf("***Password too long (max %d characters)\n", wifi.MaxPasswordLen)
			m.printf("Please input password (or press Enter for none): ")
			return
		}
		if err := m.station.AddRecord(m.ssid, line); err != nil {
			m.printf("***Failed to add WiFi network: %s\n", syserr.ShortMessage(err))
		} else {
			m.printf("Added WiFi network: %s\n", m.ssid)
		}
		m.footer()
		m.step = stepNone

	default:
		m.backToWiFi()
	}
}
