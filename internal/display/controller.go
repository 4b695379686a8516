package display

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/syserr"
	"github.com/muurk/serial2ip/internal/uart"
	"github.com/muurk/serial2ip/internal/wifi"
	"go.uber.org/zap"
)

// Timing of the display loop.
const (
	TickInterval   = 50 * time.Millisecond
	SampleInterval = 250 * time.Millisecond
	AnimInterval   = 50 * time.Millisecond
	MenuTimeout    = 10 * time.Second
	ScanTimeout    = 10 * time.Second
	MessageTimeout = 2 * time.Second
	PageTimeout    = 60 * time.Second
)

const (
	// StatsResetHold is the long press, in seconds, that resets the stats.
	StatsResetHold = 3
	// ConnectRetries is how often a panel connect is retried.
	ConnectRetries = 2
	DefaultHelpURL = "https://github.com/muurk/serial2ip"
)

// Station is the part of the Wi-Fi manager the display uses.
type Station interface {
	GetStatus() wifi.ConnectionStatus
	Records() []wifi.Record
	Scanner() *wifi.Scanner
	Connect(ctx context.Context, ssid, password string) error
}

// Bridge is the part of the UART bridge the display uses.
type Bridge interface {
	GetStatus() bridge.Status
	GetStats() bridge.Stats
	ResetStats()
	SetBaudrate(baud uint32) error
}

// Options tune a Controller.
type Options struct {
	Allow1500k bool
	HelpURL    string
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Controller runs the front panel: it turns button events into page and
// popup transitions, samples the station and bridge, drives the LED and
// redraws the screen.
type Controller struct {
	drawer  Drawer
	led     LED
	buttons *ButtonQueue
	station Station
	bridge  Bridge
	now     func() time.Time
	log     *zap.Logger
	rates   []uint32
	qr      Image
	cpu     *cpuSampler

	ctx        context.Context
	connecting atomic.Bool
	connWG     sync.WaitGroup

	mu          sync.Mutex
	page        Page
	popup       Popup
	msg         Message
	msgText     string
	menuSel     int
	uartSel     int
	rows        []NetworkRow
	cursor      int
	scanning    bool
	pageExpire  time.Time
	popupExpire time.Time
	forceHelp   bool
	showCPU     bool
	home        HomeData
	lastSample  time.Time
	lastAnim    time.Time
	eraser      int
	ledState    wifi.State
	ledApplied  bool
	dirty       bool
}

// New creates a controller. led may be nil on boards without one.
func New(drawer Drawer, led LED, buttons *ButtonQueue, station Station, br Bridge, opts Options) (*Controller, error) {
	if drawer == nil || buttons == nil || station == nil || br == nil {
		return nil, syserr.InvalidArgument("display.new", "drawer, buttons, station and bridge are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HelpURL == "" {
		opts.HelpURL = DefaultHelpURL
	}

	c := &Controller{
		drawer:  drawer,
		led:     led,
		buttons: buttons,
		station: station,
		bridge:  br,
		now:     opts.Now,
		log:     logging.Component("display"),
		rates:   uart.Baudrates(opts.Allow1500k),
		cpu:     newCPUSampler(),
		ctx:     context.Background(),
		dirty:   true,
	}
	c.home.CPU = -1

	qr, err := QRImage(opts.HelpURL)
	if err != nil {
		c.log.Warn("Failed to encode help QR code", zap.Error(err))
	}
	c.qr = qr

	if len(station.Records()) == 0 {
		c.forceHelp = true
		c.page = PageHelp
		c.log.Info("No saved network, showing help page")
	}
	return c, nil
}

// Run drives the display at 20 Hz until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	c.log.Info("Display loop started", zap.Duration("period", TickInterval))
	for {
		c.tick(c.now())
		select {
		case <-ctx.Done():
			c.connWG.Wait()
			return nil
		case <-ticker.C:
		}
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Model{
		Page:          c.page,
		Popup:         c.popup,
		Message:       c.msg,
		MessageText:   c.msgText,
		MenuSelection: c.menuSel,
		UartSelection: c.uartSel,
		UartRates:     append([]uint32(nil), c.rates...),
		Networks:      append([]NetworkRow(nil), c.rows...),
		NetworkCursor: c.cursor,
		Scanning:      c.scanning,
		PageExpire:    c.pageExpire,
		PopupExpire:   c.popupExpire,
		ForceHelp:     c.forceHelp,
		ShowCPU:       c.showCPU,
		Home:          c.home,
	}
}

func (c *Controller) tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range c.buttons.drain() {
		c.handleButton(ev, now)
	}

	if c.lastSample.IsZero() || now.Sub(c.lastSample) >= SampleInterval {
		c.lastSample = now
		c.sample()
	}

	if c.page == PageHome && now.Sub(c.lastAnim) >= AnimInterval {
		c.lastAnim = now
		c.eraser = (c.eraser + 1) % (Width + animEraserWidth)
		c.dirty = true
	}

	if c.scanning {
		c.checkScan(now)
	}
	c.expire(now)

	if c.dirty {
		c.dirty = false
		c.redraw()
	}
}

func (c *Controller) handleButton(ev ButtonEvent, now time.Time) {
	if c.forceHelp {
		return
	}
	if c.popup == PopupMsg {
		return
	}

	switch ev.Type {
	case ButtonClicks:
	case ButtonLongPressed:
		if c.page == PageHome && c.popup == PopupNone && ev.Seconds == StatsResetHold {
			c.bridge.ResetStats()
			c.log.Info("Bridge stats reset from panel")
			c.showMessage(MsgStatsReset, "", now, MessageTimeout)
		}
		return
	default:
		return
	}

	switch c.page {
	case PageHome:
		c.homeClicks(ev.Clicks, now)
	case PageUart:
		c.uartClicks(ev.Clicks, now)
	case PageNetwork:
		c.networkClicks(ev.Clicks, now)
	case PageHelp:
		if ev.Clicks == 2 {
			c.goHome()
		}
	}
}

func (c *Controller) homeClicks(n uint8, now time.Time) {
	switch n {
	case 1:
		if c.popup == PopupMenu {
			c.menuSel = (c.menuSel + 1) % len(MenuEntries)
		} else {
			c.popup = PopupMenu
			c.menuSel = 0
		}
		c.popupExpire = now.Add(MenuTimeout)
		c.dirty = true
	case 2:
		if c.popup != PopupMenu {
			return
		}
		c.closePopup()
		c.enterPage(MenuEntries[c.menuSel].Page, now)
	case 3:
		c.showCPU = !c.showCPU
		if !c.showCPU {
			c.home.CPU = -1
		}
		c.dirty = true
	}
}

func (c *Controller) uartClicks(n uint8, now time.Time) {
	switch n {
	case 1:
		c.uartSel = (c.uartSel + 1) % len(c.rates)
		c.pageExpire = now.Add(PageTimeout)
		c.dirty = true
	case 2:
		baud := c.rates[c.uartSel]
		c.goHome()
		if err := c.bridge.SetBaudrate(baud); err != nil {
			c.log.Warn("Failed to set baudrate", zap.Uint32("baudrate", baud), zap.Error(err))
			c.showMessage(MsgError, "Set baud failed", now, MessageTimeout)
			return
		}
		c.log.Info("Baudrate changed from panel", zap.Uint32("baudrate", baud))
	}
}

func (c *Controller) networkClicks(n uint8, now time.Time) {
	if len(c.rows) == 0 {
		return
	}
	switch n {
	case 1:
		c.cursor = (c.cursor + 1) % len(c.rows)
		c.pageExpire = now.Add(PageTimeout)
		c.dirty = true
	case 2:
		row := c.rows[c.cursor]
		c.goHome()
		status := c.station.GetStatus()
		switch {
		case status.State == wifi.StateConnected && status.SSID == row.SSID:
			c.showMessage(MsgAlreadyConnected, "", now, MessageTimeout)
		case row.Level == 0:
			c.showMessage(MsgNotAvailable, "", now, MessageTimeout)
		default:
			c.showMessage(MsgStartConnecting, "", now, MessageTimeout)
			c.startConnect(row.SSID, row.Password)
		}
	}
}

func (c *Controller) enterPage(p Page, now time.Time) {
	switch p {
	case PageUart:
		c.uartSel = 0
		cur := c.bridge.GetStatus().UartBaudrate
		for i, r := range c.rates {
			if r == cur {
				c.uartSel = i
			}
		}
	case PageNetwork:
		records := c.station.Records()
		if len(records) == 0 {
			c.goHome()
			c.showMessage(MsgNoSavedNetwork, "", now, MessageTimeout)
			return
		}
		status := c.station.GetStatus()
		c.rows = c.rows[:0]
		for _, r := range records {
			c.rows = append(c.rows, NetworkRow{
				SSID:      r.SSID,
				Password:  r.Password,
				Connected: status.State == wifi.StateConnected && status.SSID == r.SSID,
			})
		}
		c.cursor = 0
		if err := c.station.Scanner().StartAsync(); err != nil {
			c.log.Warn("Failed to start scan", zap.Error(err))
		} else {
			c.scanning = true
			c.showMessage(MsgScanning, "", now, ScanTimeout)
		}
	}
	c.page = p
	c.pageExpire = now.Add(PageTimeout)
	c.dirty = true
}

// checkScan annotates the network rows once the page's scan is done.
func (c *Controller) checkScan(now time.Time) {
	sc := c.station.Scanner()
	if !sc.IsDone() {
		if c.popup != PopupMsg || c.msg != MsgScanning {
			c.scanning = false
		}
		return
	}
	c.scanning = false
	entries, err := sc.Result()
	if err != nil {
		c.log.Debug("No scan result", zap.Error(err))
	}
	for i := range c.rows {
		c.rows[i].Level = levelOf(entries, c.rows[i].SSID)
	}
	if c.popup == PopupMsg && c.msg == MsgScanning {
		c.closePopup()
	}
	c.pageExpire = now.Add(PageTimeout)
	c.dirty = true
}

// levelOf returns the signal level of the strongest entry for ssid, 0 when
// it was not seen.
func levelOf(entries []wifi.ScanEntry, ssid string) uint8 {
	best := uint8(0)
	for _, e := range entries {
		if e.SSID != ssid {
			continue
		}
		if l := uint8(wifi.SignalLevel(e.RSSI)); l > best {
			best = l
		}
	}
	return best
}

func (c *Controller) startConnect(ssid, password string) {
	if !c.connecting.CompareAndSwap(false, true) {
		c.log.Warn("Connect already running", zap.String("ssid", ssid))
		return
	}
	ctx := c.ctx
	c.connWG.Add(1)
	go func() {
		defer c.connWG.Done()
		defer c.connecting.Store(false)

		var err error
		for attempt := 0; attempt <= ConnectRetries; attempt++ {
			if err = c.station.Connect(ctx, ssid, password); err == nil {
				c.log.Info("Connected from panel", zap.String("ssid", ssid))
				return
			}
			if ctx.Err() != nil {
				break
			}
			c.log.Warn("Connect failed",
				zap.String("ssid", ssid),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}
		c.log.Error("Giving up connect", zap.String("ssid", ssid), zap.Error(err))
	}()
}

func (c *Controller) showMessage(m Message, text string, now time.Time, d time.Duration) {
	if text == "" {
		text = m.String()
	}
	c.popup = PopupMsg
	c.msg = m
	c.msgText = text
	c.popupExpire = now.Add(d)
	c.dirty = true
}

func (c *Controller) closePopup() {
	c.popup = PopupNone
	c.msg = MsgNone
	c.msgText = ""
	c.popupExpire = time.Time{}
	c.dirty = true
}

func (c *Controller) goHome() {
	c.page = PageHome
	c.pageExpire = time.Time{}
	c.scanning = false
	c.dirty = true
}

func (c *Controller) expire(now time.Time) {
	if c.popup != PopupNone && !c.popupExpire.IsZero() && !now.Before(c.popupExpire) {
		c.closePopup()
	}
	if c.page != PageHome && !c.forceHelp && !c.pageExpire.IsZero() && !now.Before(c.pageExpire) {
		c.goHome()
	}
}

// sample refreshes the Home data and applies the LED policy.
func (c *Controller) sample() {
	st := c.station.GetStatus()
	bs := c.bridge.GetStatus()

	h := HomeData{
		State:      st.State,
		SSID:       st.SSID,
		Baudrate:   bs.UartBaudrate,
		TCPPort:    bs.TCPPort,
		Clients:    bs.TCPClientNum,
		Forwarding: bs.Forwarding,
		Stats:      c.bridge.GetStats(),
		CPU:        -1,
	}
	if st.State == wifi.StateConnected {
		h.IP = wifi.FormatIPv4(st.IP)
		h.Level = uint8(wifi.SignalLevel(st.RSSI))
	}
	if c.showCPU {
		h.CPU = c.cpu.Percent()
	}
	if h != c.home {
		c.home = h
		c.dirty = true
	}

	if c.forceHelp && len(c.station.Records()) > 0 {
		c.forceHelp = false
		c.goHome()
		c.log.Info("Network saved, leaving help page")
	}

	c.applyLED(st.State)
}

func (c *Controller) applyLED(state wifi.State) {
	if c.led == nil || (c.ledApplied && state == c.ledState) {
		return
	}
	var err error
	switch state {
	case wifi.StateConnected:
		err = c.led.Set(true)
	case wifi.StateConnecting:
		err = c.led.Flash(PatternConnecting, PatternMaskAll)
	default:
		err = c.led.Flash(PatternDisconnected, PatternMaskAll)
	}
	if err != nil {
		c.log.Warn("Failed to drive LED", zap.Error(err))
		return
	}
	c.ledState = state
	c.ledApplied = true
}
