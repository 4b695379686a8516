package bridge

import (
	"net"
	"sync"
	"time"

	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/nvs"
	"github.com/muurk/serial2ip/internal/syserr"
	"github.com/muurk/serial2ip/internal/tcpserver"
	"github.com/muurk/serial2ip/internal/uart"
	"github.com/muurk/serial2ip/internal/wifi"
	"go.uber.org/zap"
)

const (
	// Namespace is the key/value namespace holding the bridge config.
	Namespace = "uart_bridge"

	keyTCPPort  = "tcp_port"
	keyBaudrate = "baudrate"

	// DefaultTCPPort is the bridge port when none is stored.
	DefaultTCPPort uint16 = 5678

	// ReadBufferSize bounds one UART read.
	ReadBufferSize = 1024

	idleSleep = 10 * time.Millisecond
)

// UART is the serial side of the bridge. *uart.Driver implements it.
type UART interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	TxFree() int
	SetBaudrate(b uint32) error
	Baudrate() uint32
	Opened() bool
}

// EventSource delivers Wi-Fi station events. *wifi.Manager implements it.
type EventSource interface {
	Subscribe(h func(wifi.Event)) func()
}

// Config is the persisted bridge configuration.
type Config struct {
	TCPPort  uint16 `json:"tcp_port"`
	Baudrate uint32 `json:"baudrate"`
}

// DefaultConfig returns the configuration used when nothing is stored.
func DefaultConfig() Config {
	return Config{TCPPort: DefaultTCPPort, Baudrate: uart.DefaultBaudrate}
}

// Status is a snapshot of the bridge state.
type Status struct {
	TCPStandby   bool   `json:"tcp_standby"` // server listening
	UartOpened   bool   `json:"uart_opened"`
	Forwarding   bool   `json:"forwarding"`
	UartBaudrate uint32 `json:"uart_baudrate"`
	TCPPort      uint16 `json:"tcp_port"`
	TCPClientNum int    `json:"tcp_client_num"`
}

// Options tune a Bridge beyond its persisted Config.
type Options struct {
	Host       string // listen address, empty for all interfaces
	Allow1500k bool
	Verbose    bool

	// Defaults replaces DefaultConfig for keys missing from the store.
	// Zero fields keep the built-in defaults.
	Defaults Config

	// OnServerChange is called after the TCP server starts or stops.
	OnServerChange func(listening bool, port uint16)
}

// Bridge forwards bytes between the UART and the TCP clients and starts
// or stops the TCP server as the station link comes and goes.
type Bridge struct {
	opts Options
	log  *zap.Logger
	uart UART
	nvs  *nvs.Handle

	mu      sync.Mutex
	cfg     Config
	server  *tcpserver.Server
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	unsub   func()

	statsMu sync.Mutex
	stats   Stats
}

// New loads the stored config and applies its baudrate to the UART.
func New(u UART, h *nvs.Handle, opts Options) (*Bridge, error) {
	if u == nil {
		return nil, syserr.InvalidArgument("bridge.New", "nil uart")
	}
	b := &Bridge{
		opts: opts,
		log:  logging.Component("bridge"),
		uart: u,
		nvs:  h,
	}
	b.cfg = b.loadConfig()

	if u.Baudrate() != b.cfg.Baudrate {
		if err := u.SetBaudrate(b.cfg.Baudrate); err != nil {
			b.log.Warn("Failed to apply stored baudrate", zap.Uint32("baudrate", b.cfg.Baudrate), zap.Error(err))
			b.cfg.Baudrate = u.Baudrate()
		}
	}
	b.log.Info("Bridge initialized",
		zap.Uint16("tcp_port", b.cfg.TCPPort),
		zap.Uint32("baudrate", b.cfg.Baudrate),
	)
	return b, nil
}

func (b *Bridge) loadConfig() Config {
	cfg := DefaultConfig()
	if b.opts.Defaults.TCPPort != 0 {
		cfg.TCPPort = b.opts.Defaults.TCPPort
	}
	if uart.IsSupported(b.opts.Defaults.Baudrate, true) {
		cfg.Baudrate = b.opts.Defaults.Baudrate
	}
	if b.nvs == nil {
		return cfg
	}
	if port, err := b.nvs.GetU16(keyTCPPort); err == nil && port != 0 {
		cfg.TCPPort = port
	} else if err != nil && !syserr.IsNotFound(err) {
		b.log.Warn("Failed to read tcp_port, using default", zap.Error(err))
	}
	if baud, err := b.nvs.GetU32(keyBaudrate); err == nil && uart.IsSupported(baud, true) {
		cfg.Baudrate = baud
	} else if err != nil && !syserr.IsNotFound(err) {
		b.log.Warn("Failed to read baudrate, using default", zap.Error(err))
	}
	return cfg
}

func (b *Bridge) saveConfigLocked() error {
	if b.nvs == nil {
		return nil
	}
	if err := b.nvs.SetU16(keyTCPPort, b.cfg.TCPPort); err != nil {
		return err
	}
	if err := b.nvs.SetU32(keyBaudrate, b.cfg.Baudrate); err != nil {
		return err
	}
	if err := b.nvs.Commit(); err != nil {
		b.log.Error("Config save failed", zap.Error(err))
		return err
	}
	b.log.Info("Config saved")
	return nil
}

// Start launches the UART reader.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	b.stopCh = make(chan struct{})
	b.done = make(chan struct{})
	b.running = true
	go b.readLoop(b.stopCh, b.done)
	b.log.Info("UART reader started")
	return nil
}

// Attach subscribes to station events: Connected starts the TCP server,
// Disconnected stops it.
func (b *Bridge) Attach(src EventSource) {
	unsub := src.Subscribe(b.HandleWifiEvent)
	b.mu.Lock()
	b.unsub = unsub
	b.mu.Unlock()
}

// HandleWifiEvent applies one station event.
func (b *Bridge) HandleWifiEvent(ev wifi.Event) {
	switch ev.Type {
	case wifi.EventConnected:
		if err := b.StartTCPServer(); err != nil {
			b.log.Error("TCP server unavailable, running in uart only mode", zap.Error(err))
		}
	case wifi.EventDisconnected:
		if err := b.StopTCPServer(); err != nil {
			b.log.Warn("Failed to stop TCP server", zap.Error(err))
		}
	}
}

// Stop stops the TCP server and the UART reader. The UART itself is left
// open for its owner to close.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	unsub := b.unsub
	b.unsub = nil
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	err := b.StopTCPServer()

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return err
	}
	b.running = false
	close(b.stopCh)
	done := b.done
	b.mu.Unlock()

	<-done
	b.log.Info("UART reader stopped")
	return err
}

// StartTCPServer starts the server on the configured port. It requires a
// running bridge and is a no-op when the server already exists.
func (b *Bridge) StartTCPServer() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return syserr.InvalidState("bridge.StartTCPServer", "bridge not started")
	}
	if b.server != nil {
		b.mu.Unlock()
		b.log.Warn("TCP server already running")
		return nil
	}
	port := b.cfg.TCPPort

	srv, err := tcpserver.New(&tcpserver.Config{
		Host:         b.opts.Host,
		Port:         int(port),
		MaxClients:   tcpserver.MaxClients,
		OnConnect:    b.onClientConnected,
		OnData:       b.onClientData,
		OnDisconnect: b.onClientDisconnected,
		Verbose:      b.opts.Verbose,
	})
	if err == nil {
		err = srv.Start()
	}
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.server = srv
	b.mu.Unlock()

	b.log.Info("TCP server started", zap.Uint16("port", port))
	if b.opts.OnServerChange != nil {
		b.opts.OnServerChange(true, port)
	}
	return nil
}

// StopTCPServer stops and destroys the server if there is one.
func (b *Bridge) StopTCPServer() error {
	b.mu.Lock()
	srv := b.server
	b.server = nil
	port := b.cfg.TCPPort
	b.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Stop()
	srv.Destroy()
	b.log.Info("TCP server stopped")
	if b.opts.OnServerChange != nil {
		b.opts.OnServerChange(false, port)
	}
	return err
}

// Server returns the TCP server, or nil when it is not running.
func (b *Bridge) Server() *tcpserver.Server {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.server
}

// Addr returns the TCP listener address, or nil.
func (b *Bridge) Addr() net.Addr {
	if srv := b.Server(); srv != nil {
		return srv.Addr()
	}
	return nil
}

func (b *Bridge) readLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, ReadBufferSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := b.uart.Read(buf)
		if err != nil {
			if syserr.IsInvalidState(err) {
				b.log.Info("UART closed, reader exiting")
				return
			}
			b.log.Warn("UART read failed", zap.Error(err))
			time.Sleep(idleSleep)
			continue
		}
		if n == 0 {
			time.Sleep(idleSleep)
			continue
		}
		b.forward(buf[:n])
	}
}

// forward accounts one UART read and broadcasts it when clients exist.
func (b *Bridge) forward(data []byte) {
	n := uint32(len(data))
	b.addStats(func(s *Stats) { s.UartRxBytes += n })

	srv := b.Server()
	if srv == nil || srv.ClientCount() == 0 {
		return
	}
	if err := srv.Broadcast(data); err != nil {
		b.log.Debug("Broadcast failed", zap.Int("len", len(data)), zap.Error(err))
		b.addStats(func(s *Stats) { s.TCPTxErrorBytes += n })
		return
	}
	b.addStats(func(s *Stats) { s.TCPTxBytes += n })
}

// onClientData writes what fits in the UART transmit buffer and counts the
// rest as dropped.
func (b *Bridge) onClientData(c *tcpserver.Client, data []byte) {
	if len(data) == 0 {
		return
	}
	b.log.Debug("Received data from TCP client", zap.String("remote_addr", c.String()), zap.Int("len", len(data)))

	want := len(data)
	if free := b.uart.TxFree(); free < want {
		want = free
	}

	var written int
	var err error
	if want > 0 {
		written, err = b.uart.Write(data[:want])
	}

	drop := uint32(len(data) - want)
	b.addStats(func(s *Stats) {
		s.TCPRxBytes += uint32(len(data))
		s.UartTxDropBytes += drop
		switch {
		case err != nil:
			s.UartTxErrorBytes += uint32(want)
		default:
			s.UartTxBytes += uint32(written)
			s.UartTxErrorBytes += uint32(want - written)
		}
	})

	if drop > 0 {
		b.log.Warn("UART transmit buffer full, dropping data",
			zap.Int("len", len(data)),
			zap.Uint32("dropped", drop),
		)
	}
	if err != nil {
		b.log.Error("UART write failed", zap.Int("len", want), zap.Error(err))
	} else if written < want {
		b.log.Warn("UART write incomplete", zap.Int("written", written), zap.Int("len", want))
	}
}

func (b *Bridge) onClientConnected(c *tcpserver.Client) {
	b.log.Info("TCP client connected", zap.String("remote_addr", c.String()))
	b.addStats(func(s *Stats) { s.TCPConnectCount++ })
}

func (b *Bridge) onClientDisconnected(c *tcpserver.Client) {
	b.log.Info("TCP client disconnected", zap.String("remote_addr", c.String()))
	b.addStats(func(s *Stats) { s.TCPDisconnectCount++ })
}

// GetStatus returns a snapshot of the bridge state.
func (b *Bridge) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	opened := b.uart.Opened()
	st := Status{
		TCPStandby:   b.server != nil,
		UartOpened:   opened,
		Forwarding:   b.running && opened && b.server != nil,
		UartBaudrate: b.cfg.Baudrate,
		TCPPort:      b.cfg.TCPPort,
	}
	if b.server != nil {
		st.TCPClientNum = b.server.ClientCount()
	}
	return st
}

// Config returns the current configuration.
func (b *Bridge) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Allow1500k reports whether 1.5 Mbaud is selectable.
func (b *Bridge) Allow1500k() bool {
	return b.opts.Allow1500k
}

// SetBaudrate changes the UART speed and persists it when it changed.
func (b *Bridge) SetBaudrate(baud uint32) error {
	if !uart.IsSupported(baud, b.opts.Allow1500k) {
		return syserr.InvalidArgument("bridge.SetBaudrate", "unsupported baudrate %d", baud)
	}
	if err := b.uart.SetBaudrate(baud); err != nil {
		b.log.Error("Failed to set baudrate", zap.Uint32("baudrate", baud), zap.Error(err))
		return err
	}
	b.log.Info("Baudrate set", zap.Uint32("baudrate", baud))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Baudrate == baud {
		return nil
	}
	b.cfg.Baudrate = baud
	return b.saveConfigLocked()
}

// SetTCPPort persists a new port. A running server keeps its port until
// it is restarted.
func (b *Bridge) SetTCPPort(port uint16) error {
	if port == 0 {
		return syserr.InvalidArgument("bridge.SetTCPPort", "port must be non-zero")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.TCPPort == port {
		return nil
	}
	b.cfg.TCPPort = port
	return b.saveConfigLocked()
}

// SetVerbose toggles traffic dumps on the running server.
func (b *Bridge) SetVerbose(tx, rx bool) error {
	srv := b.Server()
	if srv == nil {
		return syserr.InvalidState("bridge.SetVerbose", "tcp server not running")
	}
	srv.SetVerbose(tx, rx)
	return nil
}
