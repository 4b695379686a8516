package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/syserr"
	"go.uber.org/zap"
)

const (
	// MaxClients is the size of the client slot pool.
	MaxClients = 5

	// ReadBufferSize bounds a single read from a client.
	ReadBufferSize = 1024

	// PollInterval is how often blocked accepts and reads check for stop.
	PollInterval = 100 * time.Millisecond

	// StopTimeout bounds how long Stop waits for the loop to exit.
	StopTimeout = 5 * time.Second

	// LockTimeout bounds waits on the clients lock.
	LockTimeout = time.Second

	// WriteTimeout bounds a single write to one client.
	WriteTimeout = 500 * time.Millisecond
)

// Client is one connected peer bound to a slot.
type Client struct {
	Slot     int
	Addr     string
	Port     int
	Userdata any

	conn   net.Conn
	closed atomic.Bool
}

func (c *Client) String() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// Config holds the server configuration
type Config struct {
	Host       string
	Port       int
	MaxClients int // 0 means MaxClients

	OnConnect    func(c *Client)
	OnData       func(c *Client, data []byte)
	OnDisconnect func(c *Client)

	Verbose bool // dump both directions
}

type readResult struct {
	client *Client
	data   []byte
	err    error
}

// Server is a raw TCP server with a fixed pool of client slots
type Server struct {
	config *Config
	log    *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	running  bool
	stopCh   chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	lock    chan struct{}
	clients []*Client
	count   atomic.Int32

	verboseTx atomic.Bool
	verboseRx atomic.Bool

	accepted chan net.Conn
	reads    chan readResult
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, syserr.InvalidArgument("tcpserver.New", "nil config")
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, syserr.InvalidArgument("tcpserver.New", "port %d out of range", config.Port)
	}
	cfg := *config
	if cfg.MaxClients <= 0 || cfg.MaxClients > MaxClients {
		cfg.MaxClients = MaxClients
	}

	s := &Server{
		config:  &cfg,
		log:     logging.Component("tcp"),
		lock:    make(chan struct{}, 1),
		clients: make([]*Client, cfg.MaxClients),
	}
	s.verboseTx.Store(cfg.Verbose)
	s.verboseRx.Store(cfg.Verbose)
	return s, nil
}

// Start binds the listener and launches the server loop. It does not block.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return syserr.InvalidState("tcpserver.Start", "already running")
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp4", addr)
	if err != nil {
		return syserr.IO("tcpserver.Start", "failed to listen on "+addr, err)
	}

	s.listener = listener
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.accepted = make(chan net.Conn)
	s.reads = make(chan readResult)
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections(listener, s.stopCh)
	}()
	go s.loop(s.stopCh, s.loopDone)

	s.log.Info("TCP server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int("max_clients", s.config.MaxClients),
	)
	return nil
}

// Addr returns the bound listener address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// acceptConnections hands accepted sockets to the loop until stopped.
func (s *Server) acceptConnections(listener net.Listener, stop <-chan struct{}) {
	tl, _ := listener.(*net.TCPListener)
	for {
		if tl != nil {
			_ = tl.SetDeadline(time.Now().Add(PollInterval))
		}
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("Failed to accept connection", zap.Error(err))
			continue
		}

		select {
		case s.accepted <- conn:
		case <-stop:
			conn.Close()
			return
		}
	}
}

// loop owns slot assignment and runs every callback.
func (s *Server) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case conn := <-s.accepted:
			s.handleNewConnection(conn, stop)
		case r := <-s.reads:
			s.handleRead(r)
		}
	}
}

func (s *Server) handleNewConnection(conn net.Conn, stop <-chan struct{}) {
	remote := conn.RemoteAddr().String()

	if !s.acquire(LockTimeout) {
		s.log.Warn("Clients lock busy, dropping connection", zap.String("remote_addr", remote))
		conn.Close()
		return
	}
	slot := -1
	for i, c := range s.clients {
		if c == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		s.release()
		s.log.Warn("No free client slot, closing connection",
			zap.String("remote_addr", remote),
			zap.Int("max_clients", s.config.MaxClients),
		)
		conn.Close()
		return
	}

	c := &Client{Slot: slot, conn: conn}
	if ta, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		c.Addr = ta.IP.String()
		c.Port = ta.Port
	} else {
		c.Addr = remote
	}
	s.clients[slot] = c
	n := s.count.Add(1)
	s.release()

	logging.LogConnection(c.String(), "connected")
	s.log.Info("New client connected",
		zap.String("remote_addr", c.String()),
		zap.Int("slot", slot),
		zap.Int32("total", n),
	)

	if s.config.OnConnect != nil {
		s.config.OnConnect(c)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readClient(c, stop)
	}()
}

// readClient copies reads from one client into the loop.
func (s *Server) readClient(c *Client, stop <-chan struct{}) {
	buf := make([]byte, ReadBufferSize)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(PollInterval))
		n, err := c.conn.Read(buf)

		var r readResult
		switch {
		case n > 0:
			r = readResult{client: c, data: append([]byte(nil), buf[:n]...)}
		case err != nil:
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				select {
				case <-stop:
					return
				default:
				}
				continue
			}
			r = readResult{client: c, err: err}
		default:
			continue
		}

		select {
		case s.reads <- r:
		case <-stop:
			return
		}
		if r.err != nil {
			return
		}
	}
}

func (s *Server) handleRead(r readResult) {
	c := r.client
	if c.closed.Load() {
		return
	}
	if r.err != nil {
		s.log.Debug("Client read ended", zap.String("remote_addr", c.String()), zap.Error(r.err))
		if !s.lockAndRemove(c, StopTimeout) {
			// Slot stays bound until Stop; at least release the socket.
			s.log.Error("Could not free client slot, closing socket only",
				zap.String("remote_addr", c.String()),
				zap.Int("slot", c.Slot))
			c.conn.Close()
		}
		return
	}

	if s.verboseRx.Load() {
		logging.LogRawBytes(fmt.Sprintf("Rx from Client(%s)[len=%d]", c, len(r.data)), r.data)
	}
	if s.config.OnData != nil {
		s.config.OnData(c, r.data)
	}
}

// lockAndRemove frees the client's slot. It reports false when the clients
// lock was not acquired within patience.
func (s *Server) lockAndRemove(c *Client, patience time.Duration) bool {
	if !s.acquireWithin("remove", patience) {
		return false
	}
	removed := s.removeLocked(c)
	s.release()

	if removed {
		s.finishRemove(c)
	}
	return true
}

func (s *Server) removeLocked(c *Client) bool {
	if c.Slot < 0 || c.Slot >= len(s.clients) || s.clients[c.Slot] != c {
		return false
	}
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	s.clients[c.Slot] = nil
	s.count.Add(-1)
	return true
}

func (s *Server) finishRemove(c *Client) {
	logging.LogConnection(c.String(), "disconnected")
	s.log.Info("Client disconnected", zap.String("remote_addr", c.String()), zap.Int("slot", c.Slot))

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c)
	}
	if err := c.conn.Close(); err != nil {
		s.log.Debug("Error closing client connection", zap.Error(err))
	}
}

// Send writes buf to one client. A short write yields InvalidSize; the
// client stays connected either way.
func (s *Server) Send(c *Client, buf []byte) error {
	const op = "tcpserver.Send"
	if c == nil || len(buf) == 0 {
		return syserr.InvalidArgument(op, "nil client or empty buffer")
	}
	if c.closed.Load() {
		return syserr.InvalidState(op, "client %s is not connected", c)
	}

	if s.verboseTx.Load() {
		logging.LogRawBytes(fmt.Sprintf("Tx to Client(%s)[len=%d]", c, len(buf)), buf)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	n, err := c.conn.Write(buf)
	if n > 0 && n < len(buf) {
		s.log.Warn("Incomplete data sent",
			zap.String("remote_addr", c.String()),
			zap.Int("sent", n),
			zap.Int("len", len(buf)),
		)
		return syserr.New(syserr.ErrTypeInvalidSize, op, fmt.Sprintf("sent %d of %d bytes", n, len(buf)))
	}
	if err != nil {
		s.log.Error("Failed to send data", zap.String("remote_addr", c.String()), zap.Error(err))
		return syserr.IO(op, "write failed", err)
	}
	return nil
}

// Broadcast sends buf to every bound client in slot order. A failure on
// one client does not stop the rest; the last error is returned.
func (s *Server) Broadcast(buf []byte) error {
	const op = "tcpserver.Broadcast"
	if len(buf) == 0 {
		return syserr.InvalidArgument(op, "empty buffer")
	}
	if !s.acquire(LockTimeout) {
		return syserr.Timeout(op, "clients lock not acquired within %s", LockTimeout)
	}
	defer s.release()

	var result error
	for _, c := range s.clients {
		if c == nil {
			continue
		}
		if err := s.Send(c, buf); err != nil {
			result = err
		}
	}
	return result
}

// ClientCount returns the number of bound slots.
func (s *Server) ClientCount() int {
	return int(s.count.Load())
}

// Clients returns a snapshot of the bound clients in slot order.
func (s *Server) Clients() []*Client {
	if !s.acquire(LockTimeout) {
		return nil
	}
	defer s.release()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// DisconnectClient closes one client and frees its slot. OnDisconnect runs
// on the caller's goroutine.
func (s *Server) DisconnectClient(c *Client) error {
	const op = "tcpserver.DisconnectClient"
	if c == nil {
		return syserr.InvalidArgument(op, "nil client")
	}
	if !s.lockAndRemove(c, LockTimeout) {
		return syserr.Timeout(op, "clients lock not acquired within %s", LockTimeout)
	}
	return nil
}

// SetVerbose toggles hex dumps of transmitted and received data.
func (s *Server) SetVerbose(tx, rx bool) {
	s.verboseTx.Store(tx)
	s.verboseRx.Store(rx)
}

// Stop closes the listener, waits for the loop to exit, then closes every
// client. OnDisconnect fires for each client still bound.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	listener := s.listener
	loopDone := s.loopDone
	s.mu.Unlock()

	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("Error closing listener", zap.Error(err))
	}

	var result error
	select {
	case <-loopDone:
	case <-time.After(StopTimeout):
		s.log.Warn("Server loop did not exit in time, forcing close", zap.Duration("timeout", StopTimeout))
		result = syserr.Timeout("tcpserver.Stop", "loop did not exit within %s", StopTimeout)
	}

	if s.acquireWithin("stop", StopTimeout) {
		var bound []*Client
		for _, c := range s.clients {
			if c != nil && s.removeLocked(c) {
				bound = append(bound, c)
			}
		}
		s.release()
		for _, c := range bound {
			s.finishRemove(c)
		}
	} else {
		result = syserr.Timeout("tcpserver.Stop", "clients lock not acquired within %s", StopTimeout)
	}

	s.wg.Wait()

	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()

	s.log.Info("TCP server stopped")
	return result
}

// Destroy stops the server if needed and releases its resources.
func (s *Server) Destroy() {
	if err := s.Stop(); err != nil {
		s.log.Warn("Stop during destroy reported an error", zap.Error(err))
	}
	s.log.Debug("TCP server destroyed")
}

// acquireWithin takes the clients lock in waits of at most LockTimeout,
// logging each one that expires, until patience is used up.
func (s *Server) acquireWithin(op string, patience time.Duration) bool {
	deadline := time.Now().Add(patience)
	for {
		wait := LockTimeout
		if left := time.Until(deadline); left < wait {
			wait = left
		}
		if wait > 0 && s.acquire(wait) {
			return true
		}
		s.log.Warn("Clients lock not acquired",
			zap.String("op", op),
			zap.Duration("wait", wait))
		if !time.Now().Before(deadline) {
			return false
		}
	}
}

func (s *Server) acquire(timeout time.Duration) bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.lock <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (s *Server) release() {
	<-s.lock
}
