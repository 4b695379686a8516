package uart

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/syserr"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	// TxBufferSize is the capacity of the software transmit buffer.
	TxBufferSize = 2048

	// RxBufferSize is the largest read the bridge asks for.
	RxBufferSize = 2048

	// ReadTimeout bounds a single blocking read.
	ReadTimeout = 100 * time.Millisecond

	// DefaultBaudrate is used when nothing else is configured.
	DefaultBaudrate uint32 = 115200

	// Baudrate1500k is only offered when explicitly enabled.
	Baudrate1500k uint32 = 1500000
)

// SupportedBaudrates lists the canonical rates in menu order.
var SupportedBaudrates = []uint32{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// Baudrates returns the selectable rates, with 1.5 Mbaud appended when
// allowed.
func Baudrates(allow1500k bool) []uint32 {
	out := append([]uint32(nil), SupportedBaudrates...)
	if allow1500k {
		out = append(out, Baudrate1500k)
	}
	return out
}

// IsSupported reports whether b is one of the selectable rates.
func IsSupported(b uint32, allow1500k bool) bool {
	for _, r := range Baudrates(allow1500k) {
		if r == b {
			return true
		}
	}
	return false
}

// Port is the part of serial.Port the driver needs.
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
}

// Driver wraps a serial port with a bounded transmit buffer drained by a
// background goroutine, so writers can ask how much room is left.
type Driver struct {
	port Port
	log  *zap.Logger

	mu     sync.Mutex
	ring   []byte
	head   int
	size   int
	baud   uint32
	closed bool

	kick chan struct{}
	done chan struct{}
}

// Open opens a serial device in 8N1 mode at the given rate.
func Open(device string, baud uint32) (*Driver, error) {
	port, err := serial.Open(device, mode(baud))
	if err != nil {
		return nil, mapPortError("uart.Open", err)
	}
	d, err := NewDriver(port, baud)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	d.log.Info("UART opened", zap.String("device", device), zap.Uint32("baudrate", baud))
	return d, nil
}

// NewDriver takes ownership of an already opened port.
func NewDriver(port Port, baud uint32) (*Driver, error) {
	if port == nil {
		return nil, syserr.InvalidArgument("uart.NewDriver", "nil port")
	}
	if baud == 0 {
		baud = DefaultBaudrate
	}
	if err := port.SetMode(mode(baud)); err != nil {
		return nil, mapPortError("uart.NewDriver", err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		return nil, mapPortError("uart.NewDriver", err)
	}

	d := &Driver{
		port: port,
		log:  logging.Component("uart"),
		ring: make([]byte, TxBufferSize),
		baud: baud,
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.drain()
	return d, nil
}

func mode(baud uint32) *serial.Mode {
	return &serial.Mode{
		BaudRate: int(baud),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Read reads whatever arrived, waiting at most ReadTimeout. A timeout
// returns 0 and no error.
func (d *Driver) Read(p []byte) (int, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, syserr.InvalidState("uart.Read", "driver closed")
	}

	n, err := d.port.Read(p)
	if err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, mapPortError("uart.Read", err)
	}
	return n, nil
}

// Write queues as much of p as fits in the transmit buffer and returns the
// number of bytes taken.
func (d *Driver) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, syserr.InvalidState("uart.Write", "driver closed")
	}
	n := len(d.ring) - d.size
	if n > len(p) {
		n = len(p)
	}
	tail := (d.head + d.size) % len(d.ring)
	first := copy(d.ring[tail:], p[:n])
	copy(d.ring, p[first:n])
	d.size += n
	d.mu.Unlock()

	if n > 0 {
		select {
		case d.kick <- struct{}{}:
		default:
		}
	}
	return n, nil
}

// TxFree returns the free space in the transmit buffer.
func (d *Driver) TxFree() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ring) - d.size
}

// Pending returns the number of queued bytes not yet on the wire.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// drain moves queued bytes to the port. Bytes stay in the buffer until the
// port has taken them.
func (d *Driver) drain() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		if d.size == 0 {
			d.mu.Unlock()
			<-d.kick
			continue
		}
		end := d.head + d.size
		if end > len(d.ring) {
			end = len(d.ring)
		}
		chunk := append([]byte(nil), d.ring[d.head:end]...)
		d.mu.Unlock()

		n, err := d.port.Write(chunk)
		if err != nil {
			d.log.Warn("UART write failed, dropping queued bytes",
				zap.Int("len", len(chunk)),
				zap.Int("written", n),
				zap.Error(err),
			)
			n = len(chunk)
		}

		d.mu.Lock()
		d.head = (d.head + n) % len(d.ring)
		d.size -= n
		d.mu.Unlock()
	}
}

// SetBaudrate changes the line speed without touching queued data.
func (d *Driver) SetBaudrate(b uint32) error {
	if b == 0 {
		return syserr.InvalidArgument("uart.SetBaudrate", "baudrate must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return syserr.InvalidState("uart.SetBaudrate", "driver closed")
	}
	if err := d.port.SetMode(mode(b)); err != nil {
		return mapPortError("uart.SetBaudrate", err)
	}
	d.baud = b
	return nil
}

// Baudrate returns the current line speed.
func (d *Driver) Baudrate() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baud
}

// Opened reports whether the driver has not been closed.
func (d *Driver) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Close stops the drain goroutine and closes the port. Queued bytes are
// discarded.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}
	err := d.port.Close()
	<-d.done
	if err != nil {
		return mapPortError("uart.Close", err)
	}
	return nil
}

// ListPorts returns the serial devices present on the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, mapPortError("uart.ListPorts", err)
	}
	return ports, nil
}

// mapPortError translates serial library errors into error kinds.
func mapPortError(op string, err error) error {
	if err == nil {
		return nil
	}
	var code serial.PortErrorCode
	var pe *serial.PortError
	var pv serial.PortError
	switch {
	case errors.As(err, &pe):
		code = pe.Code()
	case errors.As(err, &pv):
		code = pv.Code()
	default:
		return syserr.IO(op, "serial port error", err)
	}

	switch code {
	case serial.PortNotFound:
		return syserr.Wrap(syserr.ErrTypeNotFound, op, "serial port not found", err)
	case serial.PortClosed:
		return syserr.Wrap(syserr.ErrTypeInvalidState, op, "serial port closed", err)
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity,
		serial.InvalidStopBits, serial.InvalidTimeoutValue:
		return syserr.Wrap(syserr.ErrTypeInvalidArgument, op, "invalid serial configuration", err)
	default:
		return syserr.IO(op, fmt.Sprintf("serial port error (code %d)", code), err)
	}
}
