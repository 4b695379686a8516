package uart

import (
	"bytes"
	"testing"
	"time"

	"github.com/muurk/serial2ip/internal/syserr"
	"go.bug.st/serial"
)

func newTestDriver(t *testing.T) (*Driver, *FakePort) {
	t.Helper()
	port := NewFakePort()
	d, err := NewDriver(port, 115200)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, port
}

func TestNewDriver_ConfiguresPort(t *testing.T) {
	_, port := newTestDriver(t)

	got := port.Mode()
	want := serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	if got != want {
		t.Errorf("Mode() = %+v, want %+v", got, want)
	}
}

func TestDriver_WriteReachesPort(t *testing.T) {
	d, port := newTestDriver(t)

	payload := []byte{0x00, 0xFF, 0x41, 0x42}
	n, err := d.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("Write() = %d, %v, want %d, nil", n, err, len(payload))
	}
	if got := port.WaitWritten(len(payload), time.Second); !bytes.Equal(got, payload) {
		t.Errorf("port received % x, want % x", got, payload)
	}
	if got := d.TxFree(); got != TxBufferSize {
		t.Errorf("TxFree() = %d after drain, want %d", got, TxBufferSize)
	}
}

func TestDriver_WriteBoundedByFreeSpace(t *testing.T) {
	d, port := newTestDriver(t)
	port.Hold()

	fill := bytes.Repeat([]byte{'a'}, TxBufferSize-10)
	if n, _ := d.Write(fill); n != len(fill) {
		t.Fatalf("Write(fill) = %d, want %d", n, len(fill))
	}
	if got := d.TxFree(); got != 10 {
		t.Fatalf("TxFree() = %d, want 10", got)
	}

	packet := []byte("0123456789ABCDEFGHIJ")
	n, err := d.Write(packet)
	if err != nil || n != 10 {
		t.Fatalf("Write(packet) = %d, %v, want 10, nil", n, err)
	}
	if got := d.TxFree(); got != 0 {
		t.Errorf("TxFree() = %d, want 0", got)
	}
	if got := d.Pending(); got != TxBufferSize {
		t.Errorf("Pending() = %d while held, want %d", got, TxBufferSize)
	}

	port.Release()
	want := append(append([]byte(nil), fill...), packet[:10]...)
	if got := port.WaitWritten(len(want), 2*time.Second); !bytes.Equal(got, want) {
		t.Errorf("port received %d bytes, want %d in order", len(got), len(want))
	}

	deadline := time.Now().Add(time.Second)
	for d.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := d.Pending(); got != 0 {
		t.Errorf("Pending() = %d after drain, want 0", got)
	}
}

func TestDriver_WrapAround(t *testing.T) {
	d, port := newTestDriver(t)

	var want []byte
	for i := 0; i < 5; i++ {
		chunk := bytes.Repeat([]byte{byte('a' + i)}, 900)
		want = append(want, chunk...)
		written := 0
		for written < len(chunk) {
			n, err := d.Write(chunk[written:])
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			written += n
			if n == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}
	if got := port.WaitWritten(len(want), 2*time.Second); !bytes.Equal(got, want) {
		t.Errorf("port received %d bytes, want %d in order", len(got), len(want))
	}
}

func TestDriver_ReadTimeoutReturnsZero(t *testing.T) {
	d, port := newTestDriver(t)

	buf := make([]byte, 16)
	n, err := d.Read(buf)
	if n != 0 || err != nil {
		t.Errorf("Read() with no data = %d, %v, want 0, nil", n, err)
	}

	port.Feed([]byte("ok"))
	n, err = d.Read(buf)
	if err != nil || string(buf[:n]) != "ok" {
		t.Errorf("Read() = %q, %v, want %q", buf[:n], err, "ok")
	}
}

func TestDriver_SetBaudrate(t *testing.T) {
	d, port := newTestDriver(t)

	if err := d.SetBaudrate(921600); err != nil {
		t.Fatalf("SetBaudrate() error = %v", err)
	}
	if got := d.Baudrate(); got != 921600 {
		t.Errorf("Baudrate() = %d, want 921600", got)
	}
	if got := port.Mode().BaudRate; got != 921600 {
		t.Errorf("port BaudRate = %d, want 921600", got)
	}
	if err := d.SetBaudrate(0); !syserr.IsInvalidArgument(err) {
		t.Errorf("SetBaudrate(0) error = %v, want InvalidArgument", err)
	}
}

func TestDriver_Closed(t *testing.T) {
	d, _ := newTestDriver(t)
	if !d.Opened() {
		t.Error("Opened() = false before Close")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if d.Opened() {
		t.Error("Opened() = true after Close")
	}

	if _, err := d.Write([]byte("x")); !syserr.IsInvalidState(err) {
		t.Errorf("Write() after Close error = %v, want InvalidState", err)
	}
	if _, err := d.Read(make([]byte, 1)); !syserr.IsInvalidState(err) {
		t.Errorf("Read() after Close error = %v, want InvalidState", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestBaudrates(t *testing.T) {
	tests := []struct {
		name       string
		allow1500k bool
		rate       uint32
		want       bool
	}{
		{"canonical", false, 115200, true},
		{"lowest", false, 9600, true},
		{"1.5M disabled", false, 1500000, false},
		{"1.5M enabled", true, 1500000, true},
		{"unsupported", true, 4800, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSupported(tt.rate, tt.allow1500k); got != tt.want {
				t.Errorf("IsSupported(%d, %v) = %v, want %v", tt.rate, tt.allow1500k, got, tt.want)
			}
		})
	}

	if got := len(Baudrates(false)); got != 8 {
		t.Errorf("len(Baudrates(false)) = %d, want 8", got)
	}
}
