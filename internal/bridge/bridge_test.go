package bridge

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/muurk/serial2ip/internal/nvs"
	"github.com/muurk/serial2ip/internal/syserr"
	"github.com/muurk/serial2ip/internal/uart"
	"github.com/muurk/serial2ip/internal/wifi"
)

type testRig struct {
	bridge *Bridge
	port   *uart.FakePort
	driver *uart.Driver
	store  *nvs.Store
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()
	return uint16(l.Addr().(*net.TCPAddr).Port)
}

func newRig(t *testing.T, store *nvs.Store) *testRig {
	t.Helper()
	if store == nil {
		store = nvs.NewMemory()
	}
	h, err := store.Open(Namespace)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	port := uart.NewFakePort()
	driver, err := uart.NewDriver(port, uart.DefaultBaudrate)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	b, err := New(driver, h, Options{Host: "127.0.0.1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		b.Stop()
		driver.Close()
	})
	return &testRig{bridge: b, port: port, driver: driver, store: store}
}

func (r *testRig) startServer(t *testing.T) string {
	t.Helper()
	if err := r.bridge.SetTCPPort(freePort(t)); err != nil {
		t.Fatalf("SetTCPPort() error = %v", err)
	}
	r.bridge.HandleWifiEvent(wifi.Event{Type: wifi.EventConnected, SSID: "home"})
	addr := r.bridge.Addr()
	if addr == nil {
		t.Fatal("TCP server not started after Connected")
	}
	return addr.String()
}

func (r *testRig) dial(t *testing.T, addr string, clients int) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, "client registration", func() bool {
		return r.bridge.GetStatus().TCPClientNum == clients
	})
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBridge_DefaultConfig(t *testing.T) {
	r := newRig(t, nil)

	st := r.bridge.GetStatus()
	if st.TCPPort != 5678 || st.UartBaudrate != 115200 {
		t.Errorf("GetStatus() = port %d baud %d, want 5678/115200", st.TCPPort, st.UartBaudrate)
	}
	if st.TCPStandby || st.Forwarding || !st.UartOpened {
		t.Errorf("GetStatus() = %+v, want uart opened and no server", st)
	}
}

func TestBridge_StatusTracksUartClose(t *testing.T) {
	r := newRig(t, nil)

	if err := r.driver.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	st := r.bridge.GetStatus()
	if st.UartOpened || st.Forwarding {
		t.Errorf("GetStatus() = %+v, want uart closed and not forwarding", st)
	}
}

func TestBridge_OptionDefaults(t *testing.T) {
	tests := []struct {
		name     string
		defaults Config
		stored   bool
		wantPort uint16
		wantBaud uint32
	}{
		{"built-in", Config{}, false, 5678, 115200},
		{"configured", Config{TCPPort: 2323, Baudrate: 9600}, false, 2323, 9600},
		{"unsupported baud ignored", Config{Baudrate: 1234}, false, 5678, 115200},
		{"store wins", Config{TCPPort: 2323, Baudrate: 9600}, true, 4000, 57600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := nvs.NewMemory().Open(Namespace)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if tt.stored {
				_ = h.SetU16("tcp_port", 4000)
				_ = h.SetU32("baudrate", 57600)
				if err := h.Commit(); err != nil {
					t.Fatalf("Commit() error = %v", err)
				}
			}
			driver, err := uart.NewDriver(uart.NewFakePort(), uart.DefaultBaudrate)
			if err != nil {
				t.Fatalf("NewDriver() error = %v", err)
			}
			defer driver.Close()

			b, err := New(driver, h, Options{Defaults: tt.defaults})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			st := b.GetStatus()
			if st.TCPPort != tt.wantPort || st.UartBaudrate != tt.wantBaud {
				t.Errorf("GetStatus() = port %d baud %d, want %d/%d", st.TCPPort, st.UartBaudrate, tt.wantPort, tt.wantBaud)
			}
		})
	}
}

func TestBridge_UartToTCPTransparency(t *testing.T) {
	r := newRig(t, nil)
	addr := r.startServer(t)

	a := r.dial(t, addr, 1)
	b := r.dial(t, addr, 2)

	payload := []byte{0x00, 0xFF, 0x41, 0x42}
	r.port.Feed(payload)

	for i, conn := range []net.Conn{a, b} {
		got := make([]byte, len(payload))
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		if _, err := io.ReadFull(conn, got); err != nil {
			t.Fatalf("client %d ReadFull() error = %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("client %d received % x, want % x", i, got, payload)
		}
	}

	stats := r.bridge.GetStats()
	if stats.UartRxBytes != 4 || stats.TCPTxBytes != 4 {
		t.Errorf("stats = rx %d tx %d, want 4/4", stats.UartRxBytes, stats.TCPTxBytes)
	}
	if stats.TCPConnectCount != 2 {
		t.Errorf("TCPConnectCount = %d, want 2", stats.TCPConnectCount)
	}
}

func TestBridge_NoClientsNoTCPTx(t *testing.T) {
	r := newRig(t, nil)
	r.startServer(t)

	r.port.Feed(make([]byte, 1024))
	waitFor(t, "uart rx accounting", func() bool {
		return r.bridge.GetStats().UartRxBytes == 1024
	})

	stats := r.bridge.GetStats()
	if stats.TCPTxBytes != 0 || stats.TCPTxErrorBytes != 0 {
		t.Errorf("stats = %+v, want no tcp counters without clients", stats)
	}
}

func TestBridge_UartOnlyMode(t *testing.T) {
	r := newRig(t, nil)

	busy, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer busy.Close()
	if err := r.bridge.SetTCPPort(uint16(busy.Addr().(*net.TCPAddr).Port)); err != nil {
		t.Fatalf("SetTCPPort() error = %v", err)
	}

	r.bridge.HandleWifiEvent(wifi.Event{Type: wifi.EventConnected})
	if r.bridge.Server() != nil {
		t.Fatal("server present although its port is taken")
	}

	r.port.Feed([]byte("abc"))
	waitFor(t, "uart rx accounting", func() bool {
		return r.bridge.GetStats().UartRxBytes == 3
	})
	if st := r.bridge.GetStatus(); st.Forwarding {
		t.Error("Forwarding = true in uart only mode")
	}
}

func TestBridge_TCPToUartDropAccounting(t *testing.T) {
	r := newRig(t, nil)
	addr := r.startServer(t)
	conn := r.dial(t, addr, 1)

	r.port.Hold()
	fill := bytes.Repeat([]byte{'.'}, uart.TxBufferSize-10)
	if n, _ := r.driver.Write(fill); n != len(fill) {
		t.Fatalf("fill Write() = %d, want %d", n, len(fill))
	}
	if free := r.driver.TxFree(); free != 10 {
		t.Fatalf("TxFree() = %d, want 10", free)
	}

	packet := []byte("ABCDEFGHIJKLMNOPQRST")
	if _, err := conn.Write(packet); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	waitFor(t, "tcp rx accounting", func() bool {
		return r.bridge.GetStats().TCPRxBytes == 20
	})

	stats := r.bridge.GetStats()
	if stats.UartTxBytes != 10 || stats.UartTxDropBytes != 10 || stats.UartTxErrorBytes != 0 {
		t.Errorf("stats = tx %d drop %d err %d, want 10/10/0",
			stats.UartTxBytes, stats.UartTxDropBytes, stats.UartTxErrorBytes)
	}

	r.port.Release()
	want := append(append([]byte(nil), fill...), packet[:10]...)
	got := r.port.WaitWritten(len(want), 2*time.Second)
	if !bytes.Equal(got, want) {
		t.Errorf("wire received %d bytes, want %d in order", len(got), len(want))
	}
}

func TestBridge_ByteConservation(t *testing.T) {
	r := newRig(t, nil)
	addr := r.startServer(t)
	conn := r.dial(t, addr, 1)

	r.port.Hold()
	total := 0
	for i := 0; i < 5; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 700)
		if _, err := conn.Write(chunk); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		total += len(chunk)
		waitFor(t, "chunk accounting", func() bool {
			return r.bridge.GetStats().TCPRxBytes == uint32(total)
		})
	}

	s := r.bridge.GetStats()
	if got := s.UartTxBytes + s.UartTxDropBytes + s.UartTxErrorBytes; got != uint32(total) {
		t.Errorf("tx %d + drop %d + err %d = %d, want %d",
			s.UartTxBytes, s.UartTxDropBytes, s.UartTxErrorBytes, got, total)
	}
	if s.UartTxDropBytes == 0 {
		t.Error("UartTxDropBytes = 0, want drops with a stalled line")
	}
	r.port.Release()
}

func TestBridge_DisconnectedStopsServer(t *testing.T) {
	r := newRig(t, nil)
	addr := r.startServer(t)
	conn := r.dial(t, addr, 1)

	r.bridge.HandleWifiEvent(wifi.Event{Type: wifi.EventDisconnected})
	if r.bridge.Server() != nil {
		t.Fatal("server still present after Disconnected")
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("client still connected after Disconnected")
	}
	if got := r.bridge.GetStats().TCPDisconnectCount; got != 1 {
		t.Errorf("TCPDisconnectCount = %d, want 1", got)
	}
}

func TestBridge_BaudratePersists(t *testing.T) {
	store := nvs.NewMemory()
	r := newRig(t, store)

	if err := r.bridge.SetBaudrate(57600); err != nil {
		t.Fatalf("SetBaudrate() error = %v", err)
	}
	if got := r.bridge.GetStatus().UartBaudrate; got != 57600 {
		t.Errorf("UartBaudrate = %d, want 57600", got)
	}
	if got := r.port.Mode().BaudRate; got != 57600 {
		t.Errorf("port BaudRate = %d, want 57600", got)
	}

	again := newRig(t, store)
	if got := again.bridge.GetStatus().UartBaudrate; got != 57600 {
		t.Errorf("UartBaudrate after re-init = %d, want 57600", got)
	}
	if got := again.port.Mode().BaudRate; got != 57600 {
		t.Errorf("re-init port BaudRate = %d, want 57600", got)
	}
}

func TestBridge_SetBaudrateValidation(t *testing.T) {
	r := newRig(t, nil)

	tests := []struct {
		name    string
		baud    uint32
		wantErr bool
	}{
		{"canonical", 9600, false},
		{"fast", 921600, false},
		{"1.5M not enabled", 1500000, true},
		{"odd rate", 12345, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.bridge.SetBaudrate(tt.baud)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetBaudrate(%d) error = %v, wantErr %v", tt.baud, err, tt.wantErr)
			}
			if err != nil && !syserr.IsInvalidArgument(err) {
				t.Errorf("SetBaudrate(%d) error = %v, want InvalidArgument", tt.baud, err)
			}
		})
	}
}

func TestBridge_TCPPortPersists(t *testing.T) {
	store := nvs.NewMemory()
	r := newRig(t, store)

	if err := r.bridge.SetTCPPort(6000); err != nil {
		t.Fatalf("SetTCPPort() error = %v", err)
	}
	if err := r.bridge.SetTCPPort(0); !syserr.IsInvalidArgument(err) {
		t.Errorf("SetTCPPort(0) error = %v, want InvalidArgument", err)
	}

	again := newRig(t, store)
	if got := again.bridge.Config().TCPPort; got != 6000 {
		t.Errorf("TCPPort after re-init = %d, want 6000", got)
	}
}

func TestBridge_ResetStats(t *testing.T) {
	r := newRig(t, nil)
	r.port.Feed([]byte("xyz"))
	waitFor(t, "uart rx accounting", func() bool {
		return r.bridge.GetStats().UartRxBytes == 3
	})

	r.bridge.ResetStats()
	if got := r.bridge.GetStats(); got != (Stats{}) {
		t.Errorf("GetStats() after reset = %+v, want zero", got)
	}
}

func TestBridge_StartsWithStationLink(t *testing.T) {
	radio := wifi.NewSimRadio(wifi.SimNetwork{SSID: "home", Password: "secret", RSSI: -48})
	store := nvs.NewMemory()
	wh, err := store.Open(wifi.Namespace)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := wifi.NewStore(wh, nil).AddOrUpdate("home", "secret", true); err != nil {
		t.Fatalf("AddOrUpdate() error = %v", err)
	}

	cfg := wifi.DefaultConfig()
	cfg.InitialDelay = 0
	cfg.TickInterval = 10 * time.Millisecond
	m := wifi.NewManager(radio, wh, cfg)

	r := newRig(t, store)
	port := freePort(t)
	if err := r.bridge.SetTCPPort(port); err != nil {
		t.Fatalf("SetTCPPort() error = %v", err)
	}
	r.bridge.Attach(m)

	connected := make(chan time.Time, 1)
	m.Subscribe(func(ev wifi.Event) {
		if ev.Type == wifi.EventConnected {
			select {
			case connected <- time.Now():
			default:
			}
		}
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	var at time.Time
	select {
	case at = <-connected:
	case <-time.After(15 * time.Second):
		t.Fatal("station never connected")
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		if time.Since(at) > 500*time.Millisecond {
			t.Fatalf("port %d not listening within 500ms of Connected: %v", port, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if st := m.GetStatus(); st.State != wifi.StateConnected || st.SSID != "home" {
		t.Errorf("station = %v/%q, want Connected/home", st.State, st.SSID)
	}
	if !r.bridge.GetStatus().Forwarding {
		t.Error("Forwarding = false with the station connected")
	}
}
