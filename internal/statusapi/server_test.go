package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/nvs"
	"github.com/muurk/serial2ip/internal/syserr"
	"github.com/muurk/serial2ip/internal/wifi"
)

type fakeBridge struct {
	mu     sync.Mutex
	stats  bridge.Stats
	resets int
}

func (b *fakeBridge) GetStatus() bridge.Status {
	return bridge.Status{TCPStandby: true, UartOpened: true, UartBaudrate: 115200, TCPPort: 5678}
}

func (b *fakeBridge) GetStats() bridge.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *fakeBridge) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = bridge.Stats{}
	b.resets++
}

func (b *fakeBridge) resetCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

func newStation(t *testing.T, networks []wifi.SimNetwork, records ...string) *wifi.Manager {
	t.Helper()
	h, err := nvs.NewMemory().Open(wifi.Namespace)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	seed := wifi.NewStore(h, nil)
	for _, ssid := range records {
		if err := seed.AddOrUpdate(ssid, "secret", true); err != nil {
			t.Fatalf("AddOrUpdate() error = %v", err)
		}
	}

	cfg := wifi.DefaultConfig()
	cfg.AutoConnect = false
	m := wifi.NewManager(wifi.NewSimRadio(networks...), h, cfg)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { m.Stop() })
	return m
}

var labNetwork = wifi.SimNetwork{SSID: "lab", Password: "secret", RSSI: -50}

func newTestServer(t *testing.T, st Station, br Bridge) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(Config{}, st, br)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
	}
	return resp.StatusCode
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestNew_InvalidArguments(t *testing.T) {
	if _, err := New(Config{}, nil, &fakeBridge{}); !syserr.IsInvalidArgument(err) {
		t.Errorf("New(nil station) error = %v, want InvalidArgument", err)
	}
	st := newStation(t, nil)
	if _, err := New(Config{}, st, nil); !syserr.IsInvalidArgument(err) {
		t.Errorf("New(nil bridge) error = %v, want InvalidArgument", err)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, newStation(t, nil), &fakeBridge{})

	var body map[string]string
	if code := getJSON(t, http.MethodGet, ts.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", code)
	}
	if body["status"] != "ok" || body["model"] != "serial2ip" {
		t.Errorf("GET /healthz body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	st := newStation(t, []wifi.SimNetwork{labNetwork}, "lab")
	_, ts := newTestServer(t, st, &fakeBridge{})

	var before StatusResponse
	getJSON(t, http.MethodGet, ts.URL+"/api/status", &before)
	if before.Wifi.State != "Disconnected" || before.Wifi.SSID != "" || before.Wifi.IP != "0.0.0.0" {
		t.Errorf("status before connect = %+v", before.Wifi)
	}

	if err := st.Connect(context.Background(), "lab", "secret"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var after StatusResponse
	if code := getJSON(t, http.MethodGet, ts.URL+"/api/status", &after); code != http.StatusOK {
		t.Fatalf("GET /api/status = %d, want 200", code)
	}
	if after.Wifi.State != "Connected" || after.Wifi.SSID != "lab" {
		t.Errorf("status after connect = %+v", after.Wifi)
	}
	if after.Wifi.Level != 4 {
		t.Errorf("Wifi.Level = %d, want 4", after.Wifi.Level)
	}
	if after.Bridge.TCPPort != 5678 || !after.Bridge.TCPStandby {
		t.Errorf("Bridge = %+v", after.Bridge)
	}
}

func TestStatsAndReset(t *testing.T) {
	br := &fakeBridge{stats: bridge.Stats{UartRxBytes: 10, TCPConnectCount: 2}}
	_, ts := newTestServer(t, newStation(t, nil), br)

	var stats bridge.Stats
	getJSON(t, http.MethodGet, ts.URL+"/api/stats", &stats)
	if stats.UartRxBytes != 10 || stats.TCPConnectCount != 2 {
		t.Errorf("GET /api/stats = %+v", stats)
	}

	if code := getJSON(t, http.MethodPost, ts.URL+"/api/stats/reset", nil); code != http.StatusOK {
		t.Fatalf("POST /api/stats/reset = %d, want 200", code)
	}
	if n := br.resetCount(); n != 1 {
		t.Errorf("ResetStats() calls = %d, want 1", n)
	}
	getJSON(t, http.MethodGet, ts.URL+"/api/stats", &stats)
	if stats != (bridge.Stats{}) {
		t.Errorf("GET /api/stats after reset = %+v, want zero", stats)
	}

	if code := getJSON(t, http.MethodGet, ts.URL+"/api/stats/reset", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/stats/reset = %d, want 405", code)
	}
}

func TestRecords_HidePasswords(t *testing.T) {
	st := newStation(t, nil, "lab", "office")
	_, ts := newTestServer(t, st, &fakeBridge{})

	resp, err := http.Get(ts.URL + "/api/records")
	if err != nil {
		t.Fatalf("GET /api/records error = %v", err)
	}
	defer resp.Body.Close()
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if strings.Contains(string(raw["items"]), "secret") {
		t.Errorf("records leak password: %s", raw["items"])
	}

	var items []RecordView
	if err := json.Unmarshal(raw["items"], &items); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("records = %d, want 2", len(items))
	}
	for _, it := range items {
		if !it.HasPassword || !it.EverSuccess {
			t.Errorf("record %+v, want has_password and ever_success", it)
		}
	}
}

func TestScan(t *testing.T) {
	st := newStation(t, []wifi.SimNetwork{labNetwork, {SSID: "far", RSSI: -80}})
	_, ts := newTestServer(t, st, &fakeBridge{})

	var eb errorBody
	if code := getJSON(t, http.MethodGet, ts.URL+"/api/scan", &eb); code != http.StatusConflict {
		t.Errorf("GET /api/scan before scanning = %d, want 409", code)
	}
	if eb.Error.Code != "INVALID_STATE" {
		t.Errorf("error code = %q, want INVALID_STATE", eb.Error.Code)
	}

	if code := getJSON(t, http.MethodPost, ts.URL+"/api/scan", nil); code != http.StatusAccepted {
		t.Fatalf("POST /api/scan = %d, want 202", code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !st.Scanner().IsDone() {
		if time.Now().After(deadline) {
			t.Fatal("scan did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var body struct {
		Items []ScanView `json:"items"`
	}
	if code := getJSON(t, http.MethodGet, ts.URL+"/api/scan", &body); code != http.StatusOK {
		t.Fatalf("GET /api/scan = %d, want 200", code)
	}
	levels := map[string]int{}
	for _, it := range body.Items {
		levels[it.SSID] = it.Level
	}
	if levels["lab"] != 4 || levels["far"] != 1 {
		t.Errorf("scan levels = %v, want lab:4 far:1", levels)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", syserr.InvalidArgument("op", "bad"), http.StatusBadRequest},
		{"not found", syserr.NotFound("op", "gone"), http.StatusNotFound},
		{"invalid state", syserr.InvalidState("op", "down"), http.StatusConflict},
		{"scan in progress", syserr.New(syserr.ErrTypeScanInProgress, "op", "busy"), http.StatusConflict},
		{"timeout", syserr.Timeout("op", "slow"), http.StatusGatewayTimeout},
		{"io", syserr.IO("op", "broken", errors.New("eio")), http.StatusInternalServerError},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := httpStatus(tt.err); got != tt.want {
				t.Errorf("httpStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvents(t *testing.T) {
	st := newStation(t, []wifi.SimNetwork{labNetwork}, "lab")
	s, err := New(Config{Listen: "127.0.0.1:0", StatsInterval: 20 * time.Millisecond}, st, &fakeBridge{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Shutdown(context.Background())

	if err := s.Start(); !syserr.IsInvalidState(err) {
		t.Errorf("second Start() error = %v, want InvalidState", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/api/events", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var first Frame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Type != "stats" || first.Bridge == nil || first.Bridge.TCPPort != 5678 {
		t.Errorf("first frame = %+v, want stats with bridge status", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.GetActiveConnections() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("event client not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := st.Connect(context.Background(), "lab", "secret"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	for {
		var f Frame
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON() error = %v, want connected event", err)
		}
		if f.Type == "wifi" && f.Event != nil && f.Event.Name == "connected" {
			if f.Event.SSID != "lab" {
				t.Errorf("event SSID = %q, want lab", f.Event.SSID)
			}
			break
		}
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if n := s.GetActiveConnections(); n != 0 {
		t.Errorf("GetActiveConnections() after Shutdown = %d, want 0", n)
	}
}
