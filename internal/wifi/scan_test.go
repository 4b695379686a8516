package wifi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/muurk/serial2ip/internal/syserr"
)

// heldRadio starts scans but only finishes them when told to.
type heldRadio struct {
	mu      sync.Mutex
	scans   int
	results []ScanEntry
}

func (r *heldRadio) Start(func(RadioEvent)) error { return nil }
func (r *heldRadio) Stop() error                  { return nil }
func (r *heldRadio) Connect(string, string) error { return nil }
func (r *heldRadio) Disconnect() error            { return nil }
func (r *heldRadio) Signal() (int8, bool)         { return 0, false }

func (r *heldRadio) Scan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans++
	return nil
}

func (r *heldRadio) ScanResults() ([]ScanEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScanEntry(nil), r.results...), nil
}

func TestScanner_SharesInFlightScan(t *testing.T) {
	radio := &heldRadio{results: []ScanEntry{
		{SSID: "weak", RSSI: -80},
		{SSID: "strong", RSSI: -40},
	}}
	s := NewScanner(radio, nil)
	s.SetRadioUp(true)

	if err := s.StartAsync(); err != nil {
		t.Fatalf("StartAsync() error = %v", err)
	}
	if err := s.StartAsync(); err != nil {
		t.Fatalf("second StartAsync() error = %v", err)
	}
	if radio.scans != 1 {
		t.Errorf("driver scans = %d, want 1", radio.scans)
	}
	if s.IsDone() {
		t.Error("IsDone() = true while scan in flight")
	}
	if _, err := s.Result(); !syserr.IsInvalidState(err) {
		t.Errorf("Result() during scan error = %v, want InvalidState", err)
	}

	s.handleScanDone(true)

	if !s.IsDone() {
		t.Fatal("IsDone() = false after completion")
	}
	a, _ := s.Result()
	b, _ := s.Result()
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("Result() lengths = %d, %d, want 2", len(a), len(b))
	}
	if a[0].SSID != "strong" || a[1].SSID != "weak" {
		t.Errorf("Result() = %+v, want sorted by RSSI", a)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("Result() differs between callers at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestScanner_ExclusiveRefusesToShare(t *testing.T) {
	s := NewScanner(&heldRadio{}, nil)
	s.SetRadioUp(true)

	_ = s.StartAsync()
	err := s.StartAsyncExclusive()
	if !syserr.Is(err, syserr.ErrTypeScanInProgress) {
		t.Errorf("StartAsyncExclusive() error = %v, want ScanInProgress", err)
	}
}

func TestScanner_FailureKeepsPreviousResults(t *testing.T) {
	radio := &heldRadio{results: []ScanEntry{{SSID: "home", RSSI: -50}}}
	s := NewScanner(radio, nil)
	s.SetRadioUp(true)

	_ = s.StartAsync()
	s.handleScanDone(true)

	_ = s.StartAsync()
	s.handleScanDone(false)

	if !s.IsDone() {
		t.Error("IsDone() = false after failed scan")
	}
	if s.LastCount() != 0 {
		t.Errorf("LastCount() = %d, want 0", s.LastCount())
	}
	got, err := s.Result()
	if err != nil || len(got) != 1 || got[0].SSID != "home" {
		t.Errorf("Result() = %+v, %v, want previous result", got, err)
	}
}

func TestScanner_BlockingRadioDown(t *testing.T) {
	s := NewScanner(&heldRadio{}, nil)

	start := time.Now()
	_, err := s.ScanBlocking(context.Background(), 5*time.Second)
	if !syserr.IsInvalidState(err) {
		t.Errorf("ScanBlocking() error = %v, want InvalidState", err)
	}
	if time.Since(start) > time.Second {
		t.Error("ScanBlocking() did not return immediately with the radio down")
	}
}

func TestScanner_BlockingTimeout(t *testing.T) {
	s := NewScanner(&heldRadio{}, nil)
	s.SetRadioUp(true)

	_, err := s.ScanBlocking(context.Background(), 50*time.Millisecond)
	if !syserr.IsTimeout(err) {
		t.Errorf("ScanBlocking() error = %v, want Timeout", err)
	}
}

func TestScanner_BlockingNoNetworks(t *testing.T) {
	radio := NewSimRadio()
	m := &Manager{scanner: NewScanner(radio, nil)}
	if err := radio.Start(m.handleRadioEvent); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer radio.Stop()
	m.scanner.SetRadioUp(true)

	got, err := m.scanner.ScanBlocking(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("ScanBlocking() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ScanBlocking() = %d entries, want 0", len(got))
	}
}
