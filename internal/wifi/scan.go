package wifi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/muurk/serial2ip/internal/syserr"
	"go.uber.org/zap"
)

// Scanner coordinates access to the radio's scan. At most one driver scan
// runs at a time; callers that ask for a scan while one is running share
// its result.
type Scanner struct {
	radio Radio
	log   *zap.Logger

	mu        sync.Mutex
	up        bool
	inFlight  bool
	done      bool
	results   []ScanEntry
	lastCount int
	run       *scanRun
	launched  int
}

// scanRun is one driver scan. done is closed once entries and ok are set.
type scanRun struct {
	done    chan struct{}
	entries []ScanEntry
	ok      bool
}

// NewScanner creates a scanner for radio. The radio is considered down until
// SetRadioUp(true).
func NewScanner(radio Radio, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{radio: radio, log: log}
}

// SetRadioUp records whether the radio can scan.
func (s *Scanner) SetRadioUp(up bool) {
	s.mu.Lock()
	s.up = up
	s.mu.Unlock()
}

// StartAsync starts a scan, or joins the one already running.
func (s *Scanner) StartAsync() error {
	_, err := s.start(false)
	return err
}

// StartAsyncExclusive starts a scan and fails with ScanInProgress instead of
// joining a running one.
func (s *Scanner) StartAsyncExclusive() error {
	_, err := s.start(true)
	return err
}

// start returns the scan it started or joined.
func (s *Scanner) start(exclusive bool) (*scanRun, error) {
	s.mu.Lock()
	if !s.up {
		s.mu.Unlock()
		return nil, syserr.InvalidState("wifi.scan", "radio is not up")
	}
	if s.inFlight {
		run := s.run
		s.mu.Unlock()
		if exclusive {
			return nil, syserr.New(syserr.ErrTypeScanInProgress, "wifi.scan", "scan already running")
		}
		return run, nil
	}
	s.inFlight = true
	s.done = false
	s.run = &scanRun{done: make(chan struct{})}
	s.launched++
	run := s.run
	s.mu.Unlock()

	if err := s.radio.Scan(); err != nil {
		s.log.Warn("Failed to start scan", zap.Error(err))
		s.finish(nil, false)
		return nil, syserr.IO("wifi.scan", "failed to start scan", err)
	}
	return run, nil
}

// handleScanDone is called by the manager when the driver reports the end of
// a scan.
func (s *Scanner) handleScanDone(ok bool) {
	if !ok {
		s.finish(nil, false)
		return
	}
	entries, err := s.radio.ScanResults()
	if err != nil {
		s.log.Warn("Failed to fetch scan results", zap.Error(err))
		s.finish(nil, false)
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RSSI > entries[j].RSSI
	})
	s.finish(entries, true)
}

func (s *Scanner) finish(entries []ScanEntry, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inFlight {
		// Spurious completion, e.g. a scan the driver ran on its own.
		if ok {
			s.results = entries
			s.lastCount = len(entries)
			s.done = true
		}
		return
	}

	if ok {
		s.results = entries
		s.lastCount = len(entries)
	} else {
		s.lastCount = 0
	}
	s.inFlight = false
	s.done = true
	s.run.entries = entries
	s.run.ok = ok
	close(s.run.done)
	s.log.Debug("Scan finished", zap.Bool("ok", ok), zap.Int("count", s.lastCount))
}

// IsDone reports whether a scan has completed and no other one is running.
func (s *Scanner) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done && !s.inFlight
}

// LastCount is the number of entries found by the last scan, 0 if it failed.
func (s *Scanner) LastCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCount
}

// Result returns a copy of the most recent successful scan result.
func (s *Scanner) Result() ([]ScanEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight || !s.done {
		return nil, syserr.InvalidState("wifi.scan", "no completed scan")
	}
	out := make([]ScanEntry, len(s.results))
	copy(out, s.results)
	return out, nil
}

// ScanBlocking starts or joins a scan and waits for it up to timeout.
func (s *Scanner) ScanBlocking(ctx context.Context, timeout time.Duration) ([]ScanEntry, error) {
	run, err := s.start(false)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-run.done:
	case <-timer.C:
		return nil, syserr.Timeout("wifi.scan", "scan did not finish within %s", timeout)
	case <-ctx.Done():
		return nil, syserr.Wrap(syserr.ErrTypeTimeout, "wifi.scan", "scan wait cancelled", ctx.Err())
	}

	if !run.ok {
		return nil, syserr.New(syserr.ErrTypeIO, "wifi.scan", "scan failed")
	}
	out := make([]ScanEntry, len(run.entries))
	copy(out, run.entries)
	return out, nil
}

// launches reports how many driver scans were started.
func (s *Scanner) launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}
