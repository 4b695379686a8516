package discovery

import (
	"errors"
	"strings"
	"testing"
)

type fakeServer struct {
	port     int
	text     []string
	shutdown bool
}

func (s *fakeServer) Shutdown() { s.shutdown = true }

type fakeRegistry struct {
	servers []*fakeServer
	fail    bool
}

func (r *fakeRegistry) register(instance, service, domain string, port int, text []string) (shutdowner, error) {
	if r.fail {
		return nil, errors.New("no multicast interface")
	}
	s := &fakeServer{port: port, text: text}
	r.servers = append(r.servers, s)
	return s, nil
}

func newTestAdvertiser(reg *fakeRegistry) *Advertiser {
	a := NewAdvertiser("bench", func() uint32 { return 115200 })
	a.register = reg.register
	return a
}

func TestAdvertiser_Update(t *testing.T) {
	reg := &fakeRegistry{}
	a := newTestAdvertiser(reg)

	a.Update(true, 5678)
	if on, port := a.Advertising(); !on || port != 5678 {
		t.Fatalf("Advertising() = %v, %d, want true, 5678", on, port)
	}

	// Same port again is a no-op.
	a.Update(true, 5678)
	if len(reg.servers) != 1 {
		t.Errorf("registrations = %d, want 1", len(reg.servers))
	}

	a.Update(true, 6000)
	if len(reg.servers) != 2 {
		t.Fatalf("registrations = %d, want 2", len(reg.servers))
	}
	if !reg.servers[0].shutdown {
		t.Error("old registration not shut down after port change")
	}
	if reg.servers[1].port != 6000 {
		t.Errorf("new registration port = %d, want 6000", reg.servers[1].port)
	}

	a.Update(false, 6000)
	if on, _ := a.Advertising(); on {
		t.Error("Advertising() = true after server stopped")
	}
	if !reg.servers[1].shutdown {
		t.Error("registration not shut down after server stopped")
	}
}

func TestAdvertiser_RegisterFailure(t *testing.T) {
	reg := &fakeRegistry{fail: true}
	a := newTestAdvertiser(reg)

	a.Update(true, 5678)
	if on, _ := a.Advertising(); on {
		t.Error("Advertising() = true after failed registration")
	}

	reg.fail = false
	a.Update(true, 5678)
	if on, _ := a.Advertising(); !on {
		t.Error("Advertising() = false after retry")
	}
	a.Close()
	if !reg.servers[0].shutdown {
		t.Error("Close() did not withdraw the service")
	}
}

func TestAdvertiser_Text(t *testing.T) {
	a := newTestAdvertiser(&fakeRegistry{})
	txt := strings.Join(a.Text(), " ")
	for _, want := range []string{"serial=", "model=serial2ip", "version=", "baud=115200"} {
		if !strings.Contains(txt, want) {
			t.Errorf("Text() = %q, want it to contain %q", txt, want)
		}
	}
}

func TestAdvertiser_DefaultInstance(t *testing.T) {
	a := NewAdvertiser("", nil)
	if !strings.HasPrefix(a.instance, "serial2ip-") {
		t.Errorf("instance = %q, want serial2ip- prefix", a.instance)
	}
	for _, kv := range a.Text() {
		if strings.HasPrefix(kv, "baud=") {
			t.Errorf("Text() contains %q without a baud source", kv)
		}
	}
	if got := a.String(); !strings.Contains(got, "not advertised") {
		t.Errorf("String() = %q, want not advertised", got)
	}
}
