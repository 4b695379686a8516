package discovery

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/version"
	"go.uber.org/zap"
)

// registerFunc matches zeroconf.Register.
type registerFunc func(instance, service, domain string, port int, text []string) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

func zeroconfRegister(instance, service, domain string, port int, text []string) (shutdowner, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, text, nil)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Advertiser publishes the bridge's TCP endpoint while the server listens.
type Advertiser struct {
	instance string
	baud     func() uint32
	register registerFunc
	log      *zap.Logger

	mu     sync.Mutex
	server shutdowner
	port   uint16
}

// NewAdvertiser creates an advertiser for the given instance name. baud
// reports the current UART rate for the TXT record and may be nil.
func NewAdvertiser(instance string, baud func() uint32) *Advertiser {
	if instance == "" {
		instance = version.Model + "-" + version.Serial
	}
	return &Advertiser{
		instance: instance,
		baud:     baud,
		register: zeroconfRegister,
		log:      logging.Component("mdns"),
	}
}

// Text returns the TXT record published with the service.
func (a *Advertiser) Text() []string {
	txt := []string{
		"serial=" + version.Serial,
		"model=" + version.Model,
		"version=" + version.Version,
	}
	if a.baud != nil {
		txt = append(txt, "baud="+strconv.FormatUint(uint64(a.baud()), 10))
	}
	return txt
}

// Update registers the service when the server starts listening and
// withdraws it when the server stops. It has the shape of the bridge's
// server change callback.
func (a *Advertiser) Update(listening bool, port uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil && (!listening || port != a.port) {
		a.server.Shutdown()
		a.server = nil
		a.log.Info("Withdrew service", zap.Uint16("port", a.port))
	}
	if !listening || a.server != nil {
		return
	}

	srv, err := a.register(a.instance, ServiceType, ServiceDomain, int(port), a.Text())
	if err != nil {
		a.log.Warn("Failed to register service", zap.Uint16("port", port), zap.Error(err))
		return
	}
	a.server = srv
	a.port = port
	a.log.Info("Registered service",
		zap.String("instance", a.instance),
		zap.String("type", ServiceType),
		zap.Uint16("port", port))
}

// Advertising reports whether the service is currently registered and on
// which port.
func (a *Advertiser) Advertising() (bool, uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil, a.port
}

// Close withdraws the service if it is registered.
func (a *Advertiser) Close() {
	a.Update(false, 0)
}

// String describes the advertised service.
func (a *Advertiser) String() string {
	on, port := a.Advertising()
	if !on {
		return fmt.Sprintf("%s.%s (not advertised)", a.instance, ServiceType)
	}
	return fmt.Sprintf("%s.%s port %d", a.instance, ServiceType, port)
}
