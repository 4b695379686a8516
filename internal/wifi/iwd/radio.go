package iwd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/wifi"
	"go.uber.org/zap"
)

const (
	IWDService        = "net.connman.iwd"
	StationIface      = "net.connman.iwd.Station"
	DeviceIface       = "net.connman.iwd.Device"
	NetworkIface      = "net.connman.iwd.Network"
	KnownNetworkIface = "net.connman.iwd.KnownNetwork"

	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
)

type orderedNetwork struct {
	Path dbus.ObjectPath
	RSSI int16 // 1/100 dBm
}

// Radio drives the station through iwd over the system D-Bus. It implements
// wifi.Radio.
type Radio struct {
	iface string
	log   *zap.Logger

	conn        *dbus.Conn
	agent       *Agent
	addr        *AddrWatcher
	signals     chan *dbus.Signal
	stationPath dbus.ObjectPath
	handler     func(wifi.RadioEvent)

	mu       sync.Mutex
	state    string
	linked   string
	linkPath dbus.ObjectPath
	attempt  string
	networks map[string]dbus.ObjectPath
}

// New creates a radio for the given interface. An empty iface uses the
// first station iwd reports.
func New(iface string) *Radio {
	return &Radio{
		iface:    iface,
		log:      logging.Component("iwd"),
		networks: make(map[string]dbus.ObjectPath),
	}
}

// Start implements wifi.Radio.
func (r *Radio) Start(handler func(wifi.RadioEvent)) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	r.conn = conn
	r.handler = handler

	if err := r.findStation(); err != nil {
		return err
	}

	rule := fmt.Sprintf("type='signal',sender='%s',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'", IWDService)
	if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("failed to subscribe to iwd signals: %w", err)
	}
	r.signals = make(chan *dbus.Signal, 16)
	conn.Signal(r.signals)
	go r.watchSignals(r.signals)

	r.agent = newAgent(conn, r.log)
	if err := r.agent.register(); err != nil {
		r.log.Warn("Failed to register agent, only known networks can connect", zap.Error(err))
	}

	if w, err := NewAddrWatcher(r.iface, r.log); err != nil {
		r.log.Warn("Address watcher unavailable, no GotIP events", zap.Error(err))
	} else {
		r.addr = w
		go w.Run(r.onLease)
	}

	r.log.Info("iwd station ready", zap.String("interface", r.iface), zap.String("path", string(r.stationPath)))
	return nil
}

// findStation locates the station object, matching the configured
// interface name if there is one.
func (r *Radio) findStation() error {
	obj := r.conn.Object(IWDService, "/")

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects); err != nil {
		return fmt.Errorf("failed to get managed objects: %w", err)
	}

	for path, ifaces := range objects {
		station, ok := ifaces[StationIface]
		if !ok {
			continue
		}
		name := ""
		if dev, ok := ifaces[DeviceIface]; ok {
			if v, ok := dev["Name"]; ok {
				name, _ = v.Value().(string)
			}
		}
		if r.iface != "" && name != r.iface {
			continue
		}
		r.stationPath = path
		r.iface = name
		if v, ok := station["State"]; ok {
			r.state, _ = v.Value().(string)
		}
		return nil
	}
	return errors.New("no iwd station found")
}

// Stop implements wifi.Radio.
func (r *Radio) Stop() error {
	if r.conn == nil {
		return nil
	}
	if r.addr != nil {
		r.addr.Close()
	}
	if r.agent != nil {
		if err := r.agent.unregister(); err != nil {
			r.log.Debug("Failed to unregister agent", zap.Error(err))
		}
	}
	r.conn.RemoveSignal(r.signals)
	close(r.signals)
	return r.conn.Close()
}

func (r *Radio) station() dbus.BusObject {
	return r.conn.Object(IWDService, r.stationPath)
}

// Scan implements wifi.Radio.
func (r *Radio) Scan() error {
	err := r.station().Call(StationIface+".Scan", 0).Err
	if errorName(err) == "net.connman.iwd.InProgress" {
		// iwd is already scanning; its end is reported the same way.
		return nil
	}
	return err
}

// ScanResults implements wifi.Radio.
func (r *Radio) ScanResults() ([]wifi.ScanEntry, error) {
	var ordered []orderedNetwork
	if err := r.station().Call(StationIface+".GetOrderedNetworks", 0).Store(&ordered); err != nil {
		return nil, fmt.Errorf("GetOrderedNetworks failed: %w", err)
	}

	entries := make([]wifi.ScanEntry, 0, len(ordered))
	paths := make(map[string]dbus.ObjectPath, len(ordered))
	for _, n := range ordered {
		name, err := r.networkName(n.Path)
		if err != nil {
			r.log.Debug("Skipping network", zap.String("path", string(n.Path)), zap.Error(err))
			continue
		}
		paths[name] = n.Path
		entries = append(entries, wifi.ScanEntry{SSID: name, RSSI: toDBm(n.RSSI)})
	}

	r.mu.Lock()
	r.networks = paths
	r.mu.Unlock()
	return entries, nil
}

func (r *Radio) networkName(path dbus.ObjectPath) (string, error) {
	var props map[string]dbus.Variant
	if err := r.conn.Object(IWDService, path).Call("org.freedesktop.DBus.Properties.GetAll", 0, NetworkIface).Store(&props); err != nil {
		return "", err
	}
	v, ok := props["Name"]
	if !ok {
		return "", errors.New("network has no name")
	}
	name, _ := v.Value().(string)
	return name, nil
}

// Connect implements wifi.Radio. The attempt runs in the background; its
// outcome arrives through the station State property.
func (r *Radio) Connect(ssid, password string) error {
	r.mu.Lock()
	path, ok := r.networks[ssid]
	r.mu.Unlock()
	if !ok {
		if _, err := r.ScanResults(); err != nil {
			return err
		}
		r.mu.Lock()
		path, ok = r.networks[ssid]
		r.mu.Unlock()
		if !ok {
			return fmt.Errorf("network %q not in range", ssid)
		}
	}

	r.mu.Lock()
	r.attempt = ssid
	r.mu.Unlock()

	if password != "" {
		r.agent.setPending(path, password)
	}

	go func() {
		err := r.conn.Object(IWDService, path).Call(NetworkIface+".Connect", 0).Err
		r.agent.clearPending(path)
		if err == nil {
			return
		}
		r.log.Debug("Network.Connect failed", zap.String("ssid", ssid), zap.Error(err))

		r.mu.Lock()
		stillDown := r.state != "connected"
		r.mu.Unlock()
		if stillDown {
			r.handler(wifi.RadioEvent{Type: wifi.RadioDisconnected, SSID: ssid, Reason: errorName(err)})
		}
	}()
	return nil
}

// Disconnect implements wifi.Radio.
func (r *Radio) Disconnect() error {
	err := r.station().Call(StationIface+".Disconnect", 0).Err
	if errorName(err) == "net.connman.iwd.NotConnected" {
		return nil
	}
	return err
}

// Signal implements wifi.Radio.
func (r *Radio) Signal() (int8, bool) {
	r.mu.Lock()
	path := r.linkPath
	r.mu.Unlock()
	if path == "" {
		return 0, false
	}

	var ordered []orderedNetwork
	if err := r.station().Call(StationIface+".GetOrderedNetworks", 0).Store(&ordered); err != nil {
		return 0, false
	}
	for _, n := range ordered {
		if n.Path == path {
			return toDBm(n.RSSI), true
		}
	}
	return 0, false
}

func (r *Radio) watchSignals(ch <-chan *dbus.Signal) {
	for sig := range ch {
		if sig.Name != propertiesChanged || sig.Path != r.stationPath || len(sig.Body) < 2 {
			continue
		}
		iface, _ := sig.Body[0].(string)
		props, _ := sig.Body[1].(map[string]dbus.Variant)
		if iface != StationIface || props == nil {
			continue
		}
		r.handleStationChange(props)
	}
}

func (r *Radio) handleStationChange(props map[string]dbus.Variant) {
	if v, ok := props["Scanning"]; ok {
		if scanning, _ := v.Value().(bool); !scanning {
			r.handler(wifi.RadioEvent{Type: wifi.RadioScanDone, ScanOK: true})
		}
	}

	v, ok := props["State"]
	if !ok {
		return
	}
	state, _ := v.Value().(string)

	r.mu.Lock()
	prev := r.state
	r.state = state
	r.mu.Unlock()

	switch state {
	case "connected":
		if prev == "connected" || prev == "roaming" {
			return
		}
		r.onConnected(props)
	case "disconnected":
		r.mu.Lock()
		ssid := r.linked
		if ssid == "" {
			ssid = r.attempt
		}
		r.linked, r.linkPath, r.attempt = "", "", ""
		r.mu.Unlock()
		r.handler(wifi.RadioEvent{Type: wifi.RadioDisconnected, SSID: ssid, Reason: "iwd: " + prev + " -> disconnected"})
	}
}

func (r *Radio) onConnected(props map[string]dbus.Variant) {
	var path dbus.ObjectPath
	if v, ok := props["ConnectedNetwork"]; ok {
		path, _ = v.Value().(dbus.ObjectPath)
	}
	if path == "" {
		v, err := r.station().GetProperty(StationIface + ".ConnectedNetwork")
		if err == nil {
			path, _ = v.Value().(dbus.ObjectPath)
		}
	}

	ssid, err := r.networkName(path)
	if err != nil {
		r.mu.Lock()
		ssid = r.attempt
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.linked = ssid
	r.linkPath = path
	r.attempt = ""
	r.mu.Unlock()

	rssi, _ := r.Signal()
	r.handler(wifi.RadioEvent{Type: wifi.RadioConnected, SSID: ssid, RSSI: rssi})

	// A lease may already be in place when the link comes back quickly.
	if r.addr != nil {
		if lease, ok := r.addr.Current(); ok {
			r.onLease(lease)
		}
	}
}

func (r *Radio) onLease(lease Lease) {
	r.mu.Lock()
	linked := r.state == "connected" || r.state == "roaming"
	r.mu.Unlock()
	if !linked {
		return
	}

	ev := wifi.RadioEvent{
		Type:    wifi.RadioGotIP,
		IP:      wifi.PackIPv4(lease.IP),
		Netmask: wifi.PackIPv4(lease.MaskIP()),
		Gateway: wifi.PackIPv4(lease.Gateway),
	}
	if len(lease.DNS) > 0 {
		ev.DNS1 = wifi.PackIPv4(lease.DNS[0])
	}
	if len(lease.DNS) > 1 {
		ev.DNS2 = wifi.PackIPv4(lease.DNS[1])
	}
	r.handler(ev)
}

// toDBm converts iwd's 1/100 dBm to dBm, clamped to int8.
func toDBm(centi int16) int8 {
	dbm := int(centi) / 100
	if dbm < -128 {
		dbm = -128
	}
	if dbm > 0 {
		dbm = 0
	}
	return int8(dbm)
}

func errorName(err error) string {
	if err == nil {
		return ""
	}
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name
	}
	var dp *dbus.Error
	if errors.As(err, &dp) {
		return dp.Name
	}
	return ""
}
