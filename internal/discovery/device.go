package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is a serial2ip bridge found on the network.
type Device struct {
	// Instance is the advertised service instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "bench-bridge.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the device has none
	IP string

	// Port is the raw TCP port of the bridge
	Port int

	// Serial is the device serial from the "serial" TXT key
	Serial string

	// Metadata holds all TXT record data.
	// Common keys: "serial", "model", "version", "baud"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("serial2ip %s (%s) at %s", d.Instance, d.Serial, d.Addr())
}

// Addr returns host:port of the raw TCP endpoint.
func (d *Device) Addr() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// Baudrate returns the advertised UART rate, 0 when unknown.
func (d *Device) Baudrate() uint32 {
	v, err := strconv.ParseUint(d.GetMetadata("baud"), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
