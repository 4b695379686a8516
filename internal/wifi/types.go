package wifi

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	// MaxRecords is the number of credential slots in the store.
	MaxRecords = 8
	// MaxSSIDLen is the longest accepted SSID in bytes.
	MaxSSIDLen = 63
	// MaxPasswordLen is the longest accepted passphrase in bytes.
	MaxPasswordLen = 63
)

// State is the station connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Record is one stored set of credentials. ID is the slot index.
type Record struct {
	ID               uint16
	SSID             string
	Password         string
	Sequence         uint32
	EverSuccess      bool
	UserDisconnected bool
	Valid            bool
}

// ConnectionStatus is a snapshot of the station link. Address fields are
// IPv4 addresses packed with the first octet in the low byte, and are zero
// unless State is StateConnected.
type ConnectionStatus struct {
	State          State
	SSID           string
	BSSID          [6]byte
	RSSI           int8
	IP             uint32
	Netmask        uint32
	Gateway        uint32
	DNS1           uint32
	DNS2           uint32
	ConnectedSince time.Time
}

// Uptime returns how long the link has been up at now.
func (s ConnectionStatus) Uptime(now time.Time) time.Duration {
	if s.State != StateConnected || s.ConnectedSince.IsZero() {
		return 0
	}
	return now.Sub(s.ConnectedSince)
}

// ScanEntry is one access point seen by a scan.
type ScanEntry struct {
	SSID  string
	BSSID [6]byte
	RSSI  int8
}

type retryState struct {
	target           string
	attempts         uint8
	useShortInterval bool
}

// PackIPv4 packs a dotted IPv4 address into a uint32 with the first octet in
// the low byte. Non-IPv4 input packs to zero.
func PackIPv4(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(v4)
}

// UnpackIPv4 is the inverse of PackIPv4.
func UnpackIPv4(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.LittleEndian.PutUint32(ip, v)
	return ip
}

// FormatIPv4 renders a packed address as a.b.c.d.
func FormatIPv4(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v&0xff, (v>>8)&0xff, (v>>16)&0xff, (v>>24)&0xff)
}

// FormatBSSID renders a BSSID as colon separated hex.
func FormatBSSID(b [6]byte) string {
	return net.HardwareAddr(b[:]).String()
}

// SignalLevel maps an RSSI in dBm onto the 1..4 bar scale used by the
// display. Callers use 0 for "not connected" or "not seen".
func SignalLevel(rssi int8) int {
	switch {
	case rssi >= -55:
		return 4
	case rssi >= -66:
		return 3
	case rssi >= -77:
		return 2
	default:
		return 1
	}
}
