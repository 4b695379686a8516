package wifi

// RadioEventType identifies a driver-level event.
type RadioEventType int

const (
	// RadioScanDone reports the end of a scan. ScanOK tells whether it succeeded.
	RadioScanDone RadioEventType = iota
	// RadioConnected reports association with an access point.
	RadioConnected
	// RadioDisconnected reports loss of association or a failed attempt.
	RadioDisconnected
	// RadioGotIP reports an IPv4 lease on the station interface.
	RadioGotIP
)

// RadioEvent is delivered by a Radio to the handler installed with Start.
type RadioEvent struct {
	Type   RadioEventType
	ScanOK bool

	SSID   string
	BSSID  [6]byte
	RSSI   int8
	Reason string

	IP      uint32
	Netmask uint32
	Gateway uint32
	DNS1    uint32
	DNS2    uint32
}

// Radio is the Wi-Fi driver the manager runs on. Scan and Connect only start
// the operation; the outcome arrives as a RadioEvent. Events may be delivered
// from any goroutine, including synchronously from within Scan or Connect.
type Radio interface {
	Start(handler func(RadioEvent)) error
	Stop() error
	Scan() error
	ScanResults() ([]ScanEntry, error)
	Connect(ssid, password string) error
	Disconnect() error
	// Signal returns the RSSI of the current link. ok is false when there
	// is no link.
	Signal() (rssi int8, ok bool)
}
