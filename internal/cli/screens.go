package cli

import (
	"github.com/muurk/serial2ip/internal/version"
	"github.com/muurk/serial2ip/internal/wifi"
)

// Prompt ends every menu.
const Prompt = "Please input: "

func (m *Machine) showMain() {
	m.printf("\n=== Main Menu ===\n")
	m.printf("1. Status\n")
	m.printf("2. WiFi Setting\n")
	m.printf("3. UART Setting\n")
	m.printf("4. About\n")
	m.printf(Prompt)
}

func (m *Machine) showWiFi() {
	m.printf("\n=== WiFi Setting ===\n")
	m.printf("1. Auto Connect\n")
	m.printf("2. Scan & Connect\n")
	m.printf("3. Disconnect\n")
	m.printf("4. List Networks\n")
	m.printf("5. Delete Network\n")
	m.printf("6. Add Network\n")
	m.exitFooter()
	m.printf(Prompt)
}

func stateText(s wifi.State) string {
	switch s {
	case wifi.StateDisconnected:
		return "Disconnected"
	case wifi.StateConnecting:
		return "Connecting..."
	case wifi.StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

func (m *Machine) showStatus() {
	st := m.station.GetStatus()
	if st.State != wifi.StateConnected {
		st.IP, st.Netmask, st.Gateway, st.DNS1, st.DNS2 = 0, 0, 0, 0, 0
	}
	br := m.bridge.GetStatus()

	m.printf("\n=== Device Status ===\n")
	m.printf("WiFi Connection\n")
	m.printf(" Status   : %s\n", stateText(st.State))
	m.printf(" SSID     : %s\n", st.SSID)
	m.printf(" RSSI     : %d dBm\n", st.RSSI)
	m.printf(" Duration : %d seconds\n", int64(st.Uptime(m.now()).Seconds()))
	m.printf("Network Address\n")
	m.printf(" IP       : %s\n", wifi.FormatIPv4(st.IP))
	m.printf(" Netmask  : %s\n", wifi.FormatIPv4(st.Netmask))
	m.printf(" Gateway  : %s\n", wifi.FormatIPv4(st.Gateway))
	m.printf(" DNS      : %s\n", wifi.FormatIPv4(st.DNS1))
	m.printf("UART Settings\n")
	m.printf(" Baudrate : %d\n", br.UartBaudrate)
	m.printf(" TCP Port : %d\n", br.TCPPort)
	m.printf(" Clients  : %d\n", br.TCPClientNum)
	m.footer()
}

func (m *Machine) showUART() {
	m.printf("\n=== UART Baudrate Setting ===\n")
	cur := m.bridge.GetStatus().UartBaudrate
	for i, r := range m.rates {
		mark := ""
		if r == cur {
			mark = "<"
		}
		m.printf("%d. %d %s\n", i+1, r, mark)
	}
	m.exitFooter()
	m.printf(Prompt)
}

func (m *Machine) showAbout() {
	m.printf("\n=== About ===\n")
	m.printf("Product  : %s\n", version.Product)
	m.printf("Model    : %s\n", version.Model)
	m.printf("SN       : %s\n", version.Serial)
	m.printf("Version  : %s\n", version.Version)
	m.printf("Commit   : %s\n", version.Commit)
	m.printf("Released : %s\n", version.Released)
	m.footer()
}

func (m *Machine) showNetworks() {
	records := m.station.Records()
	m.printf("\n=== WiFi Networks ===\n")
	if len(records) == 0 {
		m.printf("No WiFi networks found\n")
	} else {
		m.printf("Found %d networks:\n", len(records))
		for i, r := range records {
			m.printf("%d. %-32s seq:%d\n", i+1, r.SSID, r.Sequence)
		}
	}
	m.footer()
}
