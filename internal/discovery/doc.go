// Package discovery advertises a bridge over mDNS and finds other bridges.
//
// A bridge registers the "_serial2ip._tcp" service in the "local." domain
// for as long as its raw TCP server listens. The service port is the TCP
// port clients connect to, and the TXT record carries:
//   - serial: device serial number
//   - model: product model
//   - version: firmware version
//   - baud: UART baudrate at registration time
//
// # Advertising
//
// Advertiser.Update has the signature of the bridge's server change
// callback. A port change withdraws the old registration and publishes a
// new one.
//
//	adv := discovery.NewAdvertiser("", nil)
//	defer adv.Close()
//	opts.OnServerChange = adv.Update
//
// # Browsing
//
//	devices, err := discovery.NewScanner().Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Instance, d.Addr(), d.Serial)
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
