package iwd

import (
	"fmt"
	"net"
	"syscall"

	"github.com/jsimonetti/rtnetlink"
	"github.com/mdlayher/netlink"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// Lease is the IPv4 configuration of the station interface.
type Lease struct {
	IP      net.IP
	Netmask net.IPMask
	Gateway net.IP
	DNS     []net.IP
}

// AddrWatcher reports IPv4 addresses appearing on one interface. The
// address itself is assigned by whatever DHCP client runs on the host.
type AddrWatcher struct {
	iface  string
	conn   *netlink.Conn
	rtConn *rtnetlink.Conn
	log    *zap.Logger
	stopCh chan struct{}
}

// NewAddrWatcher subscribes to IPv4 address notifications.
func NewAddrWatcher(iface string, log *zap.Logger) (*AddrWatcher, error) {
	conn, err := netlink.Dial(syscall.NETLINK_ROUTE, &netlink.Config{
		Groups: 0x10, // RTMGRP_IPV4_IFADDR
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial netlink: %w", err)
	}

	rtConn, err := rtnetlink.Dial(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to dial rtnetlink: %w", err)
	}

	return &AddrWatcher{
		iface:  iface,
		conn:   conn,
		rtConn: rtConn,
		log:    log,
		stopCh: make(chan struct{}),
	}, nil
}

// Close stops Run and closes the sockets.
func (w *AddrWatcher) Close() {
	close(w.stopCh)
	w.conn.Close()
	w.rtConn.Close()
}

// Run calls onLease for each new IPv4 address on the interface until Close.
func (w *AddrWatcher) Run(onLease func(Lease)) {
	for {
		msgs, err := w.conn.Receive()
		select {
		case <-w.stopCh:
			return
		default:
		}
		if err != nil {
			w.log.Debug("Netlink receive error", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			if msg.Header.Type != syscall.RTM_NEWADDR {
				continue
			}
			var am rtnetlink.AddressMessage
			if err := am.UnmarshalBinary(msg.Data); err != nil {
				w.log.Debug("Failed to parse address message", zap.Error(err))
				continue
			}
			if am.Family != syscall.AF_INET || !w.isOurs(am.Index) {
				continue
			}
			if lease, ok := w.leaseFrom(am); ok {
				onLease(lease)
			}
		}
	}
}

// Current returns the interface's IPv4 configuration if it has one.
func (w *AddrWatcher) Current() (Lease, bool) {
	addrs, err := w.rtConn.Address.List()
	if err != nil {
		return Lease{}, false
	}
	for _, am := range addrs {
		if am.Family != syscall.AF_INET || !w.isOurs(am.Index) {
			continue
		}
		if lease, ok := w.leaseFrom(am); ok {
			return lease, true
		}
	}
	return Lease{}, false
}

func (w *AddrWatcher) isOurs(index uint32) bool {
	links, err := w.rtConn.Link.List()
	if err != nil {
		return false
	}
	for _, link := range links {
		if link.Index == index {
			return link.Attributes != nil && link.Attributes.Name == w.iface
		}
	}
	return false
}

func (w *AddrWatcher) leaseFrom(am rtnetlink.AddressMessage) (Lease, bool) {
	if am.Attributes == nil || am.Attributes.Address.To4() == nil {
		return Lease{}, false
	}
	lease := Lease{
		IP:      am.Attributes.Address.To4(),
		Netmask: net.CIDRMask(int(am.PrefixLength), 32),
		Gateway: w.defaultGateway(am.Index),
		DNS:     nameservers("/etc/resolv.conf"),
	}
	return lease, true
}

func (w *AddrWatcher) defaultGateway(index uint32) net.IP {
	routes, err := w.rtConn.Route.List()
	if err != nil {
		return nil
	}
	for _, route := range routes {
		if route.Attributes.Dst == nil &&
			route.Attributes.Gateway != nil &&
			route.Attributes.OutIface == index {
			return route.Attributes.Gateway.To4()
		}
	}
	return nil
}

// nameservers returns the IPv4 nameservers listed in a resolv.conf file.
func nameservers(path string) []net.IP {
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil
	}
	var out []net.IP
	for _, server := range conf.Servers {
		if ip := net.ParseIP(server).To4(); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// MaskIP returns the netmask in address form.
func (l Lease) MaskIP() net.IP {
	if len(l.Netmask) != net.IPv4len {
		return nil
	}
	return net.IP(l.Netmask)
}
