// Package iwd implements the station radio on Linux hosts running iwd.
//
// Scans, connects and disconnects go through the net.connman.iwd D-Bus API
// on the system bus. Outcomes are taken from the Station object's
// PropertiesChanged signals:
//
//   - Scanning true -> false   reports a finished scan
//   - State -> connected       reports association
//   - State -> disconnected    reports loss of the link or a failed attempt
//
// Passphrases are handed to iwd by an Agent exported on the same bus
// connection. IPv4 leases are observed with rtnetlink (RTM_NEWADDR on the
// station interface) and reported as GotIP events together with the default
// gateway and the resolv.conf nameservers.
package iwd
