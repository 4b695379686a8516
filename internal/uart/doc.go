// Package uart drives the serial side of the bridge.
//
// Open configures a device through go.bug.st/serial in 8N1 mode with a
// 100 ms read timeout. Writes go into a 2 KiB software transmit buffer that
// a background goroutine drains to the port, so callers can ask TxFree
// before writing and account for whatever does not fit.
//
// FakePort is an in-memory port for tests and for running the daemon
// without hardware (with Loopback set, everything written is read back).
package uart
