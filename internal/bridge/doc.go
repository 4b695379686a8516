// Package bridge forwards bytes between the UART and the TCP clients.
//
// A single reader goroutine reads up to 1 KiB at a time from the UART and,
// when the TCP server has clients, broadcasts the slice to all of them.
// Bytes arriving from any client are written to the UART transmit buffer
// from the server's callback goroutine; whatever does not fit is dropped
// and counted.
//
// # Lifecycle
//
// The bridge follows the station link. Attach subscribes to Wi-Fi events:
//   - Connected starts the TCP server on the configured port
//   - Disconnected stops it and closes every client
//
// When the server cannot be started the bridge stays in uart only mode:
// the reader keeps running and counting received bytes.
//
// # Persistence
//
// The TCP port and baudrate live in the uart_bridge namespace of the
// key/value store as little-endian u16 and u32 blobs. SetBaudrate and
// SetTCPPort persist only when the value changes.
//
// # Statistics
//
// Every byte a client sends ends up in exactly one of uart_tx_bytes,
// uart_tx_drop_bytes or uart_tx_error_bytes. tcp_tx_bytes advances once
// per successful broadcast by the broadcast length, regardless of the
// number of clients.
package bridge
