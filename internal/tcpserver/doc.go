// Package tcpserver implements the raw TCP endpoint of the bridge.
//
// The server listens on a single IPv4 port and binds up to MaxClients peers
// to a fixed slot array. Bytes are passed through untouched: there is no
// framing, no authentication and no flow control back to the client.
//
// # Concurrency
//
// One loop goroutine owns slot assignment and runs every callback in order:
//   - OnConnect after a slot has been bound
//   - OnData for each read (at most ReadBufferSize bytes)
//   - OnDisconnect when a peer closes or a read fails
//
// An accept goroutine and one reader goroutine per client feed the loop.
// Blocked accepts and reads wake every PollInterval to check for Stop.
//
// External callers touch the slot array only through Broadcast and
// DisconnectClient, both of which wait at most LockTimeout for the clients
// lock and report Timeout otherwise.
//
// # Slot Exhaustion
//
// A connection arriving while every slot is bound is accepted and closed
// immediately. The peer sees a clean EOF.
//
// # Send Errors
//
// Send and Broadcast never remove a client. A short write is reported as
// InvalidSize and a failed write as an IO error; the peer is only dropped
// when its read side fails.
//
// # Usage Example
//
//	srv, err := tcpserver.New(&tcpserver.Config{
//	    Port: 5678,
//	    OnData: func(c *tcpserver.Client, data []byte) {
//	        uart.Write(data)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Destroy()
//
//	srv.Broadcast([]byte("hello"))
package tcpserver
