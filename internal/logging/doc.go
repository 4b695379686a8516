// Package logging provides structured logging for the serial2ip bridge.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the daemon. It provides both general logging
// functions and specialized functions for bridge traffic.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps of bridge traffic, HTTP requests)
//   - Info: Normal operations (Wi-Fi state changes, client connections)
//   - Warn: Non-fatal issues (malformed stored records, dropped connections)
//   - Error: Failures (driver errors, store write failures)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Connected to access point",
//	    zap.String("ssid", "home"),
//	    zap.Int8("rssi", -52),
//	)
//
// Components log through a tagged child logger so that leaf IO errors can
// be traced back to the subsystem that produced them:
//
//	log := logging.Component("uart")
//	log.Error("UART write failed", zap.Error(err))
//
// # Specialized Logging
//
// Connection Logging:
//
//	logging.LogConnection(remoteAddr, "client_accepted")
//	logging.LogConnection(remoteAddr, "client_closed")
//
// Traffic Dumps (enabled by tcpserver.Server.SetVerbose):
//
//	logging.LogRawBytes("tcp tx", payload)
//
// # Configuration
//
// Initialize logging at daemon startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Logs go to stderr so that the console menu on stdout stays readable.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
