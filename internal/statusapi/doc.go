// Package statusapi serves a small read-mostly HTTP API for a running bridge.
//
// # Routes
//
//	GET  /healthz          liveness and version
//	GET  /api/status       station link and bridge state
//	GET  /api/stats        traffic counters
//	POST /api/stats/reset  zero the traffic counters
//	GET  /api/records      stored Wi-Fi networks (passwords are never returned)
//	POST /api/scan         start an asynchronous scan
//	GET  /api/scan         result of the last completed scan
//	GET  /api/events       websocket stream of station events and stats
//
// Errors are JSON objects of the form {"error": {"code": ..., "message": ...}}.
// The code is the short error name also shown on the console, such as
// "SCAN_IN_PROGRESS" or "INVALID_STATE".
//
// # Events
//
// Every websocket client receives each station event as
// {"type": "wifi", "event": {...}} and a {"type": "stats", ...} frame every
// StatsInterval. A client that cannot keep up loses frames rather than
// stalling the others.
package statusapi
