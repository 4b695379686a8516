// Package nvs provides the non-volatile key/value blob store used for Wi-Fi
// credentials and bridge settings.
//
// Values are opaque byte blobs addressed by (namespace, key). Writes made
// through a Handle are staged and only reach the backend on Commit, so a
// component can rewrite many keys and persist them as one atomic batch.
//
// # Backends
//
//   - SQLiteBackend: a single "kv" table in a pure-Go sqlite database
//     (modernc.org/sqlite). Each Commit is one transaction.
//   - MemoryBackend: a map, used by tests and by the simulator mode.
//
// # Usage
//
//	store, err := nvs.OpenFile(ctx, "/var/lib/serial2ip/nvs.db")
//	h, _ := store.Open("uart_bridge")
//	_ = h.SetU32("baudrate", 115200)
//	err = h.Commit()
//
// Integer helpers encode little-endian blobs (u16 for ports, u32 for baud
// rates and sequence counters).
package nvs
