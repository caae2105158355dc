// Package admin implements the administrative channel of a vKV server.
//
// The admin channel runs on its own endpoint with its own worker pool and speaks
// uint32 length prefixed frames (see base.WriteFrame), each holding one common.Message
// encoded with the configured serializer (json, gob or binary).
//
// Requests:
//
//   - ListStores: sorted names of all open stores
//   - OpenStore(name): opens the store (creating its table and environment if needed),
//     Ok reports whether the store was newly opened
//   - StoreStats(name): request counters and latencies of one store as json
//   - ServerStats: connection and request counters, uptime, store and environment count as json
//   - Sync: flushes every environment to stable storage
//
// Failing requests are answered with the error message set in the response, only
// framing errors end the session.
package admin
