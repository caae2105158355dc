// Package db defines the contract every physical storage backend must satisfy.
// A backend is treated as an opaque durable key-value engine: it stores raw bytes
// under raw byte keys and knows nothing about versions or siblings.
//
// The package focuses on:
//   - A small KVDB interface (get, put, delete, sync, close) for a single table
//   - Environments grouping many tables in one physical context (directory + files)
//   - Engines creating environments with frozen durability and performance options
//
// Key Components:
//
//   - KVDB Interface: A named table. Delete reports whether the key existed, Get
//     always returns a copy of the stored value. Implementations must be safe for
//     concurrent use; callers add no locking above it.
//
//   - Environment Interface: A physical storage context. Depending on the file layout
//     policy of the caller, an environment holds the tables of all stores (shared
//     layout) or of exactly one store (file-per-store layout).
//
//   - Engine Interface: Creates environments. Options are validated and frozen
//     when the engine is created, resources like the block cache are shared
//     between all environments of one engine.
//
//   - Options / Durability: Cache size, commit durability mode, checkpoint
//     thresholds, maximum segment size and index fan-out.
//
// Durability Modes:
//
//   - DurabilityFull: every commit forces data and metadata to stable storage.
//   - DurabilityWriteBuffered: commits are written in order but not synced
//     individually, background syncs keep the log bounded.
//   - DurabilityRelaxed: commits stay in memory and are flushed opportunistically
//     (fastest, weakest guarantees on crash).
//
// Related Packages:
//
// The engines/pebble package (github.com/ValentinKolb/vKV/lib/db/engines/pebble)
// provides the durable implementation based on the Pebble LSM engine.
//
// The engines/maple package (github.com/ValentinKolb/vKV/lib/db/engines/maple) provides
// a sharded in-memory implementation for tests and ephemeral stores.
//
// The testing package (github.com/ValentinKolb/vKV/lib/db/testing) provides a
// standardized test suite for KVDB implementations:
//   - RunKVDBTests: Runs the conformance tests against a table factory
package db
