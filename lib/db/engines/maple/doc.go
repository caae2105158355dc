// Package maple implements an in-memory backend satisfying the db.KVDB, db.Environment
// and db.Engine contracts. It is used for tests and for ephemeral stores that do
// not need to survive a restart.
//
// The package focuses on:
//   - Optimized concurrent access through sharding and lock-free maps (xsync.MapOf)
//   - Value isolation: stored values and returned values are always copies
//   - The same environment/table model as the durable engines, so the storage
//     manager can use either engine transparently
//
// Key Components:
//
//   - Engine: Creates environments. Durability options are accepted and ignored
//     since nothing is written to disk.
//
//   - Environment: A set of named tables. Reopening a table name in the same
//     environment returns a handle to the same data.
//
//   - Table: A partitioned map. Keys are distributed across shards in a two-step
//     process:
//     1. Keys are hashed with FNV-1a and a table specific seed
//     2. The hash is right-shifted by 7 bits to use higher-quality bits for
//     distribution
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Each shard is an xsync.MapOf, so
//	readers never block and writers only contend on the same map bucket.
package maple
