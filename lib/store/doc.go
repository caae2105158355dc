// Package store defines the storage engine abstraction of vKV: a named store of
// versioned values, where every key maps to a set of sibling versions whose vector
// clocks are pairwise concurrent.
//
// The package focuses on:
//   - A capability interface (IStorageEngine) that the registry and the protocol depend on
//   - The error taxonomy of store level failures and its numeric wire codes (RetCode)
//   - A metered decorator (MeteredStore) collecting go-metrics timers per store
//
// Key Components:
//
//   - IStorageEngine Interface: Get returns all siblings of a key, Put adds a version and
//     supersedes every sibling it dominates, Delete removes every sibling dominated by
//     the supplied clock. Obsolete writes never change the stored set.
//
//   - Error System: Sentinel errors (ErrStorageAccess, ErrStorageInitialization,
//     ErrNoSuchStore, ErrObsoleteVersion) built with cockroachdb/errors. Backend failures
//     are marked with ErrStorageAccess and keep their cause. CodeOf maps an error to its
//     RetCode and ErrorOf turns a code received from a peer back into a matching error.
//
//   - MeteredStore: Wraps any IStorageEngine and records latency timers, error and
//     obsolete-write counters and a histogram of sibling counts. Stats returns a snapshot.
//
// Implementations:
//
//   - Versioned Store (vstore): Each key is stored as one record of a db.KVDB table holding
//     the encoded sibling set. Read-modify-write cycles are serialized per key by striped
//     locks. Available in the "github.com/ValentinKolb/vKV/lib/store/vstore" package.
package store
