// Package vstore implements store.IStorageEngine on top of any db.KVDB table.
//
// Every key is stored as a single backend record containing the full sibling set:
//
//	+--------------+---------------------------------------------+
//	| uint32 count | count x (uint32 length | clock | value)     |
//	+--------------+---------------------------------------------+
//
// Write rules:
//
//   - Put compares the new clock against every sibling. If it is before or equal to
//     any sibling the write is obsolete: it is ignored, or rejected with
//     store.ErrObsoleteVersion when Options.RejectObsolete is set. Otherwise siblings
//     that are before the new clock are dropped and the new version is appended.
//
//   - Delete drops every sibling that is before or equal to the supplied clock and
//     deletes the record when no sibling is left.
//
// Thread Safety:
//
// The backend table is safe for concurrent use, but a Put or Delete is a read-modify-write
// of the record. These cycles are serialized by a fixed array of mutexes selected by a
// seeded hash of the key, so writes to different keys proceed in parallel. Get reads
// the record without locking.
//
// Sibling sets are not pruned. Writers that never observe each other keep adding siblings.
package vstore
