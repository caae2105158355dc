// Package versioning implements the causality tracking used by every value in the
// store. Each stored value carries a vector clock, a list of per-node counters that
// allows two writes to the same key to be ordered (one happened before the other)
// or recognized as concurrent (conflicting siblings).
//
// The package focuses on:
//   - An immutable VectorClock value type with compare, increment and merge
//   - A fixed-width binary encoding of clocks used on disk and on the wire
//   - The Versioned pair (value + clock) stored by every storage engine
//
// Key Components:
//
//   - VectorClock: sorted (node id, counter) entries plus a wall-clock timestamp.
//     The timestamp is only a display hint and never takes part in ordering.
//     All methods return new clocks, the receiver is never mutated.
//
//   - Occurred: the result of comparing two clocks (Before, After, Equal, Concurrent).
//
//   - Versioned: an immutable value/clock pair. Its encoding is the encoded clock
//     followed by the raw value bytes; the clock length is derived from the
//     encoded entry count (see SizeInBytes).
//
// Encoding (big endian):
//
//	+----------------+-------------------------------------+-----------------+
//	| count (uint16) | count x (node id uint16, ctr uint64) | timestamp int64 |
//	+----------------+-------------------------------------+-----------------+
//
// Decoding fails with ErrMalformedVersion if the declared entry count does not fit
// into the buffer or if the node ids are not strictly increasing.
//
// Thread Safety:
//
//	VectorClock and Versioned are values without shared mutable state and can be
//	used from any number of goroutines concurrently.
package versioning
