package store

import (
	"github.com/ValentinKolb/vKV/lib/versioning"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStorageEngine is the capability interface of a named store of versioned values.
// Keys are raw bytes, every key maps to a set of sibling versions whose clocks are
// pairwise concurrent. All methods must be safe for concurrent use.
type IStorageEngine interface {
	// Name returns the name of the store.
	Name() (name string)

	// Get returns all sibling versions of the key. An absent key yields an empty, non-nil slice.
	Get(key []byte) (versions []versioning.Versioned, err error)

	// Put stores a new version of the key.
	// Siblings whose clock is before the new clock are superseded, concurrent siblings are kept.
	// If the new clock is before or equal to an existing sibling the write is obsolete and
	// does not change the stored set.
	Put(key []byte, value versioning.Versioned) (err error)

	// Delete removes every sibling whose clock is before or equal to the given clock.
	// The boolean return value indicates whether at least one sibling was removed.
	Delete(key []byte, clock versioning.VectorClock) (deleted bool, err error)

	// Close releases the backend handle. Calling Close more than once is a no-op.
	Close() (err error)
}
