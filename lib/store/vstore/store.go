package vstore

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/ValentinKolb/vKV/lib/db/util"
	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
)

// DefaultLockStripes is the number of per-key lock stripes of a store
const DefaultLockStripes = 256

// Options configures a versioned store
type Options struct {
	// RejectObsolete makes Put return store.ErrObsoleteVersion for obsolete writes instead of ignoring them
	RejectObsolete bool
	// OnObsolete is called for every obsolete write that is ignored (nil = not reported)
	OnObsolete func()
	// LockStripes is the number of mutexes serializing read-modify-write cycles of keys (0 = DefaultLockStripes)
	LockStripes int
}

type storeImpl struct {
	name   string
	table  db.KVDB
	opts   Options
	seed   uint64
	locks  []sync.Mutex
	closed atomic.Bool
}

// NewVersionedStore creates a store of versioned values on top of a backend table.
// The store owns the table and closes it on Close.
func NewVersionedStore(name string, table db.KVDB, opts Options) store.IStorageEngine {
	if opts.LockStripes <= 0 {
		opts.LockStripes = DefaultLockStripes
	}
	return &storeImpl{
		name:  name,
		table: table,
		opts:  opts,
		seed:  util.GenerateSeed(),
		locks: make([]sync.Mutex, opts.LockStripes),
	}
}

// lock acquires the stripe of the key and returns the unlock function
func (s *storeImpl) lock(key []byte) func() {
	mu := &s.locks[util.Stripe(util.HashBytes(key, s.seed), len(s.locks))]
	mu.Lock()
	return mu.Unlock
}

func (s *storeImpl) check() error {
	if s.closed.Load() {
		return errors.Mark(errors.Newf("store %s is closed", s.name), store.ErrStorageAccess)
	}
	return nil
}

// load reads and decodes the sibling set of a key
func (s *storeImpl) load(key []byte) ([]versioning.Versioned, error) {
	raw, ok, err := s.table.Get(key)
	if err != nil {
		return nil, store.AccessError(err, "store %s: get", s.name)
	}
	if !ok {
		return []versioning.Versioned{}, nil
	}
	siblings, err := decodeSiblings(raw)
	if err != nil {
		return nil, store.AccessError(err, "store %s: corrupt record", s.name)
	}
	return siblings, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Name() string {
	return s.name
}

func (s *storeImpl) Get(key []byte) ([]versioning.Versioned, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.load(key)
}

func (s *storeImpl) Put(key []byte, value versioning.Versioned) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := value.Clock().Validate(); err != nil {
		return errors.Mark(err, versioning.ErrMalformedVersion)
	}
	defer s.lock(key)()

	siblings, err := s.load(key)
	if err != nil {
		return err
	}

	kept := make([]versioning.Versioned, 0, len(siblings)+1)
	for _, sibling := range siblings {
		switch versioning.Compare(value.Clock(), sibling.Clock()) {
		case versioning.Before, versioning.Equal:
			if s.opts.RejectObsolete {
				return errors.Wrapf(store.ErrObsoleteVersion, "store %s: %s is not newer than %s", s.name, value.Clock(), sibling.Clock())
			}
			if s.opts.OnObsolete != nil {
				s.opts.OnObsolete()
			}
			return nil
		case versioning.Concurrent:
			kept = append(kept, sibling)
		case versioning.After:
			// superseded
		}
	}
	kept = append(kept, value)

	if err := s.table.Put(key, encodeSiblings(kept)); err != nil {
		return store.AccessError(err, "store %s: put", s.name)
	}
	return nil
}

func (s *storeImpl) Delete(key []byte, clock versioning.VectorClock) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	defer s.lock(key)()

	siblings, err := s.load(key)
	if err != nil {
		return false, err
	}

	kept := make([]versioning.Versioned, 0, len(siblings))
	for _, sibling := range siblings {
		switch versioning.Compare(sibling.Clock(), clock) {
		case versioning.Before, versioning.Equal:
			// removed
		default:
			kept = append(kept, sibling)
		}
	}
	if len(kept) == len(siblings) {
		return false, nil
	}

	if len(kept) == 0 {
		if _, err := s.table.Delete(key); err != nil {
			return false, store.AccessError(err, "store %s: delete", s.name)
		}
		return true, nil
	}
	if err := s.table.Put(key, encodeSiblings(kept)); err != nil {
		return false, store.AccessError(err, "store %s: put", s.name)
	}
	return true, nil
}

func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.table.Close(); err != nil {
		return store.AccessError(err, "store %s: close", s.name)
	}
	return nil
}
