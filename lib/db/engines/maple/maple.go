package maple

import (
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/ValentinKolb/vKV/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/vKV/lib/db/util"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClosed is returned by operations on a closed table or environment
var ErrClosed = errors.New("maple: closed")

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

type engineImpl struct {
	numShards int
	opts      db.Options
}

// NewEngine creates a new in-memory engine. The options are validated but have no effect.
// NewEngine has the signature of a db.EngineFactory.
func NewEngine(opts db.Options) (db.Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &engineImpl{numShards: runtime.NumCPU(), opts: opts}, nil
}

func (e *engineImpl) Name() db.Implementation {
	return db.ImplMaple
}

func (e *engineImpl) OpenEnvironment(dir string) (db.Environment, error) {
	return &environmentImpl{
		dir:       dir,
		numShards: e.numShards,
		tables:    xsync.NewMapOf[string, *tableData](),
	}, nil
}

func (e *engineImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

type environmentImpl struct {
	dir       string
	numShards int
	tables    *xsync.MapOf[string, *tableData]
	closed    atomic.Bool
}

func (env *environmentImpl) OpenTable(name string) (db.KVDB, error) {
	if env.closed.Load() {
		return nil, ErrClosed
	}
	data, _ := env.tables.LoadOrCompute(name, func() *tableData {
		return &tableData{
			seed:   util.GenerateSeed(),
			shards: internal.NewShards(env.numShards),
		}
	})
	return &tableImpl{data: data, env: env}, nil
}

func (env *environmentImpl) Tables() []string {
	names := make([]string, 0, env.tables.Size())
	env.tables.Range(func(name string, _ *tableData) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

func (env *environmentImpl) Dir() string {
	return env.dir
}

func (env *environmentImpl) Sync() error {
	if env.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (env *environmentImpl) Close() error {
	env.closed.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// tableData is shared by all handles of the same table
type tableData struct {
	seed   uint64
	shards []*internal.Shard
}

// tableImpl is a handle to a table, closing it does not drop the data
type tableImpl struct {
	data   *tableData
	env    *environmentImpl
	closed atomic.Bool
}

func (t *tableImpl) shard(key []byte) *internal.Shard {
	return internal.GetShard(util.HashBytes(key, t.data.seed), t.data.shards)
}

func (t *tableImpl) check() error {
	if t.closed.Load() || t.env.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Get retrieves the value for a key. The returned value is a copy of the stored data.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *tableImpl) Get(key []byte) ([]byte, bool, error) {
	if err := t.check(); err != nil {
		return nil, false, err
	}
	val, ok := t.shard(key).Data.Load(string(key))
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Put stores a copy of the value for the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *tableImpl) Put(key, value []byte) error {
	if err := t.check(); err != nil {
		return err
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	t.shard(key).Data.Store(string(key), valueCopy)
	return nil
}

// Delete removes the key and reports whether it existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *tableImpl) Delete(key []byte) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	_, loaded := t.shard(key).Data.LoadAndDelete(string(key))
	return loaded, nil
}

func (t *tableImpl) Sync() error {
	return t.check()
}

func (t *tableImpl) Close() error {
	t.closed.Store(true)
	return nil
}
