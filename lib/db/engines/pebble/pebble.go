package pebble

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClosed is returned by operations on a closed table, environment or engine
var ErrClosed = errors.New("pebble: closed")

// defaultCacheSize is used when the options do not set a cache size
const defaultCacheSize = 8 << 20

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

type engineImpl struct {
	opts   db.Options
	fs     vfs.FS
	cache  *pebble.Cache
	closed atomic.Bool
}

// NewEngine creates a pebble engine on the local filesystem.
// All environments opened by the engine share one block cache of opts.CacheSizeBytes.
// NewEngine has the signature of a db.EngineFactory.
func NewEngine(opts db.Options) (db.Engine, error) {
	return newEngine(opts, vfs.Default)
}

func newEngine(opts db.Options, fs vfs.FS) (*engineImpl, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	size := opts.CacheSizeBytes
	if size == 0 {
		size = defaultCacheSize
	}
	return &engineImpl{
		opts:  opts,
		fs:    fs,
		cache: pebble.NewCache(size),
	}, nil
}

func (e *engineImpl) Name() db.Implementation {
	return db.ImplPebble
}

// pebbleOptions translates the engine options to pebble options for one environment
func (e *engineImpl) pebbleOptions(dir string) *pebble.Options {
	o := &pebble.Options{
		Cache:      e.cache,
		FS:         e.fs,
		DisableWAL: e.opts.Durability == db.DurabilityRelaxed,
		Logger:     pebbleLogger{dir: dir},
	}
	if e.opts.CheckpointBytes > 0 {
		perSync := int(min(e.opts.CheckpointBytes, math.MaxInt32))
		o.BytesPerSync = perSync
		if e.opts.Durability == db.DurabilityWriteBuffered {
			o.WALBytesPerSync = perSync
		}
	}

	level := pebble.LevelOptions{}
	if e.opts.Fanout > 0 {
		level.BlockRestartInterval = e.opts.Fanout
	}
	if e.opts.MaxSegmentBytes > 0 {
		level.TargetFileSize = e.opts.MaxSegmentBytes
	}
	o.Levels = []pebble.LevelOptions{level}

	return o.EnsureDefaults()
}

func (e *engineImpl) OpenEnvironment(dir string) (db.Environment, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	pdb, err := pebble.Open(dir, e.pebbleOptions(dir))
	if err != nil {
		return nil, errors.Wrapf(err, "pebble: open environment %s", dir)
	}

	env := &environmentImpl{
		dir:       dir,
		db:        pdb,
		walOff:    e.opts.Durability == db.DurabilityRelaxed,
		writeOpts: pebble.NoSync,
		tables:    xsync.NewMapOf[string, struct{}](),
		stop:      make(chan struct{}),
	}
	if e.opts.Durability == db.DurabilityFull {
		env.writeOpts = pebble.Sync
	}

	if e.opts.CheckpointInterval > 0 {
		env.wg.Add(1)
		go env.checkpointer(e.opts.CheckpointInterval)
	}

	log.Infof("opened environment %s (durability=%s)", dir, e.opts.Durability)
	return env, nil
}

// Close releases the shared block cache. Environments keep their own reference
// until they are closed.
func (e *engineImpl) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.cache.Unref()
	return nil
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

type environmentImpl struct {
	dir       string
	db        *pebble.DB
	walOff    bool
	writeOpts *pebble.WriteOptions
	tables    *xsync.MapOf[string, struct{}]

	stop      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// checkpointer flushes the memtables in a fixed interval until the environment is closed
func (env *environmentImpl) checkpointer(interval time.Duration) {
	defer env.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-env.stop:
			return
		case <-ticker.C:
			if err := env.db.Flush(); err != nil {
				log.Warningf("checkpoint of %s failed: %v", env.dir, err)
			}
		}
	}
}

func (env *environmentImpl) OpenTable(name string) (db.KVDB, error) {
	if env.closed.Load() {
		return nil, ErrClosed
	}
	if len(name) > math.MaxUint16 {
		return nil, errors.Newf("pebble: table name too long (%d bytes)", len(name))
	}
	env.tables.Store(name, struct{}{})
	return &tableImpl{env: env, prefix: tablePrefix(name)}, nil
}

func (env *environmentImpl) Tables() []string {
	names := make([]string, 0, env.tables.Size())
	env.tables.Range(func(name string, _ struct{}) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

func (env *environmentImpl) Dir() string {
	return env.dir
}

// Sync writes a synced marker to the WAL (which syncs all earlier writes) and
// flushes the memtables. Without WAL only the flush is done.
func (env *environmentImpl) Sync() error {
	if env.closed.Load() {
		return ErrClosed
	}
	if !env.walOff {
		if err := env.db.LogData(nil, pebble.Sync); err != nil {
			return errors.Wrapf(err, "pebble: sync wal of %s", env.dir)
		}
	}
	if err := env.db.Flush(); err != nil {
		return errors.Wrapf(err, "pebble: flush %s", env.dir)
	}
	return nil
}

// Close syncs and closes the environment exactly once
func (env *environmentImpl) Close() error {
	env.closeOnce.Do(func() {
		close(env.stop)
		env.wg.Wait()

		syncErr := env.Sync()
		env.closed.Store(true)
		closeErr := env.db.Close()
		if closeErr != nil {
			closeErr = errors.Wrapf(closeErr, "pebble: close %s", env.dir)
		}
		env.closeErr = errors.CombineErrors(syncErr, closeErr)
		log.Infof("closed environment %s", env.dir)
	})
	return env.closeErr
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// tablePrefix returns the key prefix of a table: uint16 name length followed by the name.
// The length makes sure that no table name is a prefix of another table's keys.
func tablePrefix(name string) []byte {
	prefix := make([]byte, 2+len(name))
	binary.BigEndian.PutUint16(prefix, uint16(len(name)))
	copy(prefix[2:], name)
	return prefix
}

type tableImpl struct {
	env    *environmentImpl
	prefix []byte
	closed atomic.Bool
}

func (t *tableImpl) check() error {
	if t.closed.Load() || t.env.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (t *tableImpl) key(key []byte) []byte {
	k := make([]byte, 0, len(t.prefix)+len(key))
	return append(append(k, t.prefix...), key...)
}

// Get retrieves a copy of the value for the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *tableImpl) Get(key []byte) ([]byte, bool, error) {
	if err := t.check(); err != nil {
		return nil, false, err
	}
	val, closer, err := t.env.db.Get(t.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "pebble: get")
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Put stores the value for the key. Pebble copies the value into its batch.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *tableImpl) Put(key, value []byte) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.env.db.Set(t.key(key), value, t.env.writeOpts); err != nil {
		return errors.Wrap(err, "pebble: set")
	}
	return nil
}

// Delete removes the key and reports whether it existed. The existence check and the
// delete are not atomic, concurrent deletes of the same key may both report true.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *tableImpl) Delete(key []byte) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	k := t.key(key)
	_, closer, err := t.env.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "pebble: get")
	}
	_ = closer.Close()

	if err := t.env.db.Delete(k, t.env.writeOpts); err != nil {
		return false, errors.Wrap(err, "pebble: delete")
	}
	return true, nil
}

// Sync syncs the whole environment, pebble has no per-table sync
func (t *tableImpl) Sync() error {
	if err := t.check(); err != nil {
		return err
	}
	return t.env.Sync()
}

func (t *tableImpl) Close() error {
	t.closed.Store(true)
	return nil
}
