package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/store/vstore"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("storage")

// MaxStoreNameLength is the maximum length of a store name in bytes
const MaxStoreNameLength = 255

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// Config holds the frozen parameters of an EnvironmentManager
type Config struct {
	MasterDir      string           // Root directory of all environments ("" = do not create directories)
	FilePerStore   bool             // Give every store its own environment in <MasterDir>/<name>
	Options        db.Options       // Durability and performance options of the backend
	RejectObsolete bool             // Reject obsolete writes instead of ignoring them
	LockStripes    int              // Lock stripes per store (0 = vstore default)
	Metrics        metrics.Registry // Registry for per-store metrics (nil = stores are not metered)
}

// Validate checks the configuration
func (c Config) Validate() error {
	if err := c.Options.Validate(); err != nil {
		return errors.Wrap(err, "invalid backend options")
	}
	if c.LockStripes < 0 {
		return errors.Newf("lock stripes must not be negative: %d", c.LockStripes)
	}
	return nil
}

// ValidateStoreName checks that name can be used as a store name and as a directory name
func ValidateStoreName(name string) error {
	switch {
	case name == "":
		return errors.New("store name must not be empty")
	case len(name) > MaxStoreNameLength:
		return errors.Newf("store name too long (%d bytes, max %d)", len(name), MaxStoreNameLength)
	case !utf8.ValidString(name):
		return errors.New("store name must be valid UTF-8")
	case name == "." || name == "..":
		return errors.Newf("invalid store name %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return errors.Newf("store name %q must not contain path separators or NUL", name)
	}
	return nil
}

// --------------------------------------------------------------------------
// State
// --------------------------------------------------------------------------

// State is the lifecycle state of an EnvironmentManager
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// EnvironmentManager creates backend environments per the layout policy, opens stores
// inside them and owns the lifecycle of both.
type EnvironmentManager struct {
	cfg      Config
	factory  db.EngineFactory
	registry *Registry

	// lifecycle is held shared by store creation and exclusively by Init and Close
	lifecycle sync.RWMutex
	state     atomic.Int32
	engine    db.Engine

	// mu guards envs and order, it is held during lookup and open of environments only
	mu    sync.Mutex
	envs  map[string]db.Environment
	order []string
}

// NewEnvironmentManager validates and freezes the config. The manager must be
// initialized with Init before stores can be opened.
func NewEnvironmentManager(cfg Config, factory db.EngineFactory) (*EnvironmentManager, error) {
	if factory == nil {
		return nil, errors.New("engine factory must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EnvironmentManager{
		cfg:      cfg,
		factory:  factory,
		registry: NewRegistry(),
		envs:     make(map[string]db.Environment),
	}, nil
}

// Init creates the backend engine and moves the manager to the ready state
func (m *EnvironmentManager) Init() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if s := m.State(); s != StateUninitialized {
		return errors.Wrapf(store.ErrStorageInitialization, "cannot init manager in state %s", s)
	}
	if m.cfg.MasterDir != "" {
		if err := os.MkdirAll(m.cfg.MasterDir, 0o755); err != nil {
			return errors.Mark(errors.Wrapf(err, "create master dir %s", m.cfg.MasterDir), store.ErrStorageInitialization)
		}
	}
	engine, err := m.factory(m.cfg.Options)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "create engine"), store.ErrStorageInitialization)
	}
	m.engine = engine
	m.state.Store(int32(StateReady))

	log.Infof("storage ready (engine=%s, dir=%s, file-per-store=%v)", engine.Name(), m.cfg.MasterDir, m.cfg.FilePerStore)
	return nil
}

// State returns the current lifecycle state
func (m *EnvironmentManager) State() State {
	return State(m.state.Load())
}

// Registry returns the registry holding all opened stores
func (m *EnvironmentManager) Registry() *Registry {
	return m.registry
}

// Environments returns the number of open physical environments
func (m *EnvironmentManager) Environments() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.envs)
}

// environmentDir returns the directory of the environment holding the store
func (m *EnvironmentManager) environmentDir(name string) string {
	if m.cfg.FilePerStore {
		return filepath.Join(m.cfg.MasterDir, name)
	}
	return m.cfg.MasterDir
}

// environment returns the environment for the store, opening it on first use
func (m *EnvironmentManager) environment(name string) (db.Environment, error) {
	dir := m.environmentDir(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if env, ok := m.envs[dir]; ok {
		return env, nil
	}
	if m.cfg.MasterDir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, store.AccessError(err, "create environment dir %s", dir)
		}
	}
	env, err := m.engine.OpenEnvironment(dir)
	if err != nil {
		return nil, store.AccessError(err, "open environment %s", dir)
	}
	m.envs[dir] = env
	m.order = append(m.order, dir)
	log.Debugf("opened environment %s", dir)
	return env, nil
}

// GetOrCreateStore returns the store with the given name, creating its table (and its
// environment) on first use. Concurrent calls for the same name return the same store.
func (m *EnvironmentManager) GetOrCreateStore(name string) (store.IStorageEngine, error) {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()

	if s := m.State(); s != StateReady {
		return nil, errors.Wrapf(store.ErrStorageInitialization, "cannot open store %q in state %s", name, s)
	}
	if err := ValidateStoreName(name); err != nil {
		return nil, errors.Mark(err, store.ErrStorageInitialization)
	}
	if s, ok := m.registry.Get(name); ok {
		return s, nil
	}

	env, err := m.environment(name)
	if err != nil {
		return nil, err
	}
	table, err := env.OpenTable(name)
	if err != nil {
		return nil, store.AccessError(err, "open table %s", name)
	}

	opts := vstore.Options{
		RejectObsolete: m.cfg.RejectObsolete,
		LockStripes:    m.cfg.LockStripes,
	}
	if m.cfg.Metrics != nil {
		// rejected writes are counted by the metered store from the returned error
		obsolete := store.ObsoleteCounter(name, m.cfg.Metrics)
		opts.OnObsolete = func() { obsolete.Inc(1) }
	}
	s := vstore.NewVersionedStore(name, table, opts)
	if m.cfg.Metrics != nil {
		s = store.NewMeteredStore(s, m.cfg.Metrics)
	}

	actual, loaded := m.registry.LoadOrStore(name, s)
	if loaded {
		// lost the race, the winner owns the table
		_ = s.Close()
	} else {
		log.Infof("opened store %s", name)
	}
	return actual, nil
}

// Sync flushes every environment to stable storage
func (m *EnvironmentManager) Sync() error {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()

	if s := m.State(); s != StateReady {
		return errors.Wrapf(store.ErrStorageInitialization, "cannot sync in state %s", s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	for _, dir := range m.order {
		if e := m.envs[dir].Sync(); e != nil {
			err = errors.CombineErrors(err, store.AccessError(e, "sync %s", dir))
		}
	}
	return err
}

// Close closes every store, then syncs and closes every environment exactly once and
// finally releases the engine. Calling Close more than once is a no-op.
func (m *EnvironmentManager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	prev := State(m.state.Swap(int32(StateClosed)))
	if prev != StateReady {
		return nil
	}

	var err error
	for _, s := range m.registry.drain() {
		if e := s.Close(); e != nil {
			err = errors.CombineErrors(err, e)
		}
	}

	m.mu.Lock()
	for _, dir := range m.order {
		env := m.envs[dir]
		if e := env.Sync(); e != nil {
			err = errors.CombineErrors(err, store.AccessError(e, "sync %s", dir))
		}
		if e := env.Close(); e != nil {
			err = errors.CombineErrors(err, store.AccessError(e, "close %s", dir))
		}
		log.Debugf("closed environment %s", dir)
	}
	m.envs = make(map[string]db.Environment)
	m.order = nil
	m.mu.Unlock()

	if e := m.engine.Close(); e != nil {
		err = errors.CombineErrors(err, e)
	}

	log.Infof("storage closed")
	return err
}
