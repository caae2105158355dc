package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/ValentinKolb/vKV/lib/db/engines/maple"
	"github.com/ValentinKolb/vKV/lib/db/engines/pebble"
	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
	"github.com/rcrowley/go-metrics"
)

func newManager(t *testing.T, cfg Config, factory db.EngineFactory) *EnvironmentManager {
	t.Helper()
	m, err := NewEnvironmentManager(cfg, factory)
	if err != nil {
		t.Fatalf("NewEnvironmentManager failed: %v", err)
	}
	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name         string
		filePerStore bool
		stores       int
		expectedEnvs int
	}{
		{"shared", false, 5, 1},
		{"file per store", true, 5, 5},
		{"shared without stores", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			m := newManager(t, Config{MasterDir: dir, FilePerStore: tt.filePerStore, Options: db.DefaultOptions()}, maple.NewEngine)

			for i := 0; i < tt.stores; i++ {
				name := fmt.Sprintf("store-%d", i)
				if _, err := m.GetOrCreateStore(name); err != nil {
					t.Fatalf("GetOrCreateStore(%s) failed: %v", name, err)
				}
				// opening again must not create anything new
				if _, err := m.GetOrCreateStore(name); err != nil {
					t.Fatalf("second GetOrCreateStore(%s) failed: %v", name, err)
				}
			}

			if got := m.Environments(); got != tt.expectedEnvs {
				t.Errorf("Environments() = %d, want %d", got, tt.expectedEnvs)
			}
			if got := m.Registry().Len(); got != tt.stores {
				t.Errorf("Registry().Len() = %d, want %d", got, tt.stores)
			}
			if tt.filePerStore && tt.stores > 0 {
				if _, err := os.Stat(filepath.Join(dir, "store-0")); err != nil {
					t.Errorf("expected per-store directory: %v", err)
				}
			}
		})
	}
}

// TestConcurrentGetOrCreate tests that racing creators all get the same store
func TestConcurrentGetOrCreate(t *testing.T) {
	m := newManager(t, Config{MasterDir: t.TempDir(), FilePerStore: true, Options: db.DefaultOptions()}, maple.NewEngine)

	const workers = 32
	results := make([]store.IStorageEngine, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.GetOrCreateStore("shared")
			if err != nil {
				t.Errorf("GetOrCreateStore failed: %v", err)
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d got a different store instance", i)
		}
	}
	if m.Environments() != 1 {
		t.Errorf("expected exactly one environment, got %d", m.Environments())
	}

	// the winning store is still usable
	if err := results[0].Put([]byte("k"), versioning.NewVersioned([]byte("v"), versioning.NewVectorClock().Incremented(1))); err != nil {
		t.Errorf("Put on winning store failed: %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	m, err := NewEnvironmentManager(Config{Options: db.DefaultOptions()}, maple.NewEngine)
	if err != nil {
		t.Fatalf("NewEnvironmentManager failed: %v", err)
	}
	if m.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", m.State())
	}
	if _, err := m.GetOrCreateStore("a"); !errors.Is(err, store.ErrStorageInitialization) {
		t.Errorf("expected ErrStorageInitialization before Init, got %v", err)
	}

	// closing an uninitialized manager is allowed
	if err := m.Close(); err != nil {
		t.Errorf("Close of uninitialized manager failed: %v", err)
	}
	if err := m.Init(); !errors.Is(err, store.ErrStorageInitialization) {
		t.Errorf("expected ErrStorageInitialization on Init after Close, got %v", err)
	}

	m = newManager(t, Config{Options: db.DefaultOptions()}, maple.NewEngine)
	if err := m.Init(); !errors.Is(err, store.ErrStorageInitialization) {
		t.Errorf("expected ErrStorageInitialization on second Init, got %v", err)
	}
	s, err := m.GetOrCreateStore("a")
	if err != nil {
		t.Fatalf("GetOrCreateStore failed: %v", err)
	}
	if err := m.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if m.State() != StateClosed {
		t.Errorf("State() = %s, want closed", m.State())
	}
	if _, err := m.GetOrCreateStore("a"); !errors.Is(err, store.ErrStorageInitialization) {
		t.Errorf("expected ErrStorageInitialization after Close, got %v", err)
	}
	if _, err := s.Get([]byte("k")); !errors.Is(err, store.ErrStorageAccess) {
		t.Errorf("expected stores to be closed with the manager, got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	opts := db.DefaultOptions()
	opts.Fanout = -1
	if _, err := NewEnvironmentManager(Config{Options: opts}, maple.NewEngine); err == nil {
		t.Errorf("expected invalid options to be rejected")
	}
	if _, err := NewEnvironmentManager(Config{Options: db.DefaultOptions()}, nil); err == nil {
		t.Errorf("expected nil factory to be rejected")
	}
}

func TestStoreNames(t *testing.T) {
	m := newManager(t, Config{MasterDir: t.TempDir(), FilePerStore: true, Options: db.DefaultOptions()}, maple.NewEngine)

	for _, name := range []string{"", ".", "..", "a/b", "a\\b", "nul\x00", string(make([]byte, MaxStoreNameLength+1))} {
		if _, err := m.GetOrCreateStore(name); !errors.Is(err, store.ErrStorageInitialization) {
			t.Errorf("GetOrCreateStore(%q): expected ErrStorageInitialization, got %v", name, err)
		}
	}
	for _, name := range []string{"test", "users.v2", "ünïcode"} {
		if _, err := m.GetOrCreateStore(name); err != nil {
			t.Errorf("GetOrCreateStore(%q) failed: %v", name, err)
		}
	}
}

// TestPebblePersistence tests that data written through a pebble backed manager survives a restart
func TestPebblePersistence(t *testing.T) {
	for _, filePerStore := range []bool{false, true} {
		t.Run(fmt.Sprintf("filePerStore=%v", filePerStore), func(t *testing.T) {
			cfg := Config{MasterDir: t.TempDir(), FilePerStore: filePerStore, Options: db.DefaultOptions()}
			c := versioning.NewVectorClock().Incremented(1)

			m := newManager(t, cfg, pebble.NewEngine)
			for _, name := range []string{"a", "b"} {
				s, err := m.GetOrCreateStore(name)
				if err != nil {
					t.Fatalf("GetOrCreateStore failed: %v", err)
				}
				if err := s.Put([]byte("k"), versioning.NewVersioned([]byte(name), c)); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}
			if err := m.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			m = newManager(t, cfg, pebble.NewEngine)
			for _, name := range []string{"a", "b"} {
				s, _ := m.GetOrCreateStore(name)
				versions, err := s.Get([]byte("k"))
				if err != nil || len(versions) != 1 || string(versions[0].Value()) != name {
					t.Errorf("store %s: expected [%s], got %v (err %v)", name, name, versions, err)
				}
			}
		})
	}
}

func TestMeteredStores(t *testing.T) {
	registry := metrics.NewRegistry()
	m := newManager(t, Config{Options: db.DefaultOptions(), Metrics: registry}, maple.NewEngine)

	s, _ := m.GetOrCreateStore("metered")
	_, _ = s.Get([]byte("k"))

	stats, err := m.Registry().Stats("metered")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Gets != 1 {
		t.Errorf("Gets = %d, want 1", stats.Gets)
	}
	if _, err := m.Registry().Stats("unknown"); !errors.Is(err, store.ErrNoSuchStore) {
		t.Errorf("expected ErrNoSuchStore, got %v", err)
	}
}

func TestObsoleteWritesCounted(t *testing.T) {
	for _, reject := range []bool{false, true} {
		t.Run(fmt.Sprintf("reject=%v", reject), func(t *testing.T) {
			registry := metrics.NewRegistry()
			m := newManager(t, Config{Options: db.DefaultOptions(), Metrics: registry, RejectObsolete: reject}, maple.NewEngine)

			s, err := m.GetOrCreateStore("obsolete")
			if err != nil {
				t.Fatalf("GetOrCreateStore failed: %v", err)
			}
			v := versioning.NewVersioned([]byte("v"), versioning.NewVectorClock().Incremented(1))
			if err := s.Put([]byte("k"), v); err != nil {
				t.Fatalf("first Put failed: %v", err)
			}
			err = s.Put([]byte("k"), v)
			if reject && !errors.Is(err, store.ErrObsoleteVersion) {
				t.Errorf("expected ErrObsoleteVersion, got %v", err)
			}
			if !reject && err != nil {
				t.Errorf("expected obsolete write to be ignored, got %v", err)
			}

			stats, err := m.Registry().Stats("obsolete")
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if stats.Obsolete != 1 {
				t.Errorf("Obsolete = %d, want 1", stats.Obsolete)
			}
			if stats.Puts != 2 || stats.Errors != 0 {
				t.Errorf("Puts = %d, Errors = %d, want 2 and 0", stats.Puts, stats.Errors)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	m := newManager(t, Config{Options: db.DefaultOptions()}, maple.NewEngine)
	for _, name := range []string{"c", "a", "b"} {
		_, _ = m.GetOrCreateStore(name)
	}

	names := m.Registry().Names()
	if fmt.Sprint(names) != "[a b c]" {
		t.Errorf("Names() = %v, want [a b c]", names)
	}
	if _, err := m.Registry().Lookup("missing"); !errors.Is(err, store.ErrNoSuchStore) {
		t.Errorf("expected ErrNoSuchStore, got %v", err)
	}
	if s, err := m.Registry().Lookup("a"); err != nil || s.Name() != "a" {
		t.Errorf("Lookup(a) = (%v, %v)", s, err)
	}
}
