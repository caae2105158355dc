package pebble

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/vKV/lib/db"
	dbtesting "github.com/ValentinKolb/vKV/lib/db/testing"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

func newTestEngine(t *testing.T, opts db.Options, fs vfs.FS) *engineImpl {
	t.Helper()
	engine, err := newEngine(opts, fs)
	if err != nil {
		t.Fatalf("newEngine failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestPebbleInterface(t *testing.T) {
	for _, durability := range []db.Durability{db.DurabilityFull, db.DurabilityWriteBuffered, db.DurabilityRelaxed} {
		opts := db.DefaultOptions()
		opts.Durability = durability
		opts.CacheSizeBytes = 1 << 20

		dbtesting.RunKVDBTests(t, "PebbleDB-"+durability.String(), func(t *testing.T) db.Environment {
			engine := newTestEngine(t, opts, vfs.NewMem())
			env, err := engine.OpenEnvironment("data")
			if err != nil {
				t.Fatalf("OpenEnvironment failed: %v", err)
			}
			t.Cleanup(func() { _ = env.Close() })
			return env
		})
	}
}

// TestReopenEnvironment tests that synced data survives closing and reopening an environment
func TestReopenEnvironment(t *testing.T) {
	for _, durability := range []db.Durability{db.DurabilityFull, db.DurabilityWriteBuffered, db.DurabilityRelaxed} {
		t.Run(durability.String(), func(t *testing.T) {
			fs := vfs.NewMem()
			opts := db.DefaultOptions()
			opts.Durability = durability
			engine := newTestEngine(t, opts, fs)
			dir := filepath.Join("master", "store")

			env, err := engine.OpenEnvironment(dir)
			if err != nil {
				t.Fatalf("OpenEnvironment failed: %v", err)
			}
			table, _ := env.OpenTable("t")
			if err := table.Put([]byte("k"), []byte("v")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := env.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
			// closing twice returns the same result
			if err := env.Close(); err != nil {
				t.Fatalf("second Close failed: %v", err)
			}
			if _, _, err := table.Get([]byte("k")); err != ErrClosed {
				t.Errorf("expected ErrClosed after env close, got %v", err)
			}

			env, err = engine.OpenEnvironment(dir)
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			defer env.Close()
			table, _ = env.OpenTable("t")
			val, ok, err := table.Get([]byte("k"))
			if err != nil || !ok || string(val) != "v" {
				t.Errorf("expected (v, true, nil) after reopen, got (%s, %v, %v)", val, ok, err)
			}
		})
	}
}

// TestSharedCache tests that environments share the engine cache
func TestSharedCache(t *testing.T) {
	engine := newTestEngine(t, db.DefaultOptions(), vfs.NewMem())

	a := engine.pebbleOptions("a")
	b := engine.pebbleOptions("b")
	if a.Cache != b.Cache || a.Cache != engine.cache {
		t.Errorf("expected all environments to use the engine cache")
	}
	if a.Cache.MaxSize() != db.DefaultOptions().CacheSizeBytes {
		t.Errorf("cache size = %d, want %d", a.Cache.MaxSize(), db.DefaultOptions().CacheSizeBytes)
	}
}

// TestOptionsMapping tests the translation of engine options to pebble options
func TestOptionsMapping(t *testing.T) {
	opts := db.Options{
		Durability:      db.DurabilityWriteBuffered,
		CheckpointBytes: 1 << 20,
		MaxSegmentBytes: 4 << 20,
		Fanout:          32,
	}
	po := newTestEngine(t, opts, vfs.NewMem()).pebbleOptions("x")

	if po.DisableWAL {
		t.Errorf("write-buffered must keep the WAL")
	}
	if po.WALBytesPerSync != 1<<20 || po.BytesPerSync != 1<<20 {
		t.Errorf("bytes per sync = (%d, %d), want 1MiB", po.BytesPerSync, po.WALBytesPerSync)
	}
	if po.Levels[0].TargetFileSize != 4<<20 {
		t.Errorf("TargetFileSize = %d, want %d", po.Levels[0].TargetFileSize, 4<<20)
	}
	if po.Levels[0].BlockRestartInterval != 32 {
		t.Errorf("BlockRestartInterval = %d, want 32", po.Levels[0].BlockRestartInterval)
	}

	opts.Durability = db.DurabilityRelaxed
	if po := newTestEngine(t, opts, vfs.NewMem()).pebbleOptions("x"); !po.DisableWAL {
		t.Errorf("relaxed must disable the WAL")
	}
}

// TestWriteOptions tests the commit mode for each durability
func TestWriteOptions(t *testing.T) {
	tests := []struct {
		durability db.Durability
		expected   *pebble.WriteOptions
	}{
		{db.DurabilityFull, pebble.Sync},
		{db.DurabilityWriteBuffered, pebble.NoSync},
		{db.DurabilityRelaxed, pebble.NoSync},
	}

	for _, tt := range tests {
		t.Run(tt.durability.String(), func(t *testing.T) {
			opts := db.DefaultOptions()
			opts.Durability = tt.durability
			env, err := newTestEngine(t, opts, vfs.NewMem()).OpenEnvironment("d")
			if err != nil {
				t.Fatalf("OpenEnvironment failed: %v", err)
			}
			defer env.Close()
			if got := env.(*environmentImpl).writeOpts; got != tt.expected {
				t.Errorf("writeOpts = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestCheckpointer tests that the background checkpointer stops on close
func TestCheckpointer(t *testing.T) {
	opts := db.DefaultOptions()
	opts.CheckpointInterval = 5 * time.Millisecond
	env, err := newTestEngine(t, opts, vfs.NewMem()).OpenEnvironment("d")
	if err != nil {
		t.Fatalf("OpenEnvironment failed: %v", err)
	}
	table, _ := env.OpenTable("t")
	for i := 0; i < 10; i++ {
		_ = table.Put([]byte{byte(i)}, []byte("v"))
		time.Sleep(time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		_ = env.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop the checkpointer")
	}
}

func TestClosedEngine(t *testing.T) {
	engine := newTestEngine(t, db.DefaultOptions(), vfs.NewMem())
	_ = engine.Close()
	if _, err := engine.OpenEnvironment("d"); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
