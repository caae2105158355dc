package client

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/ValentinKolb/vKV/lib/db/engines/maple"
	"github.com/ValentinKolb/vKV/lib/storage"
	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/ValentinKolb/vKV/rpc/admin"
	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/protocol"
	"github.com/ValentinKolb/vKV/rpc/serializer"
	"github.com/cockroachdb/errors"
	"github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newManager(t *testing.T, stores ...string) *storage.EnvironmentManager {
	t.Helper()
	m, err := storage.NewEnvironmentManager(storage.Config{
		MasterDir: t.TempDir(),
		Options:   db.DefaultOptions(),
		Metrics:   metrics.NewRegistry(),
	}, maple.NewEngine)
	if err != nil {
		t.Fatalf("NewEnvironmentManager failed: %v", err)
	}
	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	for _, name := range stores {
		if _, err := m.GetOrCreateStore(name); err != nil {
			t.Fatalf("GetOrCreateStore(%s) failed: %v", name, err)
		}
	}
	return m
}

// pipeStore connects a socket store to a protocol session over a pipe
func pipeStore(t *testing.T, m *storage.EnvironmentManager, name string) *socketStore {
	t.Helper()
	server, client := net.Pipe()
	go func() {
		_ = protocol.NewSession(server, m.Registry(), protocol.SessionOptions{}).Serve(context.Background())
		_ = server.Close()
	}()
	s := newSocketStore(client, name, common.ClientConfig{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// pipeAdmin connects an admin client to an admin session over a pipe
func pipeAdmin(t *testing.T, m *storage.EnvironmentManager, ser serializer.IRPCSerializer) *AdminClient {
	t.Helper()
	server, client := net.Pipe()
	stats := func() common.ServerStats { return common.ServerStats{Engine: "maple", UptimeSec: 42} }
	go func() {
		_ = admin.Serve(context.Background(), server, admin.NewAdminAdapter(m, stats), ser, 1<<20)
		_ = server.Close()
	}()
	c := newAdminClient(client, ser, common.ClientConfig{})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func clock(counters ...uint64) versioning.VectorClock {
	vc := versioning.NewVectorClock()
	for node, c := range counters {
		for i := uint64(0); i < c; i++ {
			vc = vc.Incremented(uint16(node))
		}
	}
	return vc
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func TestSocketStore(t *testing.T) {
	m := newManager(t, "users")
	s := pipeStore(t, m, "users")

	if s.Name() != "users" {
		t.Errorf("Name() = %s, want users", s.Name())
	}

	key := []byte("alice")
	if err := s.Put(key, versioning.NewVersioned([]byte("v1"), clock(1))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(key, versioning.NewVersioned([]byte("v2"), clock(0, 1))); err != nil {
		t.Fatalf("concurrent Put failed: %v", err)
	}

	versions, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(versions))
	}

	// the remote store sees the same data as the local one
	local, _ := m.Registry().Get("users")
	localVersions, err := local.Get(key)
	if err != nil || len(localVersions) != 2 {
		t.Errorf("local Get = (%v, %v), want 2 siblings", localVersions, err)
	}

	deleted, err := s.Delete(key, clock(1, 1))
	if err != nil || !deleted {
		t.Fatalf("Delete = (%v, %v), want true", deleted, err)
	}
	if versions, _ := s.Get(key); len(versions) != 0 {
		t.Errorf("expected no versions after Delete, got %d", len(versions))
	}
}

// TestSocketStoreRemoteErrors tests that error responses keep the connection usable and match the sentinels
func TestSocketStoreRemoteErrors(t *testing.T) {
	m := newManager(t)
	s := pipeStore(t, m, "missing")

	for i := 0; i < 3; i++ {
		_, err := s.Get([]byte("k"))
		if !errors.Is(err, store.ErrNoSuchStore) {
			t.Fatalf("Get %d: expected ErrNoSuchStore, got %v", i, err)
		}
	}
	if s.broken != nil {
		t.Errorf("remote errors must not close the connection: %v", s.broken)
	}

	if _, err := m.GetOrCreateStore("missing"); err != nil {
		t.Fatalf("GetOrCreateStore failed: %v", err)
	}
	if _, err := s.Get([]byte("k")); err != nil {
		t.Errorf("Get after the store was opened failed: %v", err)
	}
}

func TestSocketStoreConcurrent(t *testing.T) {
	m := newManager(t, "test")
	s := pipeStore(t, m, "test")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := []byte{byte(w)}
			for i := 1; i <= 20; i++ {
				if err := s.Put(key, versioning.NewVersioned([]byte{byte(i)}, clock(uint64(i)))); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		versions, err := s.Get([]byte{byte(w)})
		if err != nil || len(versions) != 1 || versions[0].Value()[0] != 20 {
			t.Errorf("key %d: got (%v, %v), want the last write", w, versions, err)
		}
	}
}

func TestSocketStoreClosed(t *testing.T) {
	m := newManager(t, "test")
	s := pipeStore(t, m, "test")

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Get([]byte("k")); err == nil {
		t.Errorf("expected an error after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSocketStoreOversizedClock(t *testing.T) {
	m := newManager(t, "test")
	s := pipeStore(t, m, "test")

	entries := make([]versioning.ClockEntry, 0, versioning.MaxEntries+1)
	for node := 0; node <= versioning.MaxEntries; node++ {
		entries = append(entries, versioning.ClockEntry{NodeID: uint16(node), Counter: 1})
	}
	vc := versioning.NewVectorClockOf(1000, entries...)

	if err := s.Put([]byte("k"), versioning.NewVersioned([]byte("v"), vc)); !errors.Is(err, versioning.ErrClockOverflow) {
		t.Errorf("Put: expected ErrClockOverflow, got %v", err)
	}
	if _, err := s.Delete([]byte("k"), vc); !errors.Is(err, versioning.ErrClockOverflow) {
		t.Errorf("Delete: expected ErrClockOverflow, got %v", err)
	}

	// nothing was written, the connection is still usable
	if _, err := s.Get([]byte("k")); err != nil {
		t.Errorf("Get after refused request failed: %v", err)
	}
}

func TestAdminClient(t *testing.T) {
	for name, factory := range map[string]func() serializer.IRPCSerializer{
		"JSON":   serializer.NewJSONSerializer,
		"GOB":    serializer.NewGOBSerializer,
		"Binary": serializer.NewBinarySerializer,
	} {
		t.Run(name, func(t *testing.T) {
			m := newManager(t, "b")
			c := pipeAdmin(t, m, factory())

			created, err := c.OpenStore("a")
			if err != nil || !created {
				t.Fatalf("OpenStore(a) = (%v, %v), want created", created, err)
			}
			created, err = c.OpenStore("a")
			if err != nil || created {
				t.Fatalf("second OpenStore(a) = (%v, %v), want existing", created, err)
			}
			if _, err := c.OpenStore("../escape"); err == nil {
				t.Errorf("expected invalid store name to fail")
			}

			names, err := c.ListStores()
			if err != nil {
				t.Fatalf("ListStores failed: %v", err)
			}
			if len(names) != 2 || names[0] != "a" || names[1] != "b" {
				t.Errorf("ListStores() = %v, want [a b]", names)
			}

			s, _ := m.Registry().Get("a")
			_ = s.Put([]byte("k"), versioning.NewVersioned([]byte("v"), clock(1)))
			_, _ = s.Get([]byte("k"))

			stats, err := c.StoreStats("a")
			if err != nil {
				t.Fatalf("StoreStats failed: %v", err)
			}
			if stats.Name != "a" || stats.Puts != 1 || stats.Gets != 1 {
				t.Errorf("StoreStats() = %+v, want one put and one get", stats)
			}
			if _, err := c.StoreStats("missing"); err == nil {
				t.Errorf("expected StoreStats of a missing store to fail")
			}

			server, err := c.ServerStats()
			if err != nil {
				t.Fatalf("ServerStats failed: %v", err)
			}
			if server.Stores != 2 || server.Environments != 1 || server.UptimeSec != 42 || server.Engine != "maple" {
				t.Errorf("ServerStats() = %+v", server)
			}

			if err := c.Sync(); err != nil {
				t.Errorf("Sync failed: %v", err)
			}
		})
	}
}
