package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/ValentinKolb/vKV/lib/db/engines/maple"
	"github.com/ValentinKolb/vKV/lib/storage"
	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

type testConn struct {
	r    *Reader
	w    *Writer
	conn net.Conn
	done chan error
	m    *Metrics
}

// startSession opens the given stores and runs a session on one end of a pipe
func startSession(t *testing.T, rejectObsolete bool, stores ...string) *testConn {
	t.Helper()
	m, err := storage.NewEnvironmentManager(storage.Config{
		MasterDir:      t.TempDir(),
		Options:        db.DefaultOptions(),
		RejectObsolete: rejectObsolete,
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

	server, client := net.Pipe()
	tc := &testConn{
		r:    NewReader(client, 0),
		w:    NewWriter(client),
		conn: client,
		done: make(chan error, 1),
		m:    NewMetrics(metrics.NewSet()),
	}
	session := NewSession(server, m.Registry(), SessionOptions{Metrics: tc.m})
	go func() {
		tc.done <- session.Serve(context.Background())
		_ = server.Close()
	}()
	t.Cleanup(func() { _ = client.Close() })
	return tc
}

func (tc *testConn) get(t *testing.T, storeName, key string) ([]versioning.Versioned, error) {
	t.Helper()
	if err := tc.w.WriteGetRequest(storeName, []byte(key)); err != nil {
		t.Fatalf("WriteGetRequest failed: %v", err)
	}
	return tc.r.ReadGetResponse()
}

func (tc *testConn) put(t *testing.T, storeName, key, value string, clock versioning.VectorClock) error {
	t.Helper()
	if err := tc.w.WritePutRequest(storeName, []byte(key), versioning.NewVersioned([]byte(value), clock)); err != nil {
		t.Fatalf("WritePutRequest failed: %v", err)
	}
	return tc.r.ReadPutResponse()
}

func (tc *testConn) delete(t *testing.T, storeName, key string, clock versioning.VectorClock) (bool, error) {
	t.Helper()
	if err := tc.w.WriteDeleteRequest(storeName, []byte(key), clock); err != nil {
		t.Fatalf("WriteDeleteRequest failed: %v", err)
	}
	return tc.r.ReadDeleteResponse()
}

// waitClosed waits for the session to end and returns its error
func (tc *testConn) waitClosed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-tc.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func clock(counters ...uint64) versioning.VectorClock {
	entries := make([]versioning.ClockEntry, 0, len(counters))
	for i, c := range counters {
		if c > 0 {
			entries = append(entries, versioning.ClockEntry{NodeID: uint16(i), Counter: c})
		}
	}
	return versioning.NewVectorClockOf(1, entries...)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

// TestScenario runs the put, conflict, supersede and delete cycle of one key over the wire
func TestScenario(t *testing.T) {
	tc := startSession(t, false, "test")

	versions, err := tc.get(t, "test", "k")
	if err != nil || len(versions) != 0 {
		t.Fatalf("get of absent key = (%v, %v), want empty", versions, err)
	}

	if err := tc.put(t, "test", "k", "a", clock(1)); err != nil {
		t.Fatalf("put a failed: %v", err)
	}
	if err := tc.put(t, "test", "k", "b", clock(0, 1)); err != nil {
		t.Fatalf("put b failed: %v", err)
	}
	versions, err = tc.get(t, "test", "k")
	if err != nil || len(versions) != 2 {
		t.Fatalf("expected two concurrent siblings, got (%v, %v)", versions, err)
	}

	if err := tc.put(t, "test", "k", "c", clock(1, 1)); err != nil {
		t.Fatalf("put c failed: %v", err)
	}
	versions, err = tc.get(t, "test", "k")
	if err != nil || len(versions) != 1 || string(versions[0].Value()) != "c" {
		t.Fatalf("expected c to supersede both siblings, got (%v, %v)", versions, err)
	}

	deleted, err := tc.delete(t, "test", "k", clock(1, 1))
	if err != nil || !deleted {
		t.Fatalf("delete = (%v, %v), want true", deleted, err)
	}
	deleted, err = tc.delete(t, "test", "k", clock(1, 1))
	if err != nil || deleted {
		t.Fatalf("second delete = (%v, %v), want false", deleted, err)
	}

	_ = tc.conn.Close()
	if err := tc.waitClosed(t); err != nil {
		t.Errorf("expected clean end of session, got %v", err)
	}
	if got := tc.m.Requests(); got != 8 {
		t.Errorf("Requests() = %d, want 8", got)
	}
	if got := tc.m.Errors(); got != 0 {
		t.Errorf("Errors() = %d, want 0", got)
	}
}

// TestUnknownStore tests that an unknown store is answered with an error and the connection stays usable
func TestUnknownStore(t *testing.T) {
	tc := startSession(t, false, "test")

	err := tc.put(t, "missing", "k", "v", clock(1))
	if !errors.Is(err, store.ErrNoSuchStore) {
		t.Fatalf("expected ErrNoSuchStore, got %v", err)
	}
	if _, err := tc.delete(t, "missing", "k", clock(1)); store.CodeOf(err) != store.RetCNoSuchStore {
		t.Fatalf("expected code %s, got %v", store.RetCNoSuchStore, err)
	}
	if versions, err := tc.get(t, "missing", "k"); !errors.Is(err, store.ErrNoSuchStore) || len(versions) != 0 {
		t.Fatalf("expected ErrNoSuchStore without versions, got (%v, %v)", versions, err)
	}

	// the stream is still aligned
	if err := tc.put(t, "test", "k", "v", clock(1)); err != nil {
		t.Fatalf("put after error failed: %v", err)
	}
	versions, err := tc.get(t, "test", "k")
	if err != nil || len(versions) != 1 || string(versions[0].Value()) != "v" {
		t.Fatalf("get after error = (%v, %v)", versions, err)
	}
	if got := tc.m.Errors(); got != 3 {
		t.Errorf("Errors() = %d, want 3", got)
	}
}

// TestUnknownOpcode tests that an unknown opcode ends the session with a framing error
func TestUnknownOpcode(t *testing.T) {
	tc := startSession(t, false, "test")

	if err := tc.w.Uint8(42).Flush(); err != nil {
		t.Fatalf("write opcode failed: %v", err)
	}
	if err := tc.waitClosed(t); !errors.Is(err, ErrProtocolFraming) {
		t.Fatalf("expected ErrProtocolFraming, got %v", err)
	}
	if _, err := tc.r.Uint8(); err == nil {
		t.Errorf("expected the connection to be closed")
	}
}

// TestOversizedField tests that length fields above the limit end the session
func TestOversizedField(t *testing.T) {
	tc := startSession(t, false, "test")

	if err := tc.w.Uint8(uint8(OpGet)).UTF("test").Uint32(DefaultMaxRequestBytes + 1).Flush(); err != nil {
		t.Fatalf("write header failed: %v", err)
	}
	if err := tc.waitClosed(t); !errors.Is(err, ErrProtocolFraming) {
		t.Fatalf("expected ErrProtocolFraming, got %v", err)
	}
}

// TestMalformedClock tests that undecodable versions are answered with the malformed version code
func TestMalformedClock(t *testing.T) {
	tc := startSession(t, false, "test")

	// a put body that is too short for a clock
	if err := tc.w.header(OpPut, "test", []byte("k")).LongBytes([]byte{1, 2}).Flush(); err != nil {
		t.Fatalf("write put failed: %v", err)
	}
	if err := tc.r.ReadPutResponse(); store.CodeOf(err) != store.RetCMalformedVersion {
		t.Fatalf("expected code %s, got %v", store.RetCMalformedVersion, err)
	}

	// a delete body with trailing bytes after the clock
	body := append(clock(1).Encode(), 0xff)
	if err := tc.w.header(OpDelete, "test", []byte("k")).ShortBytes(body).Flush(); err != nil {
		t.Fatalf("write delete failed: %v", err)
	}
	if _, err := tc.r.ReadDeleteResponse(); store.CodeOf(err) != store.RetCMalformedVersion {
		t.Fatalf("expected code %s, got %v", store.RetCMalformedVersion, err)
	}

	// the session survives both
	if _, err := tc.get(t, "test", "k"); err != nil {
		t.Fatalf("get after malformed requests failed: %v", err)
	}
}

// TestObsoletePut tests both obsolete write policies over the wire
func TestObsoletePut(t *testing.T) {
	t.Run("ignore", func(t *testing.T) {
		tc := startSession(t, false, "test")
		if err := tc.put(t, "test", "k", "new", clock(2)); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		if err := tc.put(t, "test", "k", "old", clock(1)); err != nil {
			t.Fatalf("obsolete put should be ignored, got %v", err)
		}
		versions, _ := tc.get(t, "test", "k")
		if len(versions) != 1 || string(versions[0].Value()) != "new" {
			t.Errorf("expected only the newer value, got %v", versions)
		}
	})

	t.Run("reject", func(t *testing.T) {
		tc := startSession(t, true, "test")
		if err := tc.put(t, "test", "k", "new", clock(2)); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		if err := tc.put(t, "test", "k", "old", clock(1)); !errors.Is(err, store.ErrObsoleteVersion) {
			t.Fatalf("expected ErrObsoleteVersion, got %v", err)
		}
	})
}

// TestCancel tests that a cancelled context ends an idle session after the read deadline fires
func TestCancel(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(server, storage.NewRegistry(), SessionOptions{})
	done := make(chan error, 1)
	go func() { done <- session.Serve(ctx) }()

	cancel()
	_ = server.SetReadDeadline(time.Now())

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after cancel")
	}
	if s := session.State(); s != StateClosed {
		t.Errorf("State() = %s, want %s", s, StateClosed)
	}
}
