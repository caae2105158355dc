package base

import (
	"bytes"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// testConnector listens on a random local TCP port
type testConnector struct {
	upgraded atomic.Int32
}

func (c *testConnector) GetName() string { return "tcp" }

func (c *testConnector) Listen(config common.TransportConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Endpoint)
}

func (c *testConnector) UpgradeConnection(net.Conn, common.TransportConfig) error {
	c.upgraded.Add(1)
	return nil
}

// echoHandler returns every frame until the stream ends
func echoHandler(_ context.Context, conn net.Conn) {
	for {
		frame, err := ReadFrame(conn, 1<<20)
		if err != nil {
			return
		}
		if err := WriteFrame(conn, frame); err != nil {
			return
		}
	}
}

type testServer struct {
	transport.IRPCServerTransport
	connector *testConnector
	set       *metrics.Set
	done      chan error
}

func startServer(t *testing.T, pool common.PoolConfig, handler transport.SessionHandler) *testServer {
	t.Helper()
	s := &testServer{connector: &testConnector{}, set: metrics.NewSet(), done: make(chan error, 1)}
	s.IRPCServerTransport = NewBaseServerTransport("test", s.connector, common.TransportConfig{Endpoint: "127.0.0.1:0"}, pool, s.set)
	s.RegisterHandler(handler)

	go func() { s.done <- s.Listen(context.Background()) }()
	select {
	case <-s.Ready():
	case err := <-s.done:
		t.Fatalf("Listen failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func (s *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	if err := WriteFrame(conn, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	got, err := ReadFrame(conn, 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("echo = %q, want %q", got, payload)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func TestServerEcho(t *testing.T) {
	s := startServer(t, common.PoolConfig{CoreWorkers: 1, MaxWorkers: 4, KeepAlive: time.Second}, echoHandler)

	for i := 0; i < 3; i++ {
		conn := s.dial(t)
		roundTrip(t, conn, []byte("hello"))
		roundTrip(t, conn, []byte{})
		roundTrip(t, conn, bytes.Repeat([]byte{0xab}, 64<<10))
	}

	if got := s.Stats().Accepted; got != 3 {
		t.Errorf("Accepted = %d, want 3", got)
	}
	if got := s.connector.upgraded.Load(); got != 3 {
		t.Errorf("UpgradeConnection called %d times, want 3", got)
	}
}

// TestServerRejection tests that a connection beyond the worker cap is closed while the others keep working
func TestServerRejection(t *testing.T) {
	started := make(chan struct{}, 1)
	handler := func(ctx context.Context, conn net.Conn) {
		started <- struct{}{}
		echoHandler(ctx, conn)
	}
	s := startServer(t, common.PoolConfig{CoreWorkers: 0, MaxWorkers: 1, KeepAlive: time.Second, GracePeriod: time.Second}, handler)

	first := s.dial(t)
	<-started
	roundTrip(t, first, []byte("first"))

	second := s.dial(t)
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := second.Read(make([]byte, 1))
	var ne net.Error
	if err == nil || (errors.As(err, &ne) && ne.Timeout()) {
		t.Fatalf("expected the rejected connection to be closed, got %v", err)
	}

	if got := s.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
	if got := s.Stats().Active; got != 1 {
		t.Errorf("Active = %d, want 1", got)
	}

	// the admitted session is not affected
	roundTrip(t, first, []byte("still there"))

	var buf bytes.Buffer
	s.set.WritePrometheus(&buf)
	if !bytes.Contains(buf.Bytes(), []byte(`vkv_connections_rejected_total{server="test"} 1`)) {
		t.Errorf("expected rejected counter in metrics output:\n%s", buf.String())
	}
}

// TestServerShutdown tests that Shutdown ends idle sessions and makes Listen return
func TestServerShutdown(t *testing.T) {
	ended := make(chan struct{})
	handler := func(ctx context.Context, conn net.Conn) {
		echoHandler(ctx, conn)
		close(ended)
	}
	s := startServer(t, common.PoolConfig{CoreWorkers: 1, MaxWorkers: 2, KeepAlive: time.Second, GracePeriod: 2 * time.Second}, handler)

	conn := s.dial(t)
	roundTrip(t, conn, []byte("ping"))

	start := time.Now()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown of an idle session took %s, expected it to end before the grace period", elapsed)
	}

	select {
	case <-ended:
	default:
		t.Errorf("session did not end")
	}
	select {
	case err := <-s.done:
		if err != nil {
			t.Errorf("Listen returned %v after shutdown, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after shutdown")
	}
	if got := s.Stats().Active; got != 0 {
		t.Errorf("Active = %d after shutdown, want 0", got)
	}

	// a second shutdown is a no-op
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}

// TestServerForcedClose tests that sessions ignoring the cancellation are closed after the grace period
func TestServerForcedClose(t *testing.T) {
	handler := func(_ context.Context, conn net.Conn) {
		// ignores deadlines, only a closed connection ends the session
		buf := make([]byte, 1)
		for {
			_ = conn.SetReadDeadline(time.Time{})
			if _, err := conn.Read(buf); err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					continue
				}
				return
			}
		}
	}
	s := startServer(t, common.PoolConfig{CoreWorkers: 0, MaxWorkers: 1, GracePeriod: 100 * time.Millisecond}, handler)
	s.dial(t)
	if !waitFor(t, 2*time.Second, func() bool { return s.Stats().Active == 1 }) {
		t.Fatalf("session did not start")
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := s.Stats().Active; got != 0 {
		t.Errorf("Active = %d after forced close, want 0", got)
	}
}

func TestShutdownBeforeListen(t *testing.T) {
	s := NewBaseServerTransport("test", &testConnector{}, common.TransportConfig{Endpoint: "127.0.0.1:0"},
		common.PoolConfig{MaxWorkers: 1}, nil)
	s.RegisterHandler(echoHandler)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := s.Listen(context.Background()); err != nil {
		t.Errorf("Listen after Shutdown = %v, want nil", err)
	}
	select {
	case <-s.Ready():
	default:
		t.Errorf("Ready must be closed when Listen returns after Shutdown")
	}
	if s.Addr() != nil {
		t.Errorf("Addr = %v, want nil", s.Addr())
	}
}

func TestShutdownWhileAccepting(t *testing.T) {
	s := startServer(t, common.PoolConfig{CoreWorkers: 2, MaxWorkers: 8, KeepAlive: time.Second, GracePeriod: 100 * time.Millisecond}, echoHandler)
	addr := s.Addr().String()

	// dialers keep connecting while the server shuts down
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, err := net.DialTimeout("tcp", addr, time.Second)
				if err != nil {
					continue
				}
				_ = conn.Close()
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-s.done:
		if err != nil {
			t.Errorf("Listen returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after Shutdown")
	}
	if got := s.Stats().Active; got != 0 {
		t.Errorf("Active = %d after Shutdown, want 0", got)
	}
}

func TestFrameLimit(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() { _ = WriteFrame(client, make([]byte, 128)) }()
	if _, err := ReadFrame(server, 64); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}
