package base

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("transport")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.TransportConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport accepts connections and runs one session per connection on a worker
type serverTransport struct {
	name      string
	connector IServerConnector
	config    common.TransportConfig
	poolCfg   common.PoolConfig
	handler   transport.SessionHandler
	pool      *workerPool

	mu         sync.Mutex
	listener   net.Listener
	ready      chan struct{}
	readyOnce  sync.Once
	acceptDone chan struct{} // closed when the acceptor loop of Listen returns
	ctx        context.Context
	cancel   context.CancelFunc
	closing  atomic.Bool

	conns    *xsync.MapOf[net.Conn, struct{}]
	sessions sync.WaitGroup
	active   atomic.Int64
	accepted atomic.Uint64
	rejected atomic.Uint64

	acceptedCounter *metrics.Counter
	rejectedCounter *metrics.Counter
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a server transport on top of a connector.
// The name labels log lines and metrics (e.g. "store" or "admin"), set may be nil.
func NewBaseServerTransport(name string, connector IServerConnector, config common.TransportConfig, poolCfg common.PoolConfig, set *metrics.Set) transport.IRPCServerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &serverTransport{
		name:      name,
		connector: connector,
		config:    config,
		poolCfg:   poolCfg,
		ready:      make(chan struct{}),
		acceptDone: make(chan struct{}),
		ctx:        ctx,
		cancel:    cancel,
		conns:     xsync.NewMapOf[net.Conn, struct{}](),
	}
	if set == nil {
		set = metrics.NewSet()
	}
	t.acceptedCounter = set.GetOrCreateCounter(fmt.Sprintf(`vkv_connections_accepted_total{server=%q}`, name))
	t.rejectedCounter = set.GetOrCreateCounter(fmt.Sprintf(`vkv_connections_rejected_total{server=%q}`, name))
	set.GetOrCreateGauge(fmt.Sprintf(`vkv_connections_active{server=%q}`, name), func() float64 {
		return float64(t.active.Load())
	})
	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.SessionHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(ctx context.Context) error {
	if t.handler == nil {
		return errors.New("no session handler registered")
	}
	if err := t.poolCfg.Validate(); err != nil {
		return errors.Wrapf(err, "%s server", t.name)
	}

	listener, err := t.connector.Listen(t.config)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s listener on %s", t.connector.GetName(), t.config.Endpoint)
	}

	t.mu.Lock()
	if t.closing.Load() {
		t.mu.Unlock()
		_ = listener.Close()
		// Ready must not block callers of a server that was shut down before it listened
		t.markReady()
		return nil
	}
	if t.listener != nil {
		t.mu.Unlock()
		_ = listener.Close()
		return errors.Newf("%s server is already listening", t.name)
	}
	t.listener = listener
	t.pool = newWorkerPool(t.poolCfg)
	t.mu.Unlock()
	defer close(t.acceptDone)
	t.markReady()

	// cancelling ctx shuts the server down
	stop := context.AfterFunc(ctx, func() {
		_ = t.Shutdown(context.Background())
	})
	defer stop()

	log.Infof("%s server listening on %s://%s (workers %d/%d)",
		t.name, t.connector.GetName(), listener.Addr(), t.poolCfg.CoreWorkers, t.poolCfg.MaxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closing.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warningf("%s server: accept error: %v", t.name, err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return errors.Wrapf(err, "%s server: accept", t.name)
		}
		t.accept(conn)
	}
}

// Ready is closed once the listener is bound, or when Listen returns early because
// the server was already shut down (Addr is nil then)
func (t *serverTransport) Ready() <-chan struct{} {
	return t.ready
}

func (t *serverTransport) markReady() {
	t.readyOnce.Do(func() { close(t.ready) })
}

func (t *serverTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Shutdown(ctx context.Context) error {
	if t.closing.Swap(true) {
		return nil
	}

	t.mu.Lock()
	var err error
	if t.listener != nil {
		err = t.listener.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	pool := t.pool
	listening := t.listener != nil
	t.mu.Unlock()

	// no session is added once the acceptor loop has returned
	if listening {
		<-t.acceptDone
	}

	// idle sessions wake up, see the cancelled context and end
	t.cancel()
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.SetReadDeadline(time.Now())
		return true
	})

	drained := make(chan struct{})
	go func() {
		t.sessions.Wait()
		close(drained)
	}()

	grace := time.NewTimer(t.poolCfg.GracePeriod)
	defer grace.Stop()
	select {
	case <-drained:
	case <-grace.C:
	case <-ctx.Done():
	}

	forced := 0
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		forced++
		_ = conn.Close()
		return true
	})
	if forced > 0 {
		log.Warningf("%s server: closed %d connections after the grace period", t.name, forced)
	}
	<-drained

	if pool != nil {
		pool.Close()
		pool.Wait()
	}
	log.Infof("%s server stopped", t.name)
	return err
}

func (t *serverTransport) Stats() transport.ConnStats {
	return transport.ConnStats{
		Active:   t.active.Load(),
		Accepted: t.accepted.Load(),
		Rejected: t.rejected.Load(),
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// accept hands a new connection to the pool or rejects it
func (t *serverTransport) accept(conn net.Conn) {
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		log.Warningf("%s server: failed to configure connection from %s: %v", t.name, conn.RemoteAddr(), err)
	}

	t.sessions.Add(1)
	err := t.pool.Submit(func() {
		defer t.sessions.Done()
		t.serve(conn)
	})
	if err != nil {
		t.sessions.Done()
		t.rejected.Add(1)
		t.rejectedCounter.Inc()
		log.Warningf("%s server: %v (%s)", t.name, err, conn.RemoteAddr())
		_ = conn.Close()
		return
	}
	t.accepted.Add(1)
	t.acceptedCounter.Inc()
}

// serve runs the session handler and closes the connection afterwards
func (t *serverTransport) serve(conn net.Conn) {
	t.conns.Store(conn, struct{}{})
	t.active.Add(1)
	defer func() {
		t.active.Add(-1)
		t.conns.Delete(conn)
		_ = conn.Close()
	}()

	// connections accepted during shutdown are closed right away
	if t.closing.Load() {
		return
	}

	log.Debugf("%s server: session from %s started", t.name, conn.RemoteAddr())
	t.handler(t.ctx, conn)
	log.Debugf("%s server: session from %s ended", t.name, conn.RemoteAddr())
}
