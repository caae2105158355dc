package server

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/ValentinKolb/vKV/lib/db/engines/maple"
	"github.com/ValentinKolb/vKV/lib/db/engines/pebble"
	"github.com/ValentinKolb/vKV/lib/storage"
	"github.com/ValentinKolb/vKV/rpc/admin"
	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/protocol"
	"github.com/ValentinKolb/vKV/rpc/serializer"
	"github.com/ValentinKolb/vKV/rpc/transport"
	"github.com/ValentinKolb/vKV/rpc/transport/tcp"
	"github.com/ValentinKolb/vKV/rpc/transport/unix"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"

	_ "net/http/pprof"
)

var Logger = logger.GetLogger("rpc")

// Server wires the storage manager, the store server, the admin server and the metrics endpoint
type Server struct {
	config  common.ServerConfig
	manager *storage.EnvironmentManager

	storeServer transport.IRPCServerTransport
	adminServer transport.IRPCServerTransport
	httpServer  *http.Server
	httpAddr    net.Addr

	set          *vmetrics.Set
	registry     metrics.Registry
	protoMetrics *protocol.Metrics
	started      time.Time

	errs     chan error
	wg       sync.WaitGroup
	shutdown sync.Once
	closeErr error
}

// NewServer validates the config and creates a server. Nothing is opened before Start.
//
// Usage:
//
//	s, err := server.NewServer(config)
//	if err != nil {
//		panic(err)
//	}
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewServer(config common.ServerConfig) (*Server, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server config")
	}
	common.InitLoggers(config.LogLevel)

	factory, err := engineFactory(config.Storage.Engine)
	if err != nil {
		return nil, err
	}
	opts, err := config.Storage.ToDBOptions()
	if err != nil {
		return nil, err
	}

	registry := metrics.NewRegistry()
	manager, err := storage.NewEnvironmentManager(storage.Config{
		MasterDir:      config.Storage.DataDir,
		FilePerStore:   config.Storage.FilePerStore,
		Options:        opts,
		RejectObsolete: config.Storage.RejectObsolete,
		Metrics:        registry,
	}, factory)
	if err != nil {
		return nil, err
	}

	set := vmetrics.NewSet()
	s := &Server{
		config:       config,
		manager:      manager,
		set:          set,
		registry:     registry,
		protoMetrics: protocol.NewMetrics(set),
		errs:         make(chan error, 3),
	}

	s.storeServer, err = serverTransport("store", config.Transport, config.Pool, set)
	if err != nil {
		return nil, err
	}
	s.storeServer.RegisterHandler(s.handleStoreSession)

	if config.Admin.Endpoint != "" {
		ser, err := serializer.ByName(config.Serializer)
		if err != nil {
			return nil, err
		}
		s.adminServer, err = serverTransport("admin", config.Admin, config.AdminPool, set)
		if err != nil {
			return nil, err
		}
		s.adminServer.RegisterHandler(admin.NewSessionHandler(admin.NewAdminAdapter(manager, s.Stats), ser, config.MaxRequestBytes))
	}

	return s, nil
}

// engineFactory returns the backend factory of an engine name
func engineFactory(name string) (db.EngineFactory, error) {
	impl, err := db.ParseImplementation(name)
	if err != nil {
		return nil, err
	}
	switch impl {
	case db.ImplMaple:
		return maple.NewEngine, nil
	default:
		return pebble.NewEngine, nil
	}
}

// serverTransport creates the server transport of a network name
func serverTransport(name string, config common.TransportConfig, pool common.PoolConfig, set *vmetrics.Set) (transport.IRPCServerTransport, error) {
	switch config.Network {
	case "", "tcp":
		return tcp.NewTCPServerTransport(name, config, pool, set), nil
	case "unix":
		return unix.NewUnixServerTransport(name, config, pool, set), nil
	default:
		return nil, errors.Newf("invalid %s transport %q (expected one of: tcp, unix)", name, config.Network)
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start initializes the storage, opens the configured stores and starts all listeners.
// It returns as soon as every listener is bound.
func (s *Server) Start() error {
	Logger.Infof("starting vKV server%s", s.config.String())

	if err := s.manager.Init(); err != nil {
		return err
	}
	for _, name := range s.config.Stores {
		if _, err := s.manager.GetOrCreateStore(name); err != nil {
			return errors.CombineErrors(errors.Wrapf(err, "open store %s", name), s.manager.Close())
		}
	}
	s.started = time.Now()

	servers := []transport.IRPCServerTransport{s.storeServer}
	if s.adminServer != nil {
		servers = append(servers, s.adminServer)
	}
	for _, t := range servers {
		if err := s.listen(t); err != nil {
			return errors.CombineErrors(err, s.Shutdown(context.Background()))
		}
	}

	if s.config.MetricsEndpoint != "" {
		if err := s.serveMetrics(); err != nil {
			return errors.CombineErrors(err, s.Shutdown(context.Background()))
		}
	}

	Logger.Infof("vKV server ready (stores: %v)", s.manager.Registry().Names())
	return nil
}

// listen runs the transport in the background and waits until it is bound
func (s *Server) listen(t transport.IRPCServerTransport) error {
	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := t.Listen(context.Background())
		done <- err
		if err != nil {
			s.errs <- err
		}
	}()

	select {
	case <-t.Ready():
		return nil
	case err := <-done:
		if err == nil {
			err = errors.New("listener stopped before it was ready")
		}
		return err
	}
}

// serveMetrics starts the http endpoint of the metrics
func (s *Server) serveMetrics() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.set.WritePrometheus(w)
		vmetrics.WriteProcessMetrics(w)
	})
	mux.HandleFunc("/debug/stores", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		metrics.WriteJSONOnce(s.registry, w)
	})
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	listener, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return errors.Wrapf(err, "failed to create metrics listener on %s", s.config.MetricsEndpoint)
	}
	s.httpAddr = listener.Addr()
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- errors.Wrap(err, "metrics server")
		}
	}()
	Logger.Infof("metrics available on http://%s/metrics", s.httpAddr)
	return nil
}

// Serve starts the server and blocks until ctx is cancelled or a listener fails.
// The server is shut down before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	var err error
	select {
	case <-ctx.Done():
		Logger.Infof("shutting down")
	case err = <-s.errs:
		Logger.Errorf("listener failed, shutting down: %v", err)
	}
	return errors.CombineErrors(err, s.Shutdown(context.Background()))
}

// Shutdown stops the listeners, waits for the sessions up to their grace period and
// closes the storage. Calling Shutdown more than once is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var err error
		if s.httpServer != nil {
			err = errors.CombineErrors(err, s.httpServer.Shutdown(ctx))
		}

		// both servers drain in parallel
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, t := range []transport.IRPCServerTransport{s.storeServer, s.adminServer} {
			if t == nil {
				continue
			}
			wg.Add(1)
			go func(t transport.IRPCServerTransport) {
				defer wg.Done()
				if e := t.Shutdown(ctx); e != nil {
					mu.Lock()
					err = errors.CombineErrors(err, e)
					mu.Unlock()
				}
			}(t)
		}
		wg.Wait()
		s.wg.Wait()

		err = errors.CombineErrors(err, s.manager.Close())
		s.closeErr = err
		Logger.Infof("vKV server stopped")
	})
	return s.closeErr
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Manager returns the storage manager of the server
func (s *Server) Manager() *storage.EnvironmentManager {
	return s.manager
}

// Addr returns the bound address of the store server
func (s *Server) Addr() net.Addr {
	return s.storeServer.Addr()
}

// AdminAddr returns the bound address of the admin server (nil if disabled)
func (s *Server) AdminAddr() net.Addr {
	if s.adminServer == nil {
		return nil
	}
	return s.adminServer.Addr()
}

// MetricsAddr returns the bound address of the metrics endpoint (nil if disabled)
func (s *Server) MetricsAddr() net.Addr {
	return s.httpAddr
}

// Stats returns the connection and request counters of the store server
func (s *Server) Stats() common.ServerStats {
	conns := s.storeServer.Stats()
	return common.ServerStats{
		UptimeSec:           int64(time.Since(s.started).Seconds()),
		Stores:              s.manager.Registry().Len(),
		Environments:        s.manager.Environments(),
		Engine:              s.config.Storage.Engine,
		ActiveConnections:   conns.Active,
		AcceptedConnections: conns.Accepted,
		RejectedConnections: conns.Rejected,
		Requests:            s.protoMetrics.Requests(),
		RequestErrors:       s.protoMetrics.Errors(),
	}
}

// handleStoreSession runs the store protocol on one connection
func (s *Server) handleStoreSession(ctx context.Context, conn net.Conn) {
	session := protocol.NewSession(conn, s.manager.Registry(), protocol.SessionOptions{
		MaxRequestBytes: s.config.MaxRequestBytes,
		IdleTimeout:     time.Duration(s.config.TimeoutSecond) * time.Second,
		Metrics:         s.protoMetrics,
	})
	if err := session.Serve(ctx); err != nil {
		Logger.Warningf("session from %s closed: %v", conn.RemoteAddr(), err)
	}
}
