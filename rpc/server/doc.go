// Package server wires a complete vKV server process.
//
// A Server owns:
//
//   - the storage.EnvironmentManager with the backend engine selected by the config
//     (pebble or maple) and an rcrowley/go-metrics registry for the per-store timers
//   - the store server: a transport server running one protocol.Session per connection
//   - the admin server (optional): a second transport server with its own pool running
//     admin sessions with the configured serializer
//   - the metrics endpoint (optional): an http server exposing the VictoriaMetrics set on
//     /metrics, the store timers as json on /debug/stores and pprof on /debug/pprof/
//
// Lifecycle:
//
//	Start initializes the storage, opens the configured stores and binds all listeners.
//	Shutdown stops the listeners, lets sessions drain for the grace period of their pool
//	and closes the storage (syncing every environment). Serve combines both and blocks
//	until its context is cancelled.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.Stores = []string{"users"}
//
//	s, err := server.NewServer(config)
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := s.Serve(ctx); err != nil {
//		log.Fatalf("server error: %v", err)
//	}
package server
