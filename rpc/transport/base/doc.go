// Package base implements the connection server and the dialer of the vKV transports
// independent of the specific network type (TCP, Unix sockets). It is extended with
// protocol-specific connectors.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: interfaces for network specific operations
//     (listen, dial, socket options).
//
//   - serverTransport: accepts connections and submits one session per connection to
//     the worker pool. Tracks all live connections for shutdown.
//
//   - workerPool: runs sessions on at most MaxWorkers goroutines. CoreWorkers stay alive
//     while idle, workers above that exit after KeepAlive without work. A new connection
//     is handed directly to an idle worker or starts a new one. There is no queue: when
//     all workers are busy the connection is rejected (closed immediately) and counted.
//
//   - clientTransport: dials with jittered exponential backoff until the timeout of the
//     client config expires.
//
//   - WriteFrame/ReadFrame: uint32 length prefixed frames, used by the admin channel.
//
// Shutdown:
//
//	Shutdown closes the listener, cancels the session context and sets the read deadline
//	of every connection to now, so idle sessions end at once and sessions that are executing
//	a request finish it. After the grace period all remaining connections are closed.
//
// Metrics (VictoriaMetrics, labelled with the server name):
//
//	vkv_connections_accepted_total, vkv_connections_rejected_total, vkv_connections_active
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
