// Package transport defines the interfaces between the connection handling of the vKV
// servers and the protocols running on top of it.
//
// A server transport owns the listener and a bounded pool of workers. Every accepted
// connection is handed to a worker which runs the registered SessionHandler until the
// stream ends. The handler only sees a net.Conn, the framing is up to the protocol
// (see the protocol package for the store protocol and the admin package for the
// admin channel).
//
// Key Components:
//
//   - IRPCServerTransport: accepts connections and runs one session per connection.
//     Connections that arrive while all workers are busy are rejected and closed.
//
//   - IRPCClientTransport: dials connections with retries.
//
//   - SessionHandler: function type for session callbacks.
//
// The base package implements both interfaces independent of the network type,
// the tcp and unix packages provide the connectors.
package transport
