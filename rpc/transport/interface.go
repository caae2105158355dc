package transport

import (
	"context"
	"net"

	"github.com/ValentinKolb/vKV/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// SessionHandler runs the session of one accepted connection. It is called by a worker of the
// server transport and must return when the stream ends or ctx is cancelled. The transport
// closes the connection after the handler returned.
type SessionHandler func(ctx context.Context, conn net.Conn)

// ConnStats are the connection counters of a server transport
type ConnStats struct {
	Active   int64
	Accepted uint64
	Rejected uint64
}

// IRPCServerTransport accepts connections and hands each of them to a bounded pool of workers
type IRPCServerTransport interface {
	// RegisterHandler registers the handler that runs the session of every accepted connection.
	// It must be called before Listen.
	RegisterHandler(handler SessionHandler)
	// Listen binds the endpoint and accepts connections until Shutdown is called.
	// It returns nil after a shutdown and an error if the endpoint cannot be bound.
	Listen(ctx context.Context) error
	// Ready is closed as soon as the listener is bound. It is also closed if Listen
	// returns early because Shutdown was called first.
	Ready() <-chan struct{}
	// Addr returns the bound address (nil before Ready and if Listen never bound)
	Addr() net.Addr
	// Shutdown stops accepting, waits up to the grace period for running sessions
	// and closes the remaining connections
	Shutdown(ctx context.Context) error
	// Stats returns the connection counters
	Stats() ConnStats
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport opens connections to a server
type IRPCClientTransport interface {
	// Connect dials the endpoint of the config, retrying until the timeout of the config expires
	Connect(config common.ClientConfig) (net.Conn, error)
}
