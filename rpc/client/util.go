package client

import (
	"net"
	"time"

	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/transport"
	"github.com/ValentinKolb/vKV/rpc/transport/tcp"
	"github.com/ValentinKolb/vKV/rpc/transport/unix"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("client")

// transportFor returns the client transport of a network name
func transportFor(network string) (transport.IRPCClientTransport, error) {
	switch network {
	case "", "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, errors.Newf("invalid transport %q (expected one of: tcp, unix)", network)
	}
}

// dial connects to the endpoint of the config
func dial(config common.ClientConfig) (net.Conn, error) {
	t, err := transportFor(config.Network)
	if err != nil {
		return nil, err
	}
	return t.Connect(config)
}

// rpcClientAdapter holds the connection shared by the socket clients.
// Requests are sequential, the caller must hold the lock of the client.
type rpcClientAdapter struct {
	conn    net.Conn
	timeout time.Duration
	broken  error
}

// deadline sets the deadline of the next request
func (a *rpcClientAdapter) deadline() error {
	if a.broken != nil {
		return a.broken
	}
	if a.timeout <= 0 {
		return nil
	}
	return a.conn.SetDeadline(time.Now().Add(a.timeout))
}

// fail closes the connection after an I/O or framing error. The stream position is
// unknown afterwards, every later request returns the same error.
func (a *rpcClientAdapter) fail(err error) error {
	if a.broken == nil {
		a.broken = errors.Wrap(err, "connection unusable")
		_ = a.conn.Close()
		log.Warningf("closed connection to %s: %v", a.conn.RemoteAddr(), err)
	}
	return a.broken
}

func (a *rpcClientAdapter) close() error {
	if a.broken != nil {
		return nil
	}
	a.broken = errors.New("client closed")
	return a.conn.Close()
}
