package base

import (
	"math/rand"
	"net"
	"time"

	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/transport"
	"github.com/cockroachdb/errors"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
)

// clientTransport dials connections with retries
type clientTransport struct {
	connector IClientConnector
}

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

// Connect retries with jittered exponential backoff until a connection is established
// or the timeout of the config expires. A timeout of zero tries exactly once.
func (c *clientTransport) Connect(config common.ClientConfig) (net.Conn, error) {
	timeout := time.Duration(config.TimeoutSecond) * time.Second
	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		conn, err := c.connector.Connect(config.Endpoint, timeout)
		if err == nil {
			log.Debugf("connected to %s://%s (attempt %d)", c.connector.GetName(), config.Endpoint, attempt)
			return conn, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errors.Wrapf(err, "failed to connect to %s://%s after %d attempts",
				c.connector.GetName(), config.Endpoint, attempt)
		}
		log.Debugf("connect attempt %d to %s failed: %v", attempt, config.Endpoint, err)

		sleep := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
		time.Sleep(min(sleep, remaining))
		backoff = min(backoff*2, maxBackoff)
	}
}
