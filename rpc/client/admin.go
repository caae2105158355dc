package client

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/serializer"
	"github.com/ValentinKolb/vKV/rpc/transport/base"
	"github.com/cockroachdb/errors"
)

// AdminClient is the client of the admin channel of a server
type AdminClient struct {
	rpcClientAdapter
	mu         sync.Mutex
	serializer serializer.IRPCSerializer
	maxBytes   int
}

// NewAdminClient connects to the admin endpoint of a server. The serializer must match
// the serializer configured on the server.
func NewAdminClient(config common.ClientConfig, ser serializer.IRPCSerializer) (*AdminClient, error) {
	conn, err := dial(config)
	if err != nil {
		return nil, err
	}
	return newAdminClient(conn, ser, config), nil
}

func newAdminClient(conn net.Conn, ser serializer.IRPCSerializer, config common.ClientConfig) *AdminClient {
	return &AdminClient{
		rpcClientAdapter: rpcClientAdapter{
			conn:    conn,
			timeout: time.Duration(config.TimeoutSecond) * time.Second,
		},
		serializer: ser,
		maxBytes:   config.MaxRequestBytes,
	}
}

// ListStores returns the sorted names of all open stores
func (c *AdminClient) ListStores() ([]string, error) {
	resp, err := c.invoke(common.NewListStoresRequest())
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// OpenStore opens a store on the server and reports whether it was newly opened
func (c *AdminClient) OpenStore(name string) (bool, error) {
	resp, err := c.invoke(common.NewOpenStoreRequest(name))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// StoreStats returns the statistics of one store
func (c *AdminClient) StoreStats(name string) (store.StoreStats, error) {
	var stats store.StoreStats
	resp, err := c.invoke(common.NewStoreStatsRequest(name))
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(resp.Value, &stats); err != nil {
		return stats, errors.Wrap(err, "decode store stats")
	}
	return stats, nil
}

// ServerStats returns the counters of the server
func (c *AdminClient) ServerStats() (common.ServerStats, error) {
	var stats common.ServerStats
	resp, err := c.invoke(common.NewServerStatsRequest())
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(resp.Value, &stats); err != nil {
		return stats, errors.Wrap(err, "decode server stats")
	}
	return stats, nil
}

// Sync flushes all environments of the server to stable storage
func (c *AdminClient) Sync() error {
	_, err := c.invoke(common.NewSyncRequest())
	return err
}

// Close closes the connection
func (c *AdminClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

// invoke sends a request and waits for its response.
// It also checks if the response is an error response and if the type of the response is the expected type.
func (c *AdminClient) invoke(req *common.Message) (*common.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.deadline(); err != nil {
		return nil, err
	}

	reqBytes, err := c.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}
	if err := base.WriteFrame(c.conn, reqBytes); err != nil {
		return nil, c.fail(err)
	}

	respBytes, err := base.ReadFrame(c.conn, c.maxBytes)
	if err != nil {
		return nil, c.fail(err)
	}
	resp := &common.Message{}
	if err := c.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize response")
	}

	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, errors.Newf("admin %s failed: %s", req.MsgType, resp.Err)
	}
	if resp.MsgType != req.MsgType {
		return nil, errors.Newf("unexpected response type %s for request %s", resp.MsgType, req.MsgType)
	}
	return resp, nil
}
