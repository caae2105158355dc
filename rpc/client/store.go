package client

import (
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/protocol"
	"github.com/cockroachdb/errors"
)

// NewSocketStore connects to a store server and returns a client for one store.
// The client implements store.IStorageEngine, errors sent by the server match the
// store sentinels (store.ErrNoSuchStore, store.ErrObsoleteVersion, ...) with errors.Is.
//
// Usage:
//
//	s, err := client.NewSocketStore(common.ClientConfig{Endpoint: "localhost:6666"}, "users")
//	if err != nil { ... }
//	defer s.Close()
//	versions, err := s.Get([]byte("alice"))
func NewSocketStore(config common.ClientConfig, storeName string) (store.IStorageEngine, error) {
	conn, err := dial(config)
	if err != nil {
		return nil, err
	}
	return newSocketStore(conn, storeName, config), nil
}

func newSocketStore(conn net.Conn, storeName string, config common.ClientConfig) *socketStore {
	return &socketStore{
		name: storeName,
		rpcClientAdapter: rpcClientAdapter{
			conn:    conn,
			timeout: time.Duration(config.TimeoutSecond) * time.Second,
		},
		r: protocol.NewReader(conn, config.MaxRequestBytes),
		w: protocol.NewWriter(conn),
	}
}

type socketStore struct {
	rpcClientAdapter
	mu   sync.Mutex
	name string
	r    *protocol.Reader
	w    *protocol.Writer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *socketStore) Name() string {
	return s.name
}

func (s *socketStore) Get(key []byte) ([]versioning.Versioned, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deadline(); err != nil {
		return nil, err
	}
	if err := s.w.WriteGetRequest(s.name, key); err != nil {
		return nil, s.fail(err)
	}
	versions, err := s.r.ReadGetResponse()
	return versions, s.check(err)
}

func (s *socketStore) Put(key []byte, value versioning.Versioned) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := value.Clock().Validate(); err != nil {
		return err
	}
	if err := s.deadline(); err != nil {
		return err
	}
	if err := s.w.WritePutRequest(s.name, key, value); err != nil {
		return s.fail(err)
	}
	return s.check(s.r.ReadPutResponse())
}

func (s *socketStore) Delete(key []byte, clock versioning.VectorClock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := clock.Validate(); err != nil {
		return false, err
	}
	if err := s.deadline(); err != nil {
		return false, err
	}
	if err := s.w.WriteDeleteRequest(s.name, key, clock); err != nil {
		return false, s.fail(err)
	}
	deleted, err := s.r.ReadDeleteResponse()
	return deleted, s.check(err)
}

func (s *socketStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

// check passes remote errors through and closes the connection on everything else
func (s *socketStore) check(err error) error {
	if err == nil || isRemote(err) {
		return err
	}
	return s.fail(err)
}

// isRemote reports whether err was decoded from an error response
func isRemote(err error) bool {
	return errors.Is(err, protocol.ErrRemote)
}
