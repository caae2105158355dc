// Package client implements the socket clients of a vKV server.
//
// Key Components:
//
//   - NewSocketStore: client of the store protocol for one store. It implements
//     store.IStorageEngine, so callers can use a remote store like a local one. Status
//     codes of error responses are mapped back to the store sentinel errors.
//
//   - NewAdminClient: client of the admin channel (list, open, stats, sync).
//
// Both clients use a single connection and send one request at a time, concurrent
// calls are serialized by a mutex. After an I/O or framing error the connection is
// closed and every later call fails.
//
// Usage Example:
//
//	config := common.ClientConfig{Network: "tcp", Endpoint: "localhost:6666", TimeoutSecond: 5}
//
//	users, err := client.NewSocketStore(config, "users")
//	if err != nil {
//		panic(err)
//	}
//	defer users.Close()
//
//	clock := versioning.NewVectorClock().Incremented(1)
//	err = users.Put([]byte("alice"), versioning.NewVersioned([]byte("admin"), clock))
//	versions, err := users.Get([]byte("alice"))
package client
