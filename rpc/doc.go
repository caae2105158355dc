// Package rpc provides the network layer of vKV: the binary store protocol, the admin
// channel and the servers and clients speaking them.
//
// The package is organized into several subpackages:
//
//   - common: configuration structures, logging and the admin Message.
//
//   - protocol: the binary request/response protocol of the store server
//     (GET, PUT, DELETE of versioned values) and its session state machine.
//
//   - transport: connection servers with bounded worker pools and dialers
//     (TCP, Unix sockets).
//
//   - admin: the administrative channel (list, open, stats, sync).
//
//   - serializer: admin message serialization with multiple format options
//     (Binary, JSON, GOB).
//
//   - client: socket clients for the store protocol and the admin channel.
//
//   - server: wires storage, store server, admin server and metrics endpoint.
package rpc
