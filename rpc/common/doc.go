// Package common provides the data structures and utilities shared by the vKV
// servers, clients and the CLI.
//
// Key Components:
//
//   - Message: the message of the admin channel, used for both requests and responses.
//     Includes factory methods for all admin requests and responses.
//
//   - MessageType: enumeration of the admin operations (ListStores, OpenStore,
//     StoreStats, ServerStats, Sync) plus the generic success and error types.
//
//   - ServerConfig: configuration of a server: store and admin endpoints with their
//     socket options and worker pools, storage backend parameters, request limits
//     and logging. StorageConfig.ToDBOptions converts the storage part into db.Options.
//
//   - ClientConfig: endpoint, timeout and request limit of a client.
//
//   - Logger: custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application
//     ("LEVEL | package | message").
package common
