// Package unix implements the Unix domain socket transport of vKV for clients
// running on the same machine.
//
// Key Components:
//
//   - clientConnector: establishes connections using Unix domain sockets
//
//   - serverConnector: creates Unix socket listeners, an existing socket file at the
//     endpoint path is removed first
package unix
