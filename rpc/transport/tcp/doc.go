// Package tcp implements the TCP socket transport of vKV. It provides the TCP
// implementations of the base package's connector interfaces.
//
// Key Components:
//
//   - clientConnector: dials TCP connections with TCP_NODELAY set
//
//   - serverConnector: creates TCP listeners and applies the socket options of the
//     transport config (no delay, keep alive, linger, socket buffer sizes) to every
//     accepted connection
package tcp
