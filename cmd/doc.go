// Package cmd implements the command-line interface of vKV. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts and configures the vKV server
//   - kv: store protocol operations (get, put, delete) against one store
//   - admin: admin channel operations (ls, open, stats, server-stats, sync)
//   - util: shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set via environment variables (VKV_<FLAG>, e.g. VKV_DATA_DIR)
// or a .env / .env.local file in the working directory.
//
// See vkv -help for a list of all commands.
package cmd
