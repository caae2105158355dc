// Package util provides utility components for database and store implementations.
//
// The package contains:
//   - functions: Seeded hash functions used for sharding and lock striping
package util
