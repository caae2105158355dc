package db

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplPebble Implementation = "pebble"
)

// ParseImplementation converts a config string to an Implementation
func ParseImplementation(s string) (Implementation, error) {
	switch Implementation(strings.ToLower(strings.TrimSpace(s))) {
	case ImplMaple:
		return ImplMaple, nil
	case ImplPebble:
		return ImplPebble, nil
	default:
		return "", errors.Newf("invalid engine %q (expected one of: %s, %s)", s, ImplPebble, ImplMaple)
	}
}

// Durability selects how commits reach stable storage. The modes are mutually exclusive.
type Durability int

const (
	// DurabilityFull forces data and metadata to stable storage on every commit
	DurabilityFull Durability = iota
	// DurabilityWriteBuffered writes commits in order without waiting for them to be synced, metadata is still flushed
	DurabilityWriteBuffered
	// DurabilityRelaxed buffers commits in memory and flushes them opportunistically
	DurabilityRelaxed
)

func (d Durability) String() string {
	switch d {
	case DurabilityFull:
		return "full"
	case DurabilityWriteBuffered:
		return "write-buffered"
	case DurabilityRelaxed:
		return "relaxed"
	default:
		return "unknown"
	}
}

// ParseDurability converts a config string to a Durability mode
func ParseDurability(s string) (Durability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "sync":
		return DurabilityFull, nil
	case "write-buffered", "buffered", "nosync":
		return DurabilityWriteBuffered, nil
	case "relaxed", "none":
		return DurabilityRelaxed, nil
	default:
		return 0, errors.Newf("invalid durability mode %q (expected one of: full, write-buffered, relaxed)", s)
	}
}

// Options holds the durability and performance parameters of an Engine.
// They are frozen when the engine is created and apply to every environment it opens.
type Options struct {
	CacheSizeBytes     int64         // Size of the block cache shared by all environments (0 = engine default)
	Durability         Durability    // Commit durability mode
	CheckpointBytes    int64         // Bytes written between background syncs (0 = engine default)
	CheckpointInterval time.Duration // Time between opportunistic flushes (0 = disabled)
	MaxSegmentBytes    int64         // Target size of a physical segment file (0 = engine default)
	Fanout             int           // Entries per index node / restart interval (0 = engine default)
}

// DefaultOptions returns the default options
func DefaultOptions() Options {
	return Options{
		CacheSizeBytes:     64 << 20,
		Durability:         DurabilityFull,
		CheckpointBytes:    20 << 20,
		CheckpointInterval: 30 * time.Second,
		MaxSegmentBytes:    60 << 20,
		Fanout:             16,
	}
}

// Validate checks that all options are in range
func (o Options) Validate() error {
	if o.CacheSizeBytes < 0 {
		return errors.Newf("cache size must not be negative: %d", o.CacheSizeBytes)
	}
	if o.Durability < DurabilityFull || o.Durability > DurabilityRelaxed {
		return errors.Newf("invalid durability mode: %d", o.Durability)
	}
	if o.CheckpointBytes < 0 {
		return errors.Newf("checkpoint bytes must not be negative: %d", o.CheckpointBytes)
	}
	if o.CheckpointInterval < 0 {
		return errors.Newf("checkpoint interval must not be negative: %s", o.CheckpointInterval)
	}
	if o.MaxSegmentBytes < 0 {
		return errors.Newf("max segment size must not be negative: %d", o.MaxSegmentBytes)
	}
	if o.Fanout < 0 || o.Fanout > 1<<16 {
		return errors.Newf("fanout out of range: %d", o.Fanout)
	}
	return nil
}

// --------------------------------------------------------------------------
// Database Interfaces
// --------------------------------------------------------------------------

// KVDB is a named table inside an Environment. It is an opaque durable key-value
// engine, all values are raw bytes. Implementations must be safe for concurrent use.
type KVDB interface {

	// Get retrieves a copy of the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key []byte) (value []byte, loaded bool, err error)

	// Put inserts or updates the value of the key.
	Put(key, value []byte) (err error)

	// Delete removes the key. The boolean return value indicates whether the key existed.
	Delete(key []byte) (deleted bool, err error)

	// Sync forces all writes of the table to stable storage.
	Sync() (err error)

	// Close releases the table handle. The environment stays open.
	Close() (err error)
}

// Environment is a physical storage context (directory + files) that can hold any
// number of named tables.
type Environment interface {

	// OpenTable opens the table with the given name, creating it if it does not exist.
	OpenTable(name string) (table KVDB, err error)

	// Tables returns the names of the tables opened in this environment.
	Tables() (names []string)

	// Dir returns the directory the environment is rooted in.
	Dir() (dir string)

	// Sync flushes all buffered writes of the environment to stable storage.
	Sync() (err error)

	// Close syncs and closes the environment. Open tables must not be used afterwards.
	Close() (err error)
}

// Engine creates environments of one implementation. All environments of an engine
// share the engine's Options (and resources like the block cache).
type Engine interface {

	// Name returns the implementation of the engine.
	Name() (impl Implementation)

	// OpenEnvironment opens (creating if needed) an environment rooted at dir.
	OpenEnvironment(dir string) (env Environment, err error)

	// Close releases resources shared between environments. All environments must be closed first.
	Close() (err error)
}

// EngineFactory creates an Engine from frozen Options
type EngineFactory func(opts Options) (Engine, error)
