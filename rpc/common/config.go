package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/vKV/lib/db"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// TransportConfig holds the listener and socket settings of one server endpoint
type TransportConfig struct {
	// Network is the transport type ("tcp" or "unix")
	Network string
	// Endpoint is the listen address (host:port or socket path)
	Endpoint string

	// Socket tuning, applied to every accepted connection (tcp only)
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // -1 keeps the OS default
	WriteBufferSize int // 0 keeps the OS default
	ReadBufferSize  int // 0 keeps the OS default
}

// PoolConfig holds the size of the worker pool that runs the sessions of one server
type PoolConfig struct {
	// CoreWorkers is the number of idle workers kept alive
	CoreWorkers int
	// MaxWorkers is the hard cap of concurrently running sessions. Connections beyond it are rejected.
	MaxWorkers int
	// KeepAlive is the time an idle worker above CoreWorkers waits for new work before it exits
	KeepAlive time.Duration
	// GracePeriod is the time Shutdown waits for sessions to drain before closing them
	GracePeriod time.Duration
}

// Validate checks the pool sizes
func (p PoolConfig) Validate() error {
	if p.MaxWorkers < 1 {
		return errors.Newf("max workers must be at least 1: %d", p.MaxWorkers)
	}
	if p.CoreWorkers < 0 || p.CoreWorkers > p.MaxWorkers {
		return errors.Newf("core workers must be in [0, %d]: %d", p.MaxWorkers, p.CoreWorkers)
	}
	if p.KeepAlive < 0 || p.GracePeriod < 0 {
		return errors.New("keep alive and grace period must not be negative")
	}
	return nil
}

// --------------------------------------------------------------------------
// Storage configuration
// --------------------------------------------------------------------------

// StorageConfig holds the backend parameters of a server
type StorageConfig struct {
	Engine          string // pebble or maple
	DataDir         string // master directory of all environments
	FilePerStore    bool   // one environment per store instead of one shared environment
	CacheSizeMB     int64
	Durability      string // full, write-buffered or relaxed
	CheckpointBytes int64
	CheckpointMs    int64
	MaxSegmentMB    int64
	Fanout          int
	RejectObsolete  bool
}

// ToDBOptions converts the storage config to backend options
func (c *StorageConfig) ToDBOptions() (db.Options, error) {
	durability, err := db.ParseDurability(c.Durability)
	if err != nil {
		return db.Options{}, err
	}
	opts := db.Options{
		CacheSizeBytes:     c.CacheSizeMB << 20,
		Durability:         durability,
		CheckpointBytes:    c.CheckpointBytes,
		CheckpointInterval: time.Duration(c.CheckpointMs) * time.Millisecond,
		MaxSegmentBytes:    c.MaxSegmentMB << 20,
		Fanout:             c.Fanout,
	}
	return opts, opts.Validate()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a vKV server
type ServerConfig struct {
	// Stores are opened at startup, others can be opened through the admin channel
	Stores []string

	// Store protocol endpoint
	Transport TransportConfig
	Pool      PoolConfig

	// Admin channel endpoint
	Admin      TransportConfig
	AdminPool  PoolConfig
	Serializer string

	// Metrics endpoint (http, empty = disabled)
	MetricsEndpoint string

	Storage StorageConfig

	// MaxRequestBytes bounds every length field of a request
	MaxRequestBytes int

	// TimeoutSecond is the idle read timeout of a session (0 = no timeout)
	TimeoutSecond int64

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns a config with the default values of the serve command
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport: TransportConfig{Network: "tcp", Endpoint: "0.0.0.0:6666", TCPNoDelay: true, TCPLingerSec: -1},
		Pool:      PoolConfig{CoreWorkers: 8, MaxWorkers: 64, KeepAlive: time.Second, GracePeriod: time.Second},
		Admin:     TransportConfig{Network: "tcp", Endpoint: "0.0.0.0:6667", TCPNoDelay: true, TCPLingerSec: -1},
		AdminPool: PoolConfig{CoreWorkers: 1, MaxWorkers: 4, KeepAlive: time.Second, GracePeriod: time.Second},

		Serializer: "binary",
		Storage: StorageConfig{
			Engine:          string(db.ImplPebble),
			DataDir:         "data",
			CacheSizeMB:     64,
			Durability:      "full",
			CheckpointBytes: 20 << 20,
			CheckpointMs:    30000,
			MaxSegmentMB:    60,
			Fanout:          16,
		},
		MaxRequestBytes: 16 << 20,
		LogLevel:        "info",
	}
}

// Validate checks the configuration
func (c *ServerConfig) Validate() error {
	var err error
	if c.Transport.Endpoint == "" {
		err = errors.CombineErrors(err, errors.New("endpoint must not be empty"))
	}
	if e := c.Pool.Validate(); e != nil {
		err = errors.CombineErrors(err, errors.Wrap(e, "store pool"))
	}
	if c.Admin.Endpoint != "" {
		if e := c.AdminPool.Validate(); e != nil {
			err = errors.CombineErrors(err, errors.Wrap(e, "admin pool"))
		}
	}
	if _, e := db.ParseImplementation(c.Storage.Engine); e != nil {
		err = errors.CombineErrors(err, e)
	}
	if _, e := c.Storage.ToDBOptions(); e != nil {
		err = errors.CombineErrors(err, e)
	}
	if _, e := ParseLogLevel(c.LogLevel); e != nil {
		err = errors.CombineErrors(err, e)
	}
	if c.MaxRequestBytes < 1 {
		err = errors.CombineErrors(err, errors.Newf("max request bytes must be positive: %d", c.MaxRequestBytes))
	}
	return err
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addPool := func(p PoolConfig) {
		addField("Core Workers", strconv.Itoa(p.CoreWorkers))
		addField("Max Workers", strconv.Itoa(p.MaxWorkers))
		addField("Grace Period", p.GracePeriod.String())
	}

	// Store server
	addSection("Store Server")
	addField("Endpoint", fmt.Sprintf("%s://%s", c.Transport.Network, c.Transport.Endpoint))
	addPool(c.Pool)
	addField("Max Request Size", fmt.Sprintf("%d bytes", c.MaxRequestBytes))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Admin server
	addSection("Admin Server")
	if c.Admin.Endpoint == "" {
		addField("Endpoint", "disabled")
	} else {
		addField("Endpoint", fmt.Sprintf("%s://%s", c.Admin.Network, c.Admin.Endpoint))
		addField("Serializer", c.Serializer)
		addPool(c.AdminPool)
	}

	// Metrics
	addSection("Metrics")
	if c.MetricsEndpoint == "" {
		addField("Endpoint", "disabled")
	} else {
		addField("Endpoint", c.MetricsEndpoint)
	}

	// Storage
	addSection("Storage")
	addField("Engine", c.Storage.Engine)
	addField("Data Directory", c.Storage.DataDir)
	addField("File Per Store", strconv.FormatBool(c.Storage.FilePerStore))
	addField("Cache Size", fmt.Sprintf("%d MB", c.Storage.CacheSizeMB))
	addField("Durability", c.Storage.Durability)
	addField("Checkpoint Bytes", strconv.FormatInt(c.Storage.CheckpointBytes, 10))
	addField("Checkpoint Interval", fmt.Sprintf("%d ms", c.Storage.CheckpointMs))
	addField("Max Segment Size", fmt.Sprintf("%d MB", c.Storage.MaxSegmentMB))
	addField("Fanout", strconv.Itoa(c.Storage.Fanout))
	addField("Reject Obsolete", strconv.FormatBool(c.Storage.RejectObsolete))

	// Stores
	addSection("Stores")
	for i, name := range c.Stores {
		addField(strconv.Itoa(i), name)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds the parameters of a store or admin client
type ClientConfig struct {
	Network         string
	Endpoint        string
	TimeoutSecond   int
	MaxRequestBytes int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", fmt.Sprintf("%s://%s", c.Network, c.Endpoint))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Request Size", fmt.Sprintf("%d bytes", c.MaxRequestBytes))

	return sb.String()
}
