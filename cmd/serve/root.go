package serve

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/vKV/cmd/util"
	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/ValentinKolb/vKV/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the vKV server",
		Long:    `Start the vKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is VKV_<flag> (e.g. VKV_MAX_THREADS=128)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	d := common.DefaultServerConfig()
	flags := ServeCmd.PersistentFlags()

	// store server
	key := "endpoint"
	flags.String(key, d.Transport.Endpoint, cmdUtil.WrapString("The address of the store protocol (host:port for tcp, socket path for unix)"))

	key = "core-threads"
	flags.Int(key, d.Pool.CoreWorkers, cmdUtil.WrapString("Number of idle session workers that are kept alive"))

	key = "max-threads"
	flags.Int(key, d.Pool.MaxWorkers, cmdUtil.WrapString("Maximum number of concurrent sessions. Connections beyond this limit are closed immediately"))

	key = "keep-alive-ms"
	flags.Int64(key, d.Pool.KeepAlive.Milliseconds(), cmdUtil.WrapString("Time an idle worker above core-threads waits for a new connection before it exits"))

	key = "grace-period-ms"
	flags.Int64(key, d.Pool.GracePeriod.Milliseconds(), cmdUtil.WrapString("Time the shutdown waits for running sessions before their connections are closed"))

	key = "max-request-bytes"
	flags.Int(key, d.MaxRequestBytes, cmdUtil.WrapString("Upper bound of every length field of a request"))

	key = "timeout"
	flags.Int64(key, d.TimeoutSecond, cmdUtil.WrapString("Idle read timeout of a session in seconds (0 = no timeout)"))

	// socket options
	key = "tcp-nodelay"
	flags.Bool(key, d.Transport.TCPNoDelay, cmdUtil.WrapString("Disable Nagle's algorithm on accepted connections"))

	key = "tcp-keepalive-sec"
	flags.Int(key, d.Transport.TCPKeepAliveSec, cmdUtil.WrapString("TCP keep alive period in seconds (0 = OS default)"))

	key = "tcp-linger-sec"
	flags.Int(key, d.Transport.TCPLingerSec, cmdUtil.WrapString("SO_LINGER of accepted connections in seconds (-1 = OS default)"))

	key = "socket-read-buffer"
	flags.Int(key, d.Transport.ReadBufferSize, cmdUtil.WrapString("Socket receive buffer in bytes (0 = OS default)"))

	key = "socket-write-buffer"
	flags.Int(key, d.Transport.WriteBufferSize, cmdUtil.WrapString("Socket send buffer in bytes (0 = OS default)"))

	// admin server
	key = "admin-endpoint"
	flags.String(key, d.Admin.Endpoint, cmdUtil.WrapString("The address of the admin channel (empty = disabled)"))

	key = "admin-transport"
	flags.String(key, d.Admin.Network, cmdUtil.WrapString("Transport of the admin channel (tcp, unix)"))

	key = "admin-core-threads"
	flags.Int(key, d.AdminPool.CoreWorkers, cmdUtil.WrapString("Number of idle admin session workers"))

	key = "admin-max-threads"
	flags.Int(key, d.AdminPool.MaxWorkers, cmdUtil.WrapString("Maximum number of concurrent admin sessions"))

	// metrics
	key = "metrics-endpoint"
	flags.String(key, "", cmdUtil.WrapString("The http address serving /metrics, /debug/stores and /debug/pprof (empty = disabled)"))

	// storage
	key = "stores"
	flags.String(key, "", cmdUtil.WrapString("Comma-separated list of stores to open at startup (e.g. users,sessions)"))

	key = "engine"
	flags.String(key, d.Storage.Engine, cmdUtil.WrapString("Storage backend (pebble, maple). maple keeps everything in memory"))

	key = "data-dir"
	flags.String(key, d.Storage.DataDir, cmdUtil.WrapString("Master directory of all storage environments"))

	key = "file-per-store"
	flags.Bool(key, d.Storage.FilePerStore, cmdUtil.WrapString("Give every store its own environment in <data-dir>/<store>"))

	key = "cache-size-mb"
	flags.Int64(key, d.Storage.CacheSizeMB, cmdUtil.WrapString("Block cache shared by all environments in MB"))

	key = "durability"
	flags.String(key, d.Storage.Durability, cmdUtil.WrapString("Durability of writes (full, write-buffered, relaxed)"))

	key = "checkpoint-bytes"
	flags.Int64(key, d.Storage.CheckpointBytes, cmdUtil.WrapString("Bytes written between two background syncs (0 = disabled)"))

	key = "checkpoint-ms"
	flags.Int64(key, d.Storage.CheckpointMs, cmdUtil.WrapString("Interval of the background checkpointer in milliseconds (0 = disabled)"))

	key = "max-segment-mb"
	flags.Int64(key, d.Storage.MaxSegmentMB, cmdUtil.WrapString("Target size of a data file in MB"))

	key = "fanout"
	flags.Int(key, d.Storage.Fanout, cmdUtil.WrapString("Keys per index block of the backend"))

	key = "reject-obsolete"
	flags.Bool(key, d.Storage.RejectObsolete, cmdUtil.WrapString("Answer obsolete writes with an error instead of ignoring them"))

	key = "log-level"
	flags.String(key, d.LogLevel, cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	// parse stores
	serveCmdConfig.Stores = nil
	for _, name := range strings.Split(viper.GetString("stores"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			serveCmdConfig.Stores = append(serveCmdConfig.Stores, name)
		}
	}

	// store server
	serveCmdConfig.Transport.Network = viper.GetString("transport")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.Transport.TCPKeepAliveSec = viper.GetInt("tcp-keepalive-sec")
	serveCmdConfig.Transport.TCPLingerSec = viper.GetInt("tcp-linger-sec")
	serveCmdConfig.Transport.ReadBufferSize = viper.GetInt("socket-read-buffer")
	serveCmdConfig.Transport.WriteBufferSize = viper.GetInt("socket-write-buffer")
	serveCmdConfig.Pool.CoreWorkers = viper.GetInt("core-threads")
	serveCmdConfig.Pool.MaxWorkers = viper.GetInt("max-threads")
	serveCmdConfig.Pool.KeepAlive = time.Duration(viper.GetInt64("keep-alive-ms")) * time.Millisecond
	serveCmdConfig.Pool.GracePeriod = time.Duration(viper.GetInt64("grace-period-ms")) * time.Millisecond
	serveCmdConfig.MaxRequestBytes = viper.GetInt("max-request-bytes")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")

	// admin server, it shares the socket options of the store server
	serveCmdConfig.Admin = serveCmdConfig.Transport
	serveCmdConfig.Admin.Network = viper.GetString("admin-transport")
	serveCmdConfig.Admin.Endpoint = viper.GetString("admin-endpoint")
	serveCmdConfig.AdminPool.CoreWorkers = viper.GetInt("admin-core-threads")
	serveCmdConfig.AdminPool.MaxWorkers = viper.GetInt("admin-max-threads")
	serveCmdConfig.AdminPool.KeepAlive = serveCmdConfig.Pool.KeepAlive
	serveCmdConfig.AdminPool.GracePeriod = serveCmdConfig.Pool.GracePeriod
	serveCmdConfig.Serializer = viper.GetString("serializer")

	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")

	// storage
	serveCmdConfig.Storage.Engine = viper.GetString("engine")
	serveCmdConfig.Storage.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Storage.FilePerStore = viper.GetBool("file-per-store")
	serveCmdConfig.Storage.CacheSizeMB = viper.GetInt64("cache-size-mb")
	serveCmdConfig.Storage.Durability = viper.GetString("durability")
	serveCmdConfig.Storage.CheckpointBytes = viper.GetInt64("checkpoint-bytes")
	serveCmdConfig.Storage.CheckpointMs = viper.GetInt64("checkpoint-ms")
	serveCmdConfig.Storage.MaxSegmentMB = viper.GetInt64("max-segment-mb")
	serveCmdConfig.Storage.Fanout = viper.GetInt("fanout")
	serveCmdConfig.Storage.RejectObsolete = viper.GetBool("reject-obsolete")

	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if err := serveCmdConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// run starts the vKV server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	serv, err := server.NewServer(serveCmdConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serv.Serve(ctx)
}
