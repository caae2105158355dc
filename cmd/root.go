package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/vKV/cmd/admin"
	"github.com/ValentinKolb/vKV/cmd/kv"
	"github.com/ValentinKolb/vKV/cmd/serve"
	"github.com/ValentinKolb/vKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "vkv",
		Short: "versioned key-value store",
		Long: fmt.Sprintf(`vKV (v%s)

A persistent key-value store server written in Go. Every value carries a
vector clock, concurrent writes are kept as siblings for the client to resolve.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of vKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(admin.AdminCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer of the admin channel (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
