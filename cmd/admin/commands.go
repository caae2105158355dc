package admin

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "Lists the open stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := adminClient.ListStores()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	openCmd = &cobra.Command{
		Use:   "open [store]",
		Short: "Opens a store, creating it if it does not exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := adminClient.OpenStore(args[0])
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("created store %s\n", args[0])
			} else {
				fmt.Printf("store %s already open\n", args[0])
			}
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats [store]",
		Short: "Prints the metrics of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := adminClient.StoreStats(args[0])
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	serverStatsCmd = &cobra.Command{
		Use:   "server-stats",
		Short: "Prints the connection and request counters of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := adminClient.ServerStats()
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Flushes all environments of the server to stable storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adminClient.Sync(); err != nil {
				return err
			}
			fmt.Println("synced successfully")
			return nil
		},
	}
)

// printJSON prints v as json, indented if --pretty is set
func printJSON(v any) error {
	var (
		out []byte
		err error
	)
	if viper.GetBool("pretty") {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
