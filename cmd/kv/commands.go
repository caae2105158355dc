package kv

import (
	"fmt"

	"github.com/ValentinKolb/vKV/cmd/util"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Prints all versions of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := rpcStore.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Println("<not found>")
				return nil
			}
			for _, v := range versions {
				fmt.Printf("[%s] %s\n", util.FormatClock(v.Clock()), v.Value())
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes a new version of a key",
		Long: util.WrapString(`Writes a new version of a key. Without --clock the clocks of all current versions are merged ` +
			`and the counter of --node is incremented, so the new version supersedes every sibling.`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := []byte(args[0])
			clock, err := clockFor(cmd, key)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("clock") {
				if clock, err = clock.Increment(viper.GetUint16("node")); err != nil {
					return err
				}
			}
			if err := rpcStore.Put(key, versioning.NewVersioned([]byte(args[1]), clock)); err != nil {
				return err
			}
			fmt.Printf("put successfully [%s]\n", util.FormatClock(clock))
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Deletes the versions of a key",
		Long: util.WrapString(`Deletes every version whose clock is before or equal to --clock. Without --clock the ` +
			`clocks of all current versions are merged, which deletes every sibling.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := []byte(args[0])
			clock, err := clockFor(cmd, key)
			if err != nil {
				return err
			}
			deleted, err := rpcStore.Delete(key, clock)
			if err != nil {
				return err
			}
			if deleted {
				fmt.Println("deleted successfully")
			} else {
				fmt.Println("nothing deleted")
			}
			return nil
		},
	}
)

func init() {
	putCmd.Flags().String("clock", "", util.WrapString("Clock of the new version as node:counter pairs (e.g. 1:3,2:1)"))
	delCmd.Flags().String("clock", "", util.WrapString("Clock up to which versions are deleted as node:counter pairs (e.g. 1:3,2:1)"))
}

// clockFor returns the clock given by --clock or the merged clock of the current versions of the key
func clockFor(cmd *cobra.Command, key []byte) (versioning.VectorClock, error) {
	if cmd.Flags().Changed("clock") {
		s, _ := cmd.Flags().GetString("clock")
		return util.ParseClock(s)
	}
	versions, err := rpcStore.Get(key)
	if err != nil {
		return versioning.VectorClock{}, err
	}
	return util.MergeClocks(versions), nil
}
