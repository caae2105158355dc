package admin

import (
	"github.com/ValentinKolb/vKV/cmd/util"
	"github.com/ValentinKolb/vKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	adminClient *client.AdminClient

	// AdminCommands represents the admin command group
	AdminCommands = &cobra.Command{
		Use:                "admin",
		Short:              "Manage the stores of a running server",
		PersistentPreRunE:  setupAdminClient,
		PersistentPostRunE: closeAdminClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the admin command
	util.SetupRPCClientFlags(AdminCommands, "localhost:6667")

	AdminCommands.PersistentFlags().Bool("pretty", false, util.WrapString("Indent all json output"))

	// Add subcommands
	AdminCommands.AddCommand(lsCmd)
	AdminCommands.AddCommand(openCmd)
	AdminCommands.AddCommand(statsCmd)
	AdminCommands.AddCommand(serverStatsCmd)
	AdminCommands.AddCommand(syncCmd)
}

// setupAdminClient initializes the admin client
func setupAdminClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	adminClient, err = client.NewAdminClient(util.GetClientConfig(), s)
	return err
}

// closeAdminClient closes the connection of the admin client
func closeAdminClient(_ *cobra.Command, _ []string) error {
	if adminClient == nil {
		return nil
	}
	return adminClient.Close()
}
