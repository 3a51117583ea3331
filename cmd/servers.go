package cmd

import (
	"github.com/spf13/cobra"
)

func newServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the servers visible in the sidebar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			servers, err := app.scraper.ListServers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(servers)
		},
	}
}
