package cmd

import (
	"github.com/spf13/cobra"
)

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels <server-id>",
		Short: "List the channels of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			channels, err := app.scraper.ListChannels(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(channels)
		},
	}
}
