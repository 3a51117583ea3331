package cmd

import (
	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	var (
		maxMessages int
		hoursBack   float64
	)

	readCmd := &cobra.Command{
		Use:   "read <server-id> <channel-id>",
		Short: "Read recent messages from a channel, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			messages, err := app.scraper.ReadMessages(cmd.Context(), args[0], args[1], maxMessages, hoursBack)
			if err != nil {
				return err
			}
			app.archiveMessages(cmd.Context(), args[0], messages)
			return printJSON(messages)
		},
	}

	readCmd.Flags().IntVarP(&maxMessages, "max", "m", 50, "maximum messages to retrieve")
	readCmd.Flags().Float64Var(&hoursBack, "hours", 0, "only include messages newer than this many hours (0 = no cutoff)")
	return readCmd
}
