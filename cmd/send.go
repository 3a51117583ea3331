package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var fromStdin bool

	sendCmd := &cobra.Command{
		Use:   "send <server-id> <channel-id> [content]",
		Short: "Send a message to a channel, chunking long content",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			switch {
			case fromStdin:
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				content = strings.TrimRight(string(data), "\n")
			case len(args) == 3:
				content = args[2]
			default:
				return fmt.Errorf("message content required (argument or --stdin)")
			}

			app, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			receipt, err := app.sender.Send(cmd.Context(), args[0], args[1], content)
			if err != nil {
				return err
			}
			return printJSON(receipt)
		},
	}

	sendCmd.Flags().BoolVar(&fromStdin, "stdin", false, "read message content from stdin")
	return sendCmd
}
