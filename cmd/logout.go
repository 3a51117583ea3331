package cmd

import (
	"github.com/spf13/cobra"

	"github.com/silknet/cordscope/internal/observability"
	"github.com/silknet/cordscope/internal/session"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the persisted session cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// No browser needed; this only touches the cookie file.
			store := session.NewCookieStore(cfg.Session.CookieFile, observability.GetLogger())
			return store.Clear()
		},
	}
}
