package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/silknet/cordscope/api/schemas"
)

// filterFlags collects the search filter surface shared by the search and
// context commands.
type filterFlags struct {
	query    string
	channels []string
	authors  []string
	mentions []string
	has      []string
	after    string
	before   string
	during   string
	pinned   bool
	page     int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "search text")
	cmd.Flags().StringSliceVar(&f.channels, "channel", nil, "restrict to channel id (repeatable)")
	cmd.Flags().StringSliceVar(&f.authors, "from", nil, "restrict to author (repeatable)")
	cmd.Flags().StringSliceVar(&f.mentions, "mentions", nil, "restrict to messages mentioning a user (repeatable)")
	cmd.Flags().StringSliceVar(&f.has, "has", nil, "restrict to content type: image, video, link, file, embed (repeatable)")
	cmd.Flags().StringVar(&f.after, "after", "", "only messages after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.before, "before", "", "only messages before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.during, "during", "", "only messages on this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.pinned, "pinned", false, "only pinned messages")
	cmd.Flags().IntVarP(&f.page, "page", "p", 0, "0-based results page")
}

func (f *filterFlags) build() (schemas.SearchFilter, error) {
	filter := schemas.SearchFilter{
		Query:      f.query,
		ChannelIDs: f.channels,
		AuthorIDs:  f.authors,
		Mentions:   f.mentions,
		Pinned:     f.pinned,
		PageOffset: f.page,
	}

	for _, h := range f.has {
		switch ct := schemas.ContentType(h); ct {
		case schemas.ContentImage, schemas.ContentVideo, schemas.ContentLink, schemas.ContentFile, schemas.ContentEmbed:
			filter.ContentTypes = append(filter.ContentTypes, ct)
		default:
			return filter, fmt.Errorf("unknown content type %q", h)
		}
	}

	var err error
	if filter.DateFrom, err = parseDateFlag(f.after, "after"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = parseDateFlag(f.before, "before"); err != nil {
		return filter, err
	}
	if filter.During, err = parseDateFlag(f.during, "during"); err != nil {
		return filter, err
	}
	if filter.PageOffset < 0 {
		return filter, fmt.Errorf("page must not be negative")
	}
	return filter, nil
}

func parseDateFlag(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q: expected YYYY-MM-DD", name, value)
	}
	return t, nil
}

func newSearchCmd() *cobra.Command {
	var flags filterFlags

	searchCmd := &cobra.Command{
		Use:   "search <server-id>",
		Short: "Search a server's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.build()
			if err != nil {
				return err
			}

			app, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := app.search.Search(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}

	flags.register(searchCmd)
	return searchCmd
}

func newContextCmd() *cobra.Command {
	var (
		flags       filterFlags
		resultIndex int
		beforeCount int
		afterCount  int
	)

	contextCmd := &cobra.Command{
		Use:   "context <server-id>",
		Short: "Jump to a search result and show the surrounding conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.build()
			if err != nil {
				return err
			}

			app, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			window, err := app.search.ResolveContext(cmd.Context(), args[0], filter, resultIndex, beforeCount, afterCount)
			if err != nil {
				return err
			}
			return printJSON(window)
		},
	}

	flags.register(contextCmd)
	contextCmd.Flags().IntVarP(&resultIndex, "index", "i", 0, "0-based result index on the page")
	contextCmd.Flags().IntVar(&beforeCount, "context-before", 5, "messages to include before the match")
	contextCmd.Flags().IntVar(&afterCount, "context-after", 5, "messages to include after the match")
	return contextCmd
}
