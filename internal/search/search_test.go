package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/browser"
	"github.com/silknet/cordscope/internal/browser/browsertest"
	"github.com/silknet/cordscope/internal/config"
	"github.com/silknet/cordscope/internal/ratelimit"
	"github.com/silknet/cordscope/internal/session"
)

// newTestEngine builds an Engine over a fake page with a pre-persisted
// session, so searches skip the interactive login path.
func newTestEngine(t *testing.T, page *browsertest.Page) *Engine {
	t.Helper()
	logger := zap.NewNop()

	store := session.NewCookieStore(filepath.Join(t.TempDir(), "session.json"), logger)
	require.NoError(t, store.Save([]schemas.Cookie{{Name: "token", Value: "tok", Domain: ".discord.com"}}))

	sessionCfg := config.SessionConfig{
		BaseURL:       "https://discord.com",
		ProbeTimeout:  time.Second,
		LoginTimeout:  time.Second,
		TwoFactorWait: time.Second,
	}
	sessions := session.NewManager(page, browser.DefaultUIMap(), store, sessionCfg, config.AccountConfig{}, logger)

	policy := ratelimit.NewPolicy(config.RateLimitConfig{
		MinActionSpacing: time.Millisecond,
		MaxRetries:       1,
		BackoffBase:      time.Millisecond,
		BackoffCap:       2 * time.Millisecond,
	}, logger)

	return NewEngine(sessions, policy, browser.DefaultUIMap(), sessionCfg.BaseURL, logger)
}

// searchResultRow is the wire shape extractSearchResultsJS hands back.
func searchResultRow(id, channelID, content string) map[string]any {
	return map[string]any{
		"id":         id,
		"channel_id": channelID,
		"author":     "alice",
		"author_id":  "42",
		"content":    content,
		"timestamp":  "2025-06-01T12:00:00.000Z",
		"edited":     false,
	}
}

func chatMessageRow(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"author":      "alice",
		"author_id":   "42",
		"content":     "message " + id,
		"timestamp":   "2025-06-01T12:00:00.000Z",
		"edited":      false,
		"attachments": []string{},
	}
}

// scriptResults wires an EvaluateFn that serves search result rows and,
// after a result click, the channel view rows.
func scriptResults(page *browsertest.Page, results []map[string]any, view []map[string]any, jumpURL string) {
	page.EvaluateFn = func(ctx context.Context, expr string, out any) error {
		switch {
		case strings.Contains(expr, "results.push"):
			return browsertest.SetResult(out, results)
		case strings.Contains(expr, "cards["):
			page.SetURL(jumpURL)
			return browsertest.SetResult(out, map[string]any{"clicked": true})
		case strings.Contains(expr, "messages.push"):
			return browsertest.SetResult(out, view)
		case strings.Contains(expr, "const target"):
			return browsertest.SetResult(out, map[string]any{"clicked": true})
		case strings.Contains(expr, "!== null"):
			// Throttle banner probe.
			return browsertest.SetResult(out, false)
		default:
			return browsertest.SetResult(out, map[string]any{"clicked": false})
		}
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("first page results carry absolute ranks", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, []map[string]any{
			searchResultRow("301", "200", "first"),
			searchResultRow("302", "200", "second"),
		}, nil, "")
		e := newTestEngine(t, page)

		results, err := e.Search(ctx, "100", schemas.SearchFilter{Query: "incident"})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 0, results[0].MatchRank)
		assert.Equal(t, 1, results[1].MatchRank)
		assert.Equal(t, "301", results[0].Message.ID)
		assert.Equal(t, "200", results[0].Message.ChannelID)

		// The typed query is the deterministic rendering of the filter.
		assert.Contains(t, page.Typed(), "incident")
		assert.Contains(t, page.Keys(), browser.KeyEnter)
	})

	t.Run("page offset shifts ranks", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, []map[string]any{
			searchResultRow("401", "200", "later match"),
		}, nil, "")
		e := newTestEngine(t, page)

		results, err := e.Search(ctx, "100", schemas.SearchFilter{Query: "x", PageOffset: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, PageSize, results[0].MatchRank)
	})

	t.Run("no results pane means empty page", func(t *testing.T) {
		page := browsertest.New()
		ui := browser.DefaultUIMap()
		page.WaitVisibleFn = func(ctx context.Context, selector string, timeout time.Duration) error {
			if selector == ui.SearchResults {
				return &schemas.NavigationTimeoutError{Action: "wait_visible"}
			}
			return nil
		}
		e := newTestEngine(t, page)

		results, err := e.Search(ctx, "100", schemas.SearchFilter{Query: "nothing matches this"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestResolveContext(t *testing.T) {
	ctx := context.Background()

	view := make([]map[string]any, 0, 9)
	for i := 301; i <= 309; i++ {
		view = append(view, chatMessageRow(fmt.Sprintf("%d", i)))
	}
	results := []map[string]any{
		searchResultRow("320", "200", "zeroth"),
		searchResultRow("305", "200", "anchor match"),
		searchResultRow("330", "200", "second"),
	}
	const jumpURL = "https://discord.com/channels/100/200/305"

	t.Run("window surrounds the anchor", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, results, view, jumpURL)
		e := newTestEngine(t, page)

		window, err := e.ResolveContext(ctx, "100", schemas.SearchFilter{Query: "anchor"}, 1, 2, 2)
		require.NoError(t, err)

		assert.Equal(t, "305", window.Anchor.ID)
		require.Len(t, window.Before, 2)
		require.Len(t, window.After, 2)
		assert.Equal(t, "303", window.Before[0].ID)
		assert.Equal(t, "304", window.Before[1].ID)
		assert.Equal(t, "306", window.After[0].ID)
		assert.Equal(t, "307", window.After[1].ID)
	})

	t.Run("resolution is deterministic across calls", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, results, view, jumpURL)
		e := newTestEngine(t, page)

		first, err := e.ResolveContext(ctx, "100", schemas.SearchFilter{Query: "anchor"}, 1, 1, 1)
		require.NoError(t, err)
		second, err := e.ResolveContext(ctx, "100", schemas.SearchFilter{Query: "anchor"}, 1, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("window clamps at history edges", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, results, view, "https://discord.com/channels/100/200/301")
		e := newTestEngine(t, page)

		window, err := e.ResolveContext(ctx, "100", schemas.SearchFilter{Query: "anchor"}, 1, 5, 5)
		require.NoError(t, err)
		assert.Equal(t, "301", window.Anchor.ID)
		assert.Empty(t, window.Before)
		require.Len(t, window.After, 5)
	})

	t.Run("index past the page is out of range", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, results, view, jumpURL)
		e := newTestEngine(t, page)

		_, err := e.ResolveContext(ctx, "100", schemas.SearchFilter{Query: "anchor"}, 7, 2, 2)
		var oor *schemas.OutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.Equal(t, 7, oor.Requested)
		assert.Equal(t, len(results), oor.Limit)
	})

	t.Run("negative index is out of range", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, results, view, jumpURL)
		e := newTestEngine(t, page)

		_, err := e.ResolveContext(ctx, "100", schemas.SearchFilter{Query: "anchor"}, -1, 2, 2)
		var oor *schemas.OutOfRangeError
		require.ErrorAs(t, err, &oor)
	})
}

func TestPager(t *testing.T) {
	ctx := context.Background()

	t.Run("stops on a short page", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, []map[string]any{
			searchResultRow("301", "200", "only match"),
		}, nil, "")
		e := newTestEngine(t, page)

		pager := e.NewPager("100", schemas.SearchFilter{Query: "only"})
		first, err := pager.Next(ctx)
		require.NoError(t, err)
		assert.Len(t, first, 1)

		second, err := pager.Next(ctx)
		require.NoError(t, err)
		assert.Nil(t, second)
	})

	t.Run("stops on an empty page", func(t *testing.T) {
		page := browsertest.New()
		scriptResults(page, nil, nil, "")
		e := newTestEngine(t, page)

		pager := e.NewPager("100", schemas.SearchFilter{Query: "nothing"})
		results, err := pager.Next(ctx)
		require.NoError(t, err)
		assert.Nil(t, results)

		again, err := pager.Next(ctx)
		require.NoError(t, err)
		assert.Nil(t, again)
	})
}
