// Package search drives the platform's in-client search UI: filtered
// queries, result pagination, and jump-to-context resolution.
package search

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/browser"
	"github.com/silknet/cordscope/internal/ratelimit"
	"github.com/silknet/cordscope/internal/scraper"
	"github.com/silknet/cordscope/internal/session"
)

// PageSize is how many results the client renders per results page. Match
// ranks are computed against it.
const PageSize = 25

// resultSettle covers the client re-rendering the result list after a page
// change; there is no DOM signal to wait on.
const resultSettle = 1500 * time.Millisecond

var channelMessageURL = regexp.MustCompile(`/channels/([0-9]+|@me)/([0-9]+)/([0-9]+)`)

// Engine runs searches through an authenticated session. Like the scraper
// it holds no page state; every call acquires the session's execution lane.
type Engine struct {
	sessions *session.Manager
	policy   *ratelimit.Policy
	ui       browser.UIMap
	baseURL  string
	logger   *zap.Logger
}

// NewEngine builds a search Engine.
func NewEngine(sessions *session.Manager, policy *ratelimit.Policy, ui browser.UIMap, baseURL string, logger *zap.Logger) *Engine {
	return &Engine{
		sessions: sessions,
		policy:   policy,
		ui:       ui,
		baseURL:  baseURL,
		logger:   logger.Named("search"),
	}
}

// Search runs the filter against one server and returns the results of the
// page named by filter.PageOffset, newest match first as the client ranks
// them. An offset past the last page returns an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, serverID string, filter schemas.SearchFilter) ([]schemas.SearchResult, error) {
	var results []schemas.SearchResult
	err := e.policy.Do(ctx, "search", func(ctx context.Context) error {
		return e.sessions.WithAuthenticatedPage(ctx, func(ctx context.Context, page browser.Page) error {
			found, err := e.runSearch(ctx, page, serverID, filter)
			if err != nil {
				return err
			}
			results = found
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// runSearch performs the search against an owned page and leaves the page
// on the requested results page.
func (e *Engine) runSearch(ctx context.Context, page browser.Page, serverID string, filter schemas.SearchFilter) ([]schemas.SearchResult, error) {
	if err := page.Navigate(ctx, e.baseURL+"/channels/"+serverID); err != nil {
		return nil, err
	}
	if err := page.WaitVisible(ctx, e.ui.SearchBox, 0); err != nil {
		return nil, err
	}
	if err := page.Click(ctx, e.ui.SearchBox); err != nil {
		return nil, err
	}

	query := BuildQuery(filter)
	if err := page.InsertText(ctx, query); err != nil {
		return nil, err
	}
	if err := page.PressKey(ctx, browser.KeyEnter); err != nil {
		return nil, err
	}

	// No results pane appearing means the query matched nothing.
	if err := page.WaitVisible(ctx, e.ui.SearchResults, 0); err != nil {
		var notFound *schemas.ElementNotFoundError
		var timedOut *schemas.NavigationTimeoutError
		if errors.As(err, &notFound) || errors.As(err, &timedOut) {
			e.logger.Debug("Search matched nothing", zap.String("query", query))
			return nil, nil
		}
		return nil, err
	}

	if filter.PageOffset > 0 {
		reached, err := e.navigateToPage(ctx, page, filter.PageOffset+1)
		if err != nil {
			return nil, err
		}
		if !reached {
			// Offset past the last page.
			return nil, nil
		}
	}

	var raw []rawResult
	if err := page.Evaluate(ctx, extractSearchResultsJS, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		if throttled, terr := browser.DetectThrottle(ctx, page, e.ui); terr == nil && throttled {
			return nil, browser.ThrottleError("empty search results with throttle banner")
		}
	}

	results := make([]schemas.SearchResult, 0, len(raw))
	now := time.Now()
	for i, r := range raw {
		results = append(results, schemas.SearchResult{
			Message:   r.toMessage(now),
			MatchRank: filter.PageOffset*PageSize + i,
		})
	}
	e.logger.Debug("Search complete",
		zap.String("server_id", serverID),
		zap.String("query", query),
		zap.Int("page", filter.PageOffset),
		zap.Int("results", len(results)))
	return results, nil
}

// navigateToPage moves the results view to the 1-based page number. The
// client's pagination controls vary with result count, so three strategies
// are tried in order: a direct page button, the jump-to-page input behind
// the ellipsis, and sequential Next clicks. Returns false when the page
// does not exist.
func (e *Engine) navigateToPage(ctx context.Context, page browser.Page, pageNum int) (bool, error) {
	var outcome pageNavOutcome
	if err := page.Evaluate(ctx, directPageButtonJS(pageNum), &outcome); err != nil {
		return false, err
	}
	if outcome.Clicked {
		return true, e.settleResults(ctx)
	}

	if err := page.Evaluate(ctx, ellipsisPageInputJS(pageNum), &outcome); err != nil {
		return false, err
	}
	if outcome.Clicked {
		return true, e.settleResults(ctx)
	}

	// Fall back to clicking Next once per page. A missing Next button
	// before reaching the target means the offset is past the end.
	for step := 1; step < pageNum; step++ {
		if err := page.Evaluate(ctx, clickNextPageJS, &outcome); err != nil {
			return false, err
		}
		if !outcome.Clicked {
			return false, nil
		}
		if err := e.settleResults(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *Engine) settleResults(ctx context.Context) error {
	select {
	case <-time.After(resultSettle):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResolveContext re-runs the search deterministically, jumps to the result
// at resultIndex on the filter's page, and returns the surrounding
// conversation from the channel view the client lands on.
func (e *Engine) ResolveContext(ctx context.Context, serverID string, filter schemas.SearchFilter, resultIndex, beforeCount, afterCount int) (schemas.ContextWindow, error) {
	var window schemas.ContextWindow
	err := e.policy.Do(ctx, "resolve_context", func(ctx context.Context) error {
		return e.sessions.WithAuthenticatedPage(ctx, func(ctx context.Context, page browser.Page) error {
			resolved, err := e.resolveContext(ctx, page, serverID, filter, resultIndex, beforeCount, afterCount)
			if err != nil {
				return err
			}
			window = resolved
			return nil
		})
	})
	return window, err
}

func (e *Engine) resolveContext(ctx context.Context, page browser.Page, serverID string, filter schemas.SearchFilter, resultIndex, beforeCount, afterCount int) (schemas.ContextWindow, error) {
	var zero schemas.ContextWindow

	results, err := e.runSearch(ctx, page, serverID, filter)
	if err != nil {
		return zero, err
	}
	if resultIndex < 0 || resultIndex >= len(results) {
		return zero, &schemas.OutOfRangeError{
			What:      "result_index",
			Requested: resultIndex,
			Limit:     len(results),
		}
	}

	var outcome pageNavOutcome
	if err := page.Evaluate(ctx, clickSearchResultJS(resultIndex), &outcome); err != nil {
		return zero, err
	}
	if !outcome.Clicked {
		return zero, &schemas.ElementNotFoundError{Selector: e.ui.SearchResults, Action: "jump to search result"}
	}

	// The click navigates the channel view to the anchor message.
	if err := page.WaitVisible(ctx, e.ui.MessageItems, 0); err != nil {
		return zero, err
	}
	if err := e.settleResults(ctx); err != nil {
		return zero, err
	}

	currentURL, err := page.CurrentURL(ctx)
	if err != nil {
		return zero, err
	}
	channelID, anchorID := parseChannelMessageURL(currentURL)
	if channelID == "" {
		channelID = results[resultIndex].Message.ChannelID
	}
	if anchorID == "" {
		anchorID = results[resultIndex].Message.ID
	}

	view, err := scraper.ChatMessages(ctx, page, channelID)
	if err != nil {
		return zero, err
	}
	if len(view) == 0 {
		return zero, &schemas.ElementNotFoundError{Selector: e.ui.MessageItems, Action: "read context window"}
	}

	anchorIdx := -1
	for i, msg := range view {
		if msg.ID == anchorID {
			anchorIdx = i
			break
		}
	}
	// The anchor is centered in the view after a jump; fall back to the
	// middle when its DOM id does not surface.
	if anchorIdx < 0 {
		anchorIdx = len(view) / 2
		e.logger.Debug("Anchor not found in view, using midpoint",
			zap.String("anchor_id", anchorID),
			zap.Int("view_size", len(view)))
	}

	window := schemas.ContextWindow{Anchor: view[anchorIdx]}
	start := anchorIdx - beforeCount
	if start < 0 {
		start = 0
	}
	end := anchorIdx + 1 + afterCount
	if end > len(view) {
		end = len(view)
	}
	window.Before = append(window.Before, view[start:anchorIdx]...)
	window.After = append(window.After, view[anchorIdx+1:end]...)
	return window, nil
}

// parseChannelMessageURL pulls the channel and message ids out of a
// /channels/{server}/{channel}/{message} location.
func parseChannelMessageURL(url string) (channelID, messageID string) {
	m := channelMessageURL.FindStringSubmatch(url)
	if m == nil {
		return "", ""
	}
	return m[2], m[3]
}
