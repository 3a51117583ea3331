// Package browser owns the one Chrome instance the process drives. It
// exposes a small set of DOM primitives behind the Page interface so the
// scraping layers never touch chromedp directly, and so tests can substitute
// a fake page.
package browser

import (
	"context"
	"time"

	"github.com/silknet/cordscope/api/schemas"
)

// Page is the DOM driver surface consumed by the session, scraper, search,
// and sender layers. Every method is bounded by its context; implementations
// must not outlive it.
type Page interface {
	// Navigate loads the URL and waits for DOM content.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector is visible or the timeout
	// elapses, surfacing a NavigationTimeoutError on expiry.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Evaluate runs a JavaScript expression in the page and unmarshals the
	// result into out. Expressions returning promises are awaited.
	Evaluate(ctx context.Context, expression string, out any) error
	// Click dispatches a click on the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// Focus moves input focus to the first element matching the selector.
	Focus(ctx context.Context, selector string) error
	// InsertText types text into the focused element as keyboard input.
	InsertText(ctx context.Context, text string) error
	// PressKey sends a single key (e.g. "\r" for Enter, kb.PageUp).
	PressKey(ctx context.Context, key string) error
	// ScrollIntoView scrolls the first matching element into the viewport.
	ScrollIntoView(ctx context.Context, selector string) error
	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)
	// Cookies snapshots the browser's cookie set.
	Cookies(ctx context.Context) ([]schemas.Cookie, error)
	// SetCookies installs cookies into the browser before navigation.
	SetCookies(ctx context.Context, cookies []schemas.Cookie) error
}

// UIMap names every selector the core depends on. Platform layout changes
// land here, in one place, instead of spreading through the scraping logic.
// One UIMap per known UI version.
type UIMap struct {
	GuildsNav      string
	GuildItems     string
	ChannelLinks   string
	BrowseChannels string
	ChatContainer  string
	MessageItems   string
	MessageContent string
	Username       string
	Timestamp      string
	EditedMarker   string
	AttachmentLink string
	SearchBox      string
	SearchResults  string
	SearchPageBtn  string
	SlateEditor    string
	LoginEmail     string
	LoginPassword  string
	LoginSubmit    string
	ThrottleBanner string
}

// DefaultUIMap targets the Discord web client layout current as of this
// writing.
func DefaultUIMap() UIMap {
	return UIMap{
		GuildsNav:      `[data-list-id="guildsnav"]`,
		GuildItems:     `[data-list-id="guildsnav"] [role="treeitem"]`,
		ChannelLinks:   `a[href*="/channels/"]`,
		BrowseChannels: `[aria-label="Browse Channels"]`,
		ChatContainer:  `[data-list-id="chat-messages"]`,
		MessageItems:   `[data-list-id="chat-messages"] [id^="chat-messages-"]`,
		MessageContent: `[class*="messageContent"]`,
		Username:       `[class*="username"]`,
		Timestamp:      `time`,
		EditedMarker:   `[class*="edited"]`,
		AttachmentLink: `a[href*="cdn.discordapp.com"]`,
		SearchBox:      `[role="combobox"]`,
		SearchResults:  `div[class*="searchResult"]`,
		SearchPageBtn:  `button`,
		SlateEditor:    `[data-slate-editor="true"]`,
		LoginEmail:     `input[name="email"]`,
		LoginPassword:  `input[name="password"]`,
		LoginSubmit:    `button[type="submit"]`,
		ThrottleBanner: `[class*="rateLimit"], [class*="slowmode"]`,
	}
}
