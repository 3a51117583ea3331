package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/config"
)

// Controller owns the Chrome allocator and the single browser tab all
// operations share. It implements Page.
type Controller struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	closeOnce sync.Once
}

var _ Page = (*Controller)(nil)

// NewController launches Chrome and opens the shared tab.
func NewController(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Controller, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 900),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Launch the browser eagerly so startup failures surface here, not on
	// the first operation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Controller{
		cfg:           cfg,
		logger:        logger.Named("browser"),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close tears down the tab and the Chrome process.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.logger.Info("Closing browser")
		c.browserCancel()
		c.allocCancel()
	})
}

// run executes chromedp actions against the shared tab, honoring both the
// caller's context and the browser lifecycle. A caller context with no
// deadline is bounded by the configured wait timeout, so a wedged tab
// cannot hold the execution lane forever. Deadline expiry surfaces as a
// NavigationTimeoutError for the given action.
func (c *Controller) run(ctx context.Context, action string, actions ...chromedp.Action) error {
	ctx, cancel := withDeadline(ctx, c.cfg.WaitTimeout)
	defer cancel()
	runCtx, runCancel := CombineContext(c.browserCtx, ctx)
	defer runCancel()

	start := time.Now()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return runError(err, action, start)
	}
	return nil
}

// withDeadline bounds ctx by d unless it already carries a deadline.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// runError maps deadline expiry to the typed timeout error and leaves
// everything else untouched.
func runError(err error, action string, start time.Time) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &schemas.NavigationTimeoutError{Action: action, Elapsed: time.Since(start)}
	}
	return err
}

// wrapAction wraps an action failure for context, keeping already-typed
// timeout errors intact so retry classification still sees them.
func wrapAction(err error, format string, args ...any) error {
	var nav *schemas.NavigationTimeoutError
	if errors.As(err, &nav) {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Navigate implements Page.
func (c *Controller) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavTimeout)
	defer cancel()

	c.logger.Debug("Navigating", zap.String("url", url))
	if err := c.run(navCtx, "navigate", chromedp.Navigate(url)); err != nil {
		return wrapAction(err, "navigation to %s failed", url)
	}
	if c.cfg.ExtraWait > 0 {
		if err := c.run(ctx, "navigate_settle", chromedp.Sleep(c.cfg.ExtraWait)); err != nil {
			return err
		}
	}
	return nil
}

// WaitVisible implements Page.
func (c *Controller) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.cfg.WaitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.run(waitCtx, "wait:"+selector, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return wrapAction(err, "wait for %q failed", selector)
	}
	return nil
}

// Evaluate implements Page. Promise results are awaited before unmarshaling.
func (c *Controller) Evaluate(ctx context.Context, expression string, out any) error {
	err := c.run(ctx, "evaluate", chromedp.Evaluate(expression, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		return wrapAction(err, "script evaluation failed")
	}
	return nil
}

// exists reports whether the selector currently matches anything, without
// waiting.
func (c *Controller) exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := "document.querySelector(" + strconv.Quote(selector) + ") !== null"
	if err := c.Evaluate(ctx, expr, &found); err != nil {
		return false, err
	}
	return found, nil
}

// Click implements Page. A missing element is reported immediately as an
// ElementNotFoundError rather than waited on; the UI contract has changed
// if a selector we depend on stops matching.
func (c *Controller) Click(ctx context.Context, selector string) error {
	found, err := c.exists(ctx, selector)
	if err != nil {
		return err
	}
	if !found {
		return &schemas.ElementNotFoundError{Selector: selector, Action: "click"}
	}
	if err := c.run(ctx, "click:"+selector, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return wrapAction(err, "click on %q failed", selector)
	}
	return nil
}

// Focus implements Page.
func (c *Controller) Focus(ctx context.Context, selector string) error {
	found, err := c.exists(ctx, selector)
	if err != nil {
		return err
	}
	if !found {
		return &schemas.ElementNotFoundError{Selector: selector, Action: "focus"}
	}
	if err := c.run(ctx, "focus:"+selector, chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return wrapAction(err, "focus on %q failed", selector)
	}
	return nil
}

// InsertText implements Page. Text is inserted as raw keyboard input into
// whatever holds focus; rich-text editors that reject programmatic value
// assignment accept this path.
func (c *Controller) InsertText(ctx context.Context, text string) error {
	err := c.run(ctx, "insert_text", chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
	if err != nil {
		return wrapAction(err, "text insertion failed")
	}
	return nil
}

// PressKey implements Page.
func (c *Controller) PressKey(ctx context.Context, key string) error {
	if err := c.run(ctx, "key_press", chromedp.KeyEvent(key)); err != nil {
		return wrapAction(err, "key press failed")
	}
	return nil
}

// ScrollIntoView implements Page.
func (c *Controller) ScrollIntoView(ctx context.Context, selector string) error {
	found, err := c.exists(ctx, selector)
	if err != nil {
		return err
	}
	if !found {
		return &schemas.ElementNotFoundError{Selector: selector, Action: "scroll"}
	}
	if err := c.run(ctx, "scroll:"+selector, chromedp.ScrollIntoView(selector, chromedp.ByQuery)); err != nil {
		return wrapAction(err, "scroll to %q failed", selector)
	}
	return nil
}

// CurrentURL implements Page.
func (c *Controller) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, "location", chromedp.Location(&loc)); err != nil {
		return "", wrapAction(err, "failed to read location")
	}
	return loc, nil
}

// Cookies implements Page.
func (c *Controller) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var raw []*network.Cookie
	err := c.run(ctx, "read_cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, wrapAction(err, "failed to read cookies")
	}

	cookies := make([]schemas.Cookie, 0, len(raw))
	for _, ck := range raw {
		cookies = append(cookies, schemas.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: ck.SameSite.String(),
		})
	}
	return cookies, nil
}

// SetCookies implements Page.
func (c *Controller) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
		}
		if ck.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			p.Expires = &expires
		}
		if ck.SameSite != "" {
			p.SameSite = network.CookieSameSite(ck.SameSite)
		}
		params = append(params, p)
	}

	err := c.run(ctx, "install_cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return wrapAction(err, "failed to install cookies")
	}
	return nil
}
