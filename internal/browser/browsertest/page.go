// Package browsertest provides a scriptable Page implementation for tests.
// Behavior defaults to "everything succeeds"; individual methods are
// overridden per test through the Fn hooks.
package browsertest

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/silknet/cordscope/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page records every interaction and delegates to optional hooks.
type Page struct {
	mu sync.Mutex

	url       string
	typed     []string
	keys      []string
	clicked   []string
	focused   []string
	navigated []string
	installed []schemas.Cookie

	// CookieSet is what Cookies returns.
	CookieSet []schemas.Cookie

	NavigateFn    func(ctx context.Context, url string) error
	WaitVisibleFn func(ctx context.Context, selector string, timeout time.Duration) error
	EvaluateFn    func(ctx context.Context, expression string, out any) error
	ClickFn       func(ctx context.Context, selector string) error
	FocusFn       func(ctx context.Context, selector string) error
	InsertTextFn  func(ctx context.Context, text string) error
	PressKeyFn    func(ctx context.Context, key string) error
}

func New() *Page { return &Page{} }

// SetResult marshals v into out the way a live page's JSON round-trip
// would. Intended for use inside EvaluateFn hooks.
func SetResult(out any, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// SetURL moves the fake page to a location without recording a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.navigated = append(p.navigated, url)
	p.url = url
	p.mu.Unlock()
	if p.NavigateFn != nil {
		return p.NavigateFn(ctx, url)
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if p.WaitVisibleFn != nil {
		return p.WaitVisibleFn(ctx, selector, timeout)
	}
	return nil
}

func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	if p.EvaluateFn != nil {
		return p.EvaluateFn(ctx, expression, out)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.clicked = append(p.clicked, selector)
	p.mu.Unlock()
	if p.ClickFn != nil {
		return p.ClickFn(ctx, selector)
	}
	return nil
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.focused = append(p.focused, selector)
	p.mu.Unlock()
	if p.FocusFn != nil {
		return p.FocusFn(ctx, selector)
	}
	return nil
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	p.mu.Lock()
	p.typed = append(p.typed, text)
	p.mu.Unlock()
	if p.InsertTextFn != nil {
		return p.InsertTextFn(ctx, text)
	}
	return nil
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.mu.Unlock()
	if p.PressKeyFn != nil {
		return p.PressKeyFn(ctx, key)
	}
	return nil
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error { return nil }

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.Cookie(nil), p.CookieSet...), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.installed = append(p.installed, cookies...)
	return nil
}

// Typed returns everything inserted as text, in order.
func (p *Page) Typed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.typed...)
}

// Keys returns every key press, in order.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Clicked returns every clicked selector, in order.
func (p *Page) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

// Focused returns every focused selector, in order.
func (p *Page) Focused() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.focused...)
}

// Navigated returns every navigation target, in order.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Installed returns every cookie installed via SetCookies.
func (p *Page) Installed() []schemas.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.Cookie(nil), p.installed...)
}
