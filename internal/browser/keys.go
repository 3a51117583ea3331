package browser

import "github.com/chromedp/chromedp/kb"

// Key aliases so callers of Page.PressKey never import chromedp directly.
const (
	KeyEnter  = kb.Enter
	KeyPageUp = kb.PageUp
	KeyEnd    = kb.End
)
