package browser

import (
	"context"
	"strconv"

	"github.com/silknet/cordscope/api/schemas"
)

// DetectThrottle checks the page for the platform's rate-limit pushback
// banner. Callers wrap a positive detection in a ThrottleSignal so the
// shared backoff policy retries them.
func DetectThrottle(ctx context.Context, page Page, ui UIMap) (bool, error) {
	var present bool
	expr := "document.querySelector(" + strconv.Quote(ui.ThrottleBanner) + ") !== null"
	if err := page.Evaluate(ctx, expr, &present); err != nil {
		return false, err
	}
	return present, nil
}

// ThrottleError builds the retryable error for a detected throttle.
func ThrottleError(source string) error {
	return &schemas.ThrottleSignal{Source: source}
}
