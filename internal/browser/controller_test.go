package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silknet/cordscope/api/schemas"
)

func TestWithDeadline(t *testing.T) {
	t.Run("bounds a context that has no deadline", func(t *testing.T) {
		ctx, cancel := withDeadline(context.Background(), 30*time.Second)
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok, "every page action must run under a deadline")
		assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, time.Second)
	})

	t.Run("keeps an existing deadline", func(t *testing.T) {
		parent, parentCancel := context.WithTimeout(context.Background(), time.Second)
		defer parentCancel()
		want, _ := parent.Deadline()

		ctx, cancel := withDeadline(parent, time.Hour)
		defer cancel()

		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, want, got, "a tighter caller deadline must win")
	})

	t.Run("expiry cancels the derived context", func(t *testing.T) {
		ctx, cancel := withDeadline(context.Background(), 10*time.Millisecond)
		defer cancel()
		waitDone(t, ctx)
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	})
}

func TestRunError(t *testing.T) {
	t.Run("deadline expiry becomes a typed timeout", func(t *testing.T) {
		err := runError(context.DeadlineExceeded, "click:#composer", time.Now().Add(-time.Second))

		var nav *schemas.NavigationTimeoutError
		require.ErrorAs(t, err, &nav)
		assert.Equal(t, "click:#composer", nav.Action)
		assert.GreaterOrEqual(t, nav.Elapsed, time.Second)
	})

	t.Run("wrapped expiry is still recognized", func(t *testing.T) {
		wrapped := fmt.Errorf("chromedp: %w", context.DeadlineExceeded)
		err := runError(wrapped, "evaluate", time.Now())

		var nav *schemas.NavigationTimeoutError
		assert.ErrorAs(t, err, &nav)
	})

	t.Run("other errors pass through untouched", func(t *testing.T) {
		cause := errors.New("target crashed")
		assert.Same(t, cause, runError(cause, "navigate", time.Now()))

		assert.ErrorIs(t, runError(context.Canceled, "navigate", time.Now()), context.Canceled)
	})
}

func TestWrapAction(t *testing.T) {
	t.Run("timeout errors keep their type", func(t *testing.T) {
		cause := &schemas.NavigationTimeoutError{Action: "wait:#app"}
		err := wrapAction(cause, "wait for %q failed", "#app")
		assert.Same(t, error(cause), err)
	})

	t.Run("other errors gain context and stay unwrappable", func(t *testing.T) {
		cause := errors.New("no node found")
		err := wrapAction(cause, "click on %q failed", "#button")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), `click on "#button" failed`)
	})
}
