package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context never cancelled")
	}
}

func TestCombineContext(t *testing.T) {
	t.Run("cancelling the parent cancels the combined context", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		combined, cancel := CombineContext(parent, context.Background())
		defer cancel()

		cancelParent()
		waitDone(t, combined)
	})

	t.Run("cancelling the secondary cancels the combined context", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()
		waitDone(t, combined)
	})

	t.Run("explicit cancel releases the watcher goroutine", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		waitDone(t, combined)
	})

	t.Run("neither cancelled means still live", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		defer cancel()

		select {
		case <-combined.Done():
			t.Fatal("combined context cancelled prematurely")
		default:
		}
		require.NoError(t, combined.Err())
	})
}

func TestDefaultUIMap(t *testing.T) {
	ui := DefaultUIMap()

	// Every selector the operations depend on must be present.
	for name, selector := range map[string]string{
		"GuildsNav":      ui.GuildsNav,
		"GuildItems":     ui.GuildItems,
		"ChannelLinks":   ui.ChannelLinks,
		"ChatContainer":  ui.ChatContainer,
		"MessageItems":   ui.MessageItems,
		"SearchBox":      ui.SearchBox,
		"SearchResults":  ui.SearchResults,
		"SlateEditor":    ui.SlateEditor,
		"LoginEmail":     ui.LoginEmail,
		"LoginPassword":  ui.LoginPassword,
		"LoginSubmit":    ui.LoginSubmit,
		"ThrottleBanner": ui.ThrottleBanner,
	} {
		assert.NotEmpty(t, selector, "selector %s must not be empty", name)
	}
}
