package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/browser"
	"github.com/silknet/cordscope/internal/browser/browsertest"
	"github.com/silknet/cordscope/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		BaseURL:       "https://discord.com",
		ProbeTimeout:  time.Second,
		LoginTimeout:  200 * time.Millisecond,
		TwoFactorWait: 2 * time.Second,
	}
}

func newTestManager(t *testing.T, page *browsertest.Page, creds config.AccountConfig, persisted []schemas.Cookie) (*Manager, *CookieStore) {
	t.Helper()
	store := NewCookieStore(filepath.Join(t.TempDir(), "session.json"), zap.NewNop())
	if persisted != nil {
		require.NoError(t, store.Save(persisted))
	}
	m := NewManager(page, browser.DefaultUIMap(), store, testSessionConfig(), creds, zap.NewNop())
	return m, store
}

var testCookies = []schemas.Cookie{{Name: "token", Value: "tok", Domain: ".discord.com"}}

func TestManagerLogsOwnSessionID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	store := NewCookieStore(filepath.Join(t.TempDir(), "session.json"), zap.NewNop())
	require.NoError(t, store.Save(testCookies))
	m := NewManager(browsertest.New(), browser.DefaultUIMap(), store, testSessionConfig(),
		config.AccountConfig{}, zap.New(core))

	require.NoError(t, m.EnsureAuthenticated(context.Background()))

	entries := logs.FilterField(zap.String("session_id", m.ID()[:8])).All()
	require.NotEmpty(t, entries, "session logs must carry the manager's own id")
	assert.Len(t, entries, logs.Len(), "every session log line carries the same id")
}

func TestEnsureAuthenticated(t *testing.T) {
	ctx := context.Background()
	creds := config.AccountConfig{Email: "user@example.com", Password: "hunter2"}

	t.Run("restores a persisted session without touching the login form", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, creds, testCookies)

		require.NoError(t, m.EnsureAuthenticated(ctx))
		assert.Equal(t, StateAuthenticated, m.State())

		assert.Equal(t, testCookies, page.Installed())
		assert.Empty(t, page.Typed(), "restore must not type credentials")
		for _, url := range page.Navigated() {
			assert.NotContains(t, url, "/login")
		}
	})

	t.Run("interactive login types credentials and persists cookies", func(t *testing.T) {
		page := browsertest.New()
		page.CookieSet = testCookies
		ui := browser.DefaultUIMap()
		page.ClickFn = func(ctx context.Context, selector string) error {
			if selector == ui.LoginSubmit {
				page.SetURL("https://discord.com/channels/@me")
			}
			return nil
		}
		m, store := newTestManager(t, page, creds, nil)

		require.NoError(t, m.EnsureAuthenticated(ctx))
		assert.Equal(t, StateAuthenticated, m.State())

		assert.Equal(t, []string{"user@example.com", "hunter2"}, page.Typed())

		// The successful transition is the only thing that persists cookies.
		persisted, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, testCookies, persisted)
	})

	t.Run("already authenticated is a no-op", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, creds, testCookies)

		require.NoError(t, m.EnsureAuthenticated(ctx))
		navsAfterFirst := len(page.Navigated())

		require.NoError(t, m.EnsureAuthenticated(ctx))
		assert.Equal(t, navsAfterFirst, len(page.Navigated()))
	})

	t.Run("concurrent callers share one login", func(t *testing.T) {
		page := browsertest.New()
		var logins atomic.Int32
		ui := browser.DefaultUIMap()
		page.ClickFn = func(ctx context.Context, selector string) error {
			if selector == ui.LoginSubmit {
				logins.Add(1)
				page.SetURL("https://discord.com/channels/@me")
			}
			return nil
		}
		m, _ := newTestManager(t, page, creds, nil)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, m.EnsureAuthenticated(ctx))
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), logins.Load())
	})

	t.Run("rejected credentials are fatal", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL("https://discord.com/login")
		// Submit click never leaves /login.
		m, _ := newTestManager(t, page, creds, nil)

		err := m.EnsureAuthenticated(ctx)
		var authErr *schemas.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.Reason, "credentials rejected")
		assert.Equal(t, StateFatal, m.State())

		// Fatal sessions refuse further attempts outright.
		err = m.EnsureAuthenticated(ctx)
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("missing credentials are fatal", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, config.AccountConfig{}, nil)

		err := m.EnsureAuthenticated(ctx)
		var authErr *schemas.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, StateFatal, m.State())
	})

	t.Run("second factor detour resolves once the challenge completes", func(t *testing.T) {
		page := browsertest.New()
		ui := browser.DefaultUIMap()
		page.ClickFn = func(ctx context.Context, selector string) error {
			if selector == ui.LoginSubmit {
				page.SetURL("https://discord.com/verify")
				go func() {
					time.Sleep(100 * time.Millisecond)
					page.SetURL("https://discord.com/channels/@me")
				}()
			}
			return nil
		}
		m, _ := newTestManager(t, page, creds, nil)

		require.NoError(t, m.EnsureAuthenticated(ctx))
		assert.Equal(t, StateAuthenticated, m.State())
	})

	t.Run("unfinished second factor is fatal", func(t *testing.T) {
		page := browsertest.New()
		ui := browser.DefaultUIMap()
		page.ClickFn = func(ctx context.Context, selector string) error {
			if selector == ui.LoginSubmit {
				page.SetURL("https://discord.com/verify")
			}
			return nil
		}
		m, _ := newTestManager(t, page, creds, nil)
		m.cfg.TwoFactorWait = 50 * time.Millisecond

		err := m.EnsureAuthenticated(ctx)
		var authErr *schemas.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.Reason, "second factor")
	})
}

func TestWithAuthenticatedPage(t *testing.T) {
	ctx := context.Background()
	creds := config.AccountConfig{Email: "user@example.com", Password: "hunter2"}

	t.Run("runs fn against the owned page", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, creds, testCookies)

		ran := false
		err := m.WithAuthenticatedPage(ctx, func(ctx context.Context, p browser.Page) error {
			ran = true
			assert.Same(t, browser.Page(page), p)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("re-authenticates once on a mid-operation session expiry", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, creds, testCookies)

		calls := 0
		err := m.WithAuthenticatedPage(ctx, func(ctx context.Context, p browser.Page) error {
			calls++
			if calls == 1 {
				// The platform bounced us to the login screen mid-flight.
				page.SetURL("https://discord.com/login")
				return errors.New("element vanished")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, StateAuthenticated, m.State())
	})

	t.Run("non-stale failures surface unchanged", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, creds, testCookies)

		boom := errors.New("boom")
		calls := 0
		err := m.WithAuthenticatedPage(ctx, func(ctx context.Context, p browser.Page) error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls, "no retry without the redirect-to-login signature")
	})

	t.Run("operations are serialized", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, creds, testCookies)

		var inFlight, maxInFlight atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := m.WithAuthenticatedPage(ctx, func(ctx context.Context, p browser.Page) error {
					n := inFlight.Add(1)
					if n > maxInFlight.Load() {
						maxInFlight.Store(n)
					}
					time.Sleep(10 * time.Millisecond)
					inFlight.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInFlight.Load())
	})

	t.Run("cancelled context aborts waiting for the lane", func(t *testing.T) {
		page := browsertest.New()
		m, _ := newTestManager(t, page, creds, testCookies)

		require.NoError(t, m.acquire(ctx))
		defer m.release()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := m.WithAuthenticatedPage(cancelled, func(ctx context.Context, p browser.Page) error {
			t.Fatal("fn must not run")
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsAuthenticatedURL(t *testing.T) {
	assert.True(t, isAuthenticatedURL("https://discord.com/channels/@me"))
	assert.True(t, isAuthenticatedURL("https://discord.com/channels/100/200"))
	assert.False(t, isAuthenticatedURL("https://discord.com/login"))
	assert.False(t, isAuthenticatedURL("https://discord.com/register"))
	assert.False(t, isAuthenticatedURL("https://discord.com/"))
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateLoggedOut:      "LoggedOut",
		StateLoggingIn:      "LoggingIn",
		StateAuthenticated:  "Authenticated",
		StateSessionExpired: "SessionExpired",
		StateFatal:          "Fatal",
		State(42):           "Unknown",
	} {
		assert.Equal(t, want, state.String())
	}
}

