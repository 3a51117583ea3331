// Package session owns authentication against the platform and the single
// execution lane through which all DOM-driving work flows.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/browser"
	"github.com/silknet/cordscope/internal/config"
)

// State is the session lifecycle position.
type State int32

const (
	StateLoggedOut State = iota
	StateLoggingIn
	StateAuthenticated
	StateSessionExpired
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "LoggedOut"
	case StateLoggingIn:
		return "LoggingIn"
	case StateAuthenticated:
		return "Authenticated"
	case StateSessionExpired:
		return "SessionExpired"
	case StateFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Manager guards the one authenticated browser page. All operations that
// drive the DOM run through WithAuthenticatedPage, which serializes them:
// concurrent navigation against a shared tab would corrupt both views.
type Manager struct {
	id     string
	page   browser.Page
	ui     browser.UIMap
	store  *CookieStore
	cfg    config.SessionConfig
	creds  config.AccountConfig
	logger *zap.Logger

	state        atomic.Int32
	lastActivity atomic.Int64

	// execSlot is the single-owner execution lane. Buffered size 1: holding
	// the token means owning the page.
	execSlot chan struct{}

	loginGroup singleflight.Group
}

// NewManager wires a session manager over a page and a cookie store.
func NewManager(page browser.Page, ui browser.UIMap, store *CookieStore, cfg config.SessionConfig, creds config.AccountConfig, logger *zap.Logger) *Manager {
	id := uuid.New().String()
	m := &Manager{
		id:       id,
		page:     page,
		ui:       ui,
		store:    store,
		cfg:      cfg,
		creds:    creds,
		logger:   logger.Named("session").With(zap.String("session_id", id[:8])),
		execSlot: make(chan struct{}, 1),
	}
	m.state.Store(int32(StateLoggedOut))
	return m
}

// ID returns the session identifier.
func (m *Manager) ID() string { return m.id }

// State returns the current lifecycle position.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Debug("Session state transition",
			zap.String("from", old.String()), zap.String("to", s.String()))
	}
}

func (m *Manager) touch() { m.lastActivity.Store(time.Now().UnixNano()) }

// LastActivity reports when the session last drove the page.
func (m *Manager) LastActivity() time.Time {
	return time.Unix(0, m.lastActivity.Load())
}

// acquire takes the execution lane, honoring the caller's context.
func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.execSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() { <-m.execSlot }

// EnsureAuthenticated restores a persisted session if one is still valid,
// otherwise performs interactive login. Concurrent callers share one login
// attempt. Calling it on an already-authenticated session is a cheap no-op.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	if m.State() == StateFatal {
		return &schemas.AuthenticationError{Reason: "session is in a fatal state"}
	}
	if m.State() == StateAuthenticated {
		return nil
	}

	_, err, _ := m.loginGroup.Do("login", func() (any, error) {
		// Re-check: a concurrent caller may have finished the login while
		// this one queued.
		if m.State() == StateAuthenticated {
			return nil, nil
		}
		return nil, m.authenticate(ctx)
	})
	return err
}

// authenticate runs the restore-or-login sequence. Callers hold the
// singleflight slot.
func (m *Manager) authenticate(ctx context.Context) error {
	m.setState(StateLoggingIn)

	restored, err := m.tryRestore(ctx)
	if err != nil {
		m.setState(StateLoggedOut)
		return err
	}
	if restored {
		m.setState(StateAuthenticated)
		m.touch()
		m.logger.Info("Session restored from cookie store")
		return nil
	}

	if err := m.interactiveLogin(ctx); err != nil {
		var authErr *schemas.AuthenticationError
		if errors.As(err, &authErr) {
			m.setState(StateFatal)
		} else {
			m.setState(StateLoggedOut)
		}
		return err
	}

	// Cookie persistence is the explicit side effect of the
	// LoggingIn -> Authenticated transition, and only of that transition.
	cookies, err := m.page.Cookies(ctx)
	if err != nil {
		m.logger.Warn("Authenticated but could not snapshot cookies", zap.Error(err))
	} else if err := m.store.Save(cookies); err != nil {
		m.logger.Warn("Authenticated but could not persist cookies", zap.Error(err))
	}

	m.setState(StateAuthenticated)
	m.touch()
	m.logger.Info("Interactive login completed")
	return nil
}

// tryRestore installs persisted cookies and probes an authenticated page.
func (m *Manager) tryRestore(ctx context.Context) (bool, error) {
	cookies, err := m.store.Load()
	if err != nil {
		return false, err
	}
	if len(cookies) == 0 {
		return false, nil
	}
	if err := m.page.SetCookies(ctx, cookies); err != nil {
		return false, err
	}
	ok, err := m.probe(ctx)
	if err != nil {
		// A slow or unrecognized probe means the restored session is not
		// trustworthy; fall through to interactive login.
		m.logger.Debug("Session probe failed, falling back to login", zap.Error(err))
		return false, nil
	}
	return ok, nil
}

// probe performs the lightweight authenticated-page check: load the home
// channel view and wait for the server sidebar.
func (m *Manager) probe(ctx context.Context) (bool, error) {
	if err := m.page.Navigate(ctx, m.cfg.BaseURL+"/channels/@me"); err != nil {
		return false, err
	}
	if err := m.page.WaitVisible(ctx, m.ui.GuildItems, m.cfg.ProbeTimeout); err != nil {
		var nav *schemas.NavigationTimeoutError
		if errors.As(err, &nav) {
			return false, nil
		}
		return false, err
	}
	url, err := m.page.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	return isAuthenticatedURL(url), nil
}

// interactiveLogin drives the credential form and waits out a possible
// second-factor challenge.
func (m *Manager) interactiveLogin(ctx context.Context) error {
	if m.creds.Email == "" || m.creds.Password == "" {
		return &schemas.AuthenticationError{Reason: "no credentials configured"}
	}

	if err := m.page.Navigate(ctx, m.cfg.BaseURL+"/login"); err != nil {
		return err
	}

	if err := m.page.WaitVisible(ctx, m.ui.LoginEmail, m.cfg.ProbeTimeout); err != nil {
		// Maybe an existing browser profile is already signed in.
		if url, uerr := m.page.CurrentURL(ctx); uerr == nil && isAuthenticatedURL(url) {
			return nil
		}
		return &schemas.AuthenticationError{Reason: "login form not recognized"}
	}

	for _, step := range []struct {
		selector, text string
	}{
		{m.ui.LoginEmail, m.creds.Email},
		{m.ui.LoginPassword, m.creds.Password},
	} {
		if err := m.page.Focus(ctx, step.selector); err != nil {
			return fmt.Errorf("login form interaction failed: %w", err)
		}
		if err := m.page.InsertText(ctx, step.text); err != nil {
			return fmt.Errorf("login form interaction failed: %w", err)
		}
	}
	if err := m.page.Click(ctx, m.ui.LoginSubmit); err != nil {
		return fmt.Errorf("login submission failed: %w", err)
	}

	// Wait for the page to leave /login. Staying put means the credentials
	// were rejected.
	left, err := m.waitForURL(ctx, m.cfg.LoginTimeout, func(url string) bool {
		return !strings.Contains(url, "/login")
	})
	if err != nil {
		return err
	}
	if !left {
		return &schemas.AuthenticationError{Reason: "credentials rejected"}
	}

	url, err := m.page.CurrentURL(ctx)
	if err != nil {
		return err
	}

	// A /verify detour is the second-factor / email-confirmation challenge.
	// Give the human a bounded window to complete it.
	if strings.Contains(url, "/verify") {
		m.logger.Info("Second-factor challenge detected, waiting",
			zap.Duration("window", m.cfg.TwoFactorWait))
		done, err := m.waitForURL(ctx, m.cfg.TwoFactorWait, isAuthenticatedURL)
		if err != nil {
			return err
		}
		if !done {
			return &schemas.AuthenticationError{Reason: "second factor not completed in time"}
		}
	}

	ok, err := m.probe(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &schemas.AuthenticationError{Reason: "login appeared to succeed but verification failed"}
	}
	return nil
}

// waitForURL polls the page location until cond holds or the window closes.
// Returns (false, nil) on window expiry so callers can distinguish "still
// waiting" from transport errors.
func (m *Manager) waitForURL(ctx context.Context, window time.Duration, cond func(string) bool) (bool, error) {
	deadline := time.Now().Add(window)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		url, err := m.page.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		if cond(url) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// WithAuthenticatedPage runs fn with exclusive ownership of a
// guaranteed-authenticated page. If fn fails and the failure turns out to
// be a redirect-to-login (session expired server-side), the manager
// re-authenticates transparently and retries fn exactly once. The execution
// lane is released on every exit path.
func (m *Manager) WithAuthenticatedPage(ctx context.Context, fn func(ctx context.Context, page browser.Page) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	if err := m.EnsureAuthenticated(ctx); err != nil {
		return err
	}

	m.touch()
	err := fn(ctx, m.page)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	if !m.staleSession(ctx) {
		return err
	}

	m.logger.Info("Stale session detected mid-operation, re-authenticating once")
	m.setState(StateSessionExpired)
	m.setState(StateLoggedOut)
	if authErr := m.EnsureAuthenticated(ctx); authErr != nil {
		return authErr
	}

	m.touch()
	return fn(ctx, m.page)
}

// staleSession checks for the redirect-to-login signature after a failed
// operation.
func (m *Manager) staleSession(ctx context.Context) bool {
	url, err := m.page.CurrentURL(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(url, "/login") || strings.Contains(url, "/register")
}

func isAuthenticatedURL(url string) bool {
	if strings.Contains(url, "/login") || strings.Contains(url, "/register") {
		return false
	}
	return strings.Contains(url, "/channels/")
}
