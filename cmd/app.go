package cmd

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/archive"
	"github.com/silknet/cordscope/internal/browser"
	"github.com/silknet/cordscope/internal/observability"
	"github.com/silknet/cordscope/internal/ratelimit"
	"github.com/silknet/cordscope/internal/scraper"
	"github.com/silknet/cordscope/internal/search"
	"github.com/silknet/cordscope/internal/sender"
	"github.com/silknet/cordscope/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app wires one browser, one session, and the operation layers on top of
// them for the lifetime of a command.
type app struct {
	controller *browser.Controller
	sessions   *session.Manager
	scraper    *scraper.Scraper
	search     *search.Engine
	sender     *sender.Sender
	archive    *archive.Store
	logger     *zap.Logger
}

// newApp starts the browser and builds the operation layers. The returned
// cleanup must run before process exit.
func newApp(ctx context.Context) (*app, func(), error) {
	logger := observability.GetLogger()

	controller, err := browser.NewController(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	cleanup := func() { controller.Close() }

	ui := browser.DefaultUIMap()
	store := session.NewCookieStore(cfg.Session.CookieFile, logger)
	sessions := session.NewManager(controller, ui, store, cfg.Session, cfg.Account, logger)
	policy := ratelimit.NewPolicy(cfg.RateLimit, logger)

	a := &app{
		controller: controller,
		sessions:   sessions,
		scraper:    scraper.New(sessions, policy, ui, cfg.Scraper, cfg.Session.BaseURL, logger),
		search:     search.NewEngine(sessions, policy, ui, cfg.Session.BaseURL, logger),
		sender:     sender.New(sessions, policy, ui, cfg.Sender, cfg.Session.BaseURL, logger),
		logger:     logger,
	}

	if cfg.Archive.Enabled {
		store, err := archive.Connect(ctx, cfg.Archive.URL, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		a.archive = store
	}
	return a, cleanup, nil
}

// archiveMessages persists a scraped batch when the archive is enabled.
// Archive failures are logged, not fatal; the scrape already succeeded.
func (a *app) archiveMessages(ctx context.Context, serverID string, messages []schemas.Message) {
	if a.archive == nil || len(messages) == 0 {
		return
	}
	if err := a.archive.SaveMessages(ctx, serverID, messages); err != nil {
		a.logger.Warn("Failed to archive messages", zap.Error(err))
	}
}

// printJSON renders a command result to stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
