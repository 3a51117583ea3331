// Package scraper turns the rendered channel UI into ordered message
// records and sidebar snapshots.
package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/browser"
	"github.com/silknet/cordscope/internal/config"
	"github.com/silknet/cordscope/internal/ratelimit"
	"github.com/silknet/cordscope/internal/session"
)

// Scraper reads servers, channels, and messages through an authenticated
// session. It holds no page state of its own; every operation acquires the
// session's execution lane.
type Scraper struct {
	sessions *session.Manager
	policy   *ratelimit.Policy
	ui       browser.UIMap
	cfg      config.ScraperConfig
	baseURL  string
	logger   *zap.Logger
}

// New builds a Scraper.
func New(sessions *session.Manager, policy *ratelimit.Policy, ui browser.UIMap, cfg config.ScraperConfig, baseURL string, logger *zap.Logger) *Scraper {
	return &Scraper{
		sessions: sessions,
		policy:   policy,
		ui:       ui,
		cfg:      cfg,
		baseURL:  baseURL,
		logger:   logger.Named("scraper"),
	}
}

// ListServers returns the current sidebar snapshot of joined servers.
func (s *Scraper) ListServers(ctx context.Context) ([]schemas.Server, error) {
	var servers []schemas.Server
	err := s.policy.Do(ctx, "list_servers", func(ctx context.Context) error {
		return s.sessions.WithAuthenticatedPage(ctx, func(ctx context.Context, page browser.Page) error {
			if err := page.Navigate(ctx, s.baseURL+"/channels/@me"); err != nil {
				return err
			}
			if err := page.WaitVisible(ctx, s.ui.GuildItems, 0); err != nil {
				return err
			}

			var raw []rawGuild
			if err := page.Evaluate(ctx, extractGuildsJS, &raw); err != nil {
				return err
			}
			if len(raw) == 0 {
				if throttled, terr := browser.DetectThrottle(ctx, page, s.ui); terr == nil && throttled {
					return browser.ThrottleError("empty server list with throttle banner")
				}
			}

			servers = servers[:0]
			for _, g := range raw {
				servers = append(servers, schemas.Server{ID: g.ID, Name: g.Name})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Listed servers", zap.Int("count", len(servers)))
	return servers, nil
}

// ListChannels returns the current channel snapshot for one server. The
// sidebar only renders joined channels; a Browse Channels pass picks up the
// rest when the server exposes it.
func (s *Scraper) ListChannels(ctx context.Context, serverID string) ([]schemas.Channel, error) {
	var channels []schemas.Channel
	err := s.policy.Do(ctx, "list_channels", func(ctx context.Context) error {
		return s.sessions.WithAuthenticatedPage(ctx, func(ctx context.Context, page browser.Page) error {
			if err := page.Navigate(ctx, s.baseURL+"/channels/"+serverID); err != nil {
				return err
			}
			if err := page.WaitVisible(ctx, s.ui.ChannelLinks, 0); err != nil {
				return err
			}

			extractJS := channelExtractionJS(serverID)
			var sidebar []rawChannel
			if err := page.Evaluate(ctx, extractJS, &sidebar); err != nil {
				return err
			}

			// Best effort: open Browse Channels and scroll everything so
			// hidden channels render. The view needs time to paint after
			// the click and after the scroll, or the extraction just
			// re-reads the sidebar. Failure here never fails the listing.
			var browsed []rawChannel
			if err := page.Click(ctx, s.ui.BrowseChannels); err == nil {
				if err := sleepCtx(ctx, s.cfg.ScrollSettle); err != nil {
					return err
				}
				var scrolled bool
				_ = page.Evaluate(ctx, expandHiddenChannelsJS, &scrolled)
				if err := sleepCtx(ctx, s.cfg.ScrollSettle); err != nil {
					return err
				}
				_ = page.Evaluate(ctx, extractJS, &browsed)
			}

			seen := make(map[string]struct{}, len(sidebar)+len(browsed))
			channels = channels[:0]
			for _, batch := range [][]rawChannel{sidebar, browsed} {
				for _, ch := range batch {
					if _, ok := seen[ch.ID]; ok {
						continue
					}
					seen[ch.ID] = struct{}{}
					channels = append(channels, schemas.Channel{
						ID:       ch.ID,
						ServerID: serverID,
						Name:     ch.Name,
						Type:     schemas.ChannelTypeText,
					})
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Listed channels", zap.String("server_id", serverID), zap.Int("count", len(channels)))
	return channels, nil
}

// ReadMessages retrieves up to maxMessages from a channel, newest first,
// paginating backwards through history. When hoursBack is positive,
// retrieval stops once the oldest visible message falls outside the window
// and older messages are excluded from the result.
func (s *Scraper) ReadMessages(ctx context.Context, serverID, channelID string, maxMessages int, hoursBack float64) ([]schemas.Message, error) {
	if maxMessages <= 0 || maxMessages > s.cfg.MaxMessagesCeiling {
		return nil, &schemas.OutOfRangeError{
			What:      "max_messages",
			Requested: maxMessages,
			Limit:     s.cfg.MaxMessagesCeiling,
		}
	}

	var cutoff time.Time
	if hoursBack > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(hoursBack * float64(time.Hour)))
	}

	var result []schemas.Message
	err := s.policy.Do(ctx, "read_messages", func(ctx context.Context) error {
		return s.sessions.WithAuthenticatedPage(ctx, func(ctx context.Context, page browser.Page) error {
			collected, err := s.collectMessages(ctx, page, serverID, channelID, maxMessages, cutoff)
			if err != nil {
				return err
			}
			result = collected
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// collectMessages does the scroll-and-extract loop against an owned page.
func (s *Scraper) collectMessages(ctx context.Context, page browser.Page, serverID, channelID string, maxMessages int, cutoff time.Time) ([]schemas.Message, error) {
	channelURL := fmt.Sprintf("%s/channels/%s/%s", s.baseURL, serverID, channelID)
	if err := page.Navigate(ctx, channelURL); err != nil {
		return nil, err
	}
	if err := page.WaitVisible(ctx, s.ui.ChatContainer, 0); err != nil {
		return nil, err
	}

	// Start from the newest messages.
	var scrolled bool
	if err := page.Evaluate(ctx, scrollChatToBottomJS, &scrolled); err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make(map[string]struct{})
	var messages []schemas.Message
	reachedCutoff := false

	for step := 0; step < s.cfg.MaxScrollSteps; step++ {
		var raw []rawMessage
		if err := page.Evaluate(ctx, extractMessagesJS, &raw); err != nil {
			return nil, err
		}

		if len(raw) == 0 && step == 0 {
			if throttled, terr := browser.DetectThrottle(ctx, page, s.ui); terr == nil && throttled {
				return nil, browser.ThrottleError("empty channel view with throttle banner")
			}
		}

		newThisStep := 0
		for _, r := range raw {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			newThisStep++

			msg := toMessage(r, channelID, now)
			if !cutoff.IsZero() && msg.TimestampUTC.Before(cutoff) {
				reachedCutoff = true
				continue
			}
			messages = append(messages, msg)
		}

		if len(messages) >= maxMessages || reachedCutoff {
			break
		}
		// No new messages after a scroll step means history is exhausted.
		if step > 0 && newThisStep == 0 {
			break
		}

		if err := page.PressKey(ctx, browser.KeyPageUp); err != nil {
			return nil, err
		}
		if err := sleepCtx(ctx, s.cfg.ScrollSettle); err != nil {
			return nil, err
		}
	}

	sortNewestFirst(messages)
	if len(messages) > maxMessages {
		messages = messages[:maxMessages]
	}
	s.logger.Debug("Read messages",
		zap.String("channel_id", channelID),
		zap.Int("count", len(messages)),
		zap.Bool("hit_cutoff", reachedCutoff))
	return messages, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
