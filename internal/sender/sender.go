// Package sender dispatches outbound messages through the channel
// composer, chunking content that exceeds the platform limit.
package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/browser"
	"github.com/silknet/cordscope/internal/config"
	"github.com/silknet/cordscope/internal/ratelimit"
	"github.com/silknet/cordscope/internal/session"
)

// Sender types messages into a channel's composer. Chunks of one send go
// out in order with a fixed pause between them; a cancelled context stops
// cleanly between chunks, never mid-chunk.
type Sender struct {
	sessions *session.Manager
	policy   *ratelimit.Policy
	ui       browser.UIMap
	cfg      config.SenderConfig
	baseURL  string
	logger   *zap.Logger
}

// New builds a Sender.
func New(sessions *session.Manager, policy *ratelimit.Policy, ui browser.UIMap, cfg config.SenderConfig, baseURL string, logger *zap.Logger) *Sender {
	return &Sender{
		sessions: sessions,
		policy:   policy,
		ui:       ui,
		cfg:      cfg,
		baseURL:  baseURL,
		logger:   logger.Named("sender"),
	}
}

// Send delivers content to a channel, splitting it into ordered chunks when
// it exceeds the message length limit. On a mid-sequence failure the
// returned SendFailureError reports how many chunks made it out.
func (s *Sender) Send(ctx context.Context, serverID, channelID, content string) (schemas.SendReceipt, error) {
	var receipt schemas.SendReceipt
	if content == "" {
		return receipt, &schemas.SendFailureError{Sent: 0, Total: 0, Cause: fmt.Errorf("empty content")}
	}

	chunks := SplitChunks(content, s.cfg.MaxMessageLen)
	err := s.policy.Do(ctx, "send_message", func(ctx context.Context) error {
		return s.sessions.WithAuthenticatedPage(ctx, func(ctx context.Context, page browser.Page) error {
			sent, ids, err := s.sendChunks(ctx, page, serverID, channelID, chunks)
			if err != nil {
				// Nothing out yet: keep the live cause underneath so
				// transient failures still classify as retryable, and
				// a retry cannot duplicate content. After the first
				// chunk a retry would, so the cause is flattened to
				// keep the failure terminal.
				if sent == 0 {
					return &schemas.SendFailureError{Sent: 0, Total: len(chunks), Cause: err}
				}
				return &schemas.SendFailureError{
					Sent:  sent,
					Total: len(chunks),
					Cause: fmt.Errorf("chunk %d rejected: %v", sent+1, err),
				}
			}
			receipt = schemas.SendReceipt{ChunkIDs: ids, Chunks: len(ids)}
			return nil
		})
	})
	if err != nil {
		return schemas.SendReceipt{}, err
	}
	s.logger.Info("Message sent",
		zap.String("channel_id", channelID),
		zap.Int("chunks", receipt.Chunks))
	return receipt, nil
}

// sendChunks types and submits each chunk against an owned page. It checks
// for cancellation before every chunk, so an in-flight chunk always
// completes before the sequence stops.
func (s *Sender) sendChunks(ctx context.Context, page browser.Page, serverID, channelID string, chunks []string) (sent int, ids []string, err error) {
	channelURL := fmt.Sprintf("%s/channels/%s/%s", s.baseURL, serverID, channelID)
	if err := page.Navigate(ctx, channelURL); err != nil {
		return 0, nil, err
	}
	if err := page.WaitVisible(ctx, s.ui.SlateEditor, 0); err != nil {
		return 0, nil, err
	}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return sent, ids, err
		}
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.ChunkDelay); err != nil {
				return sent, ids, err
			}
		}

		if err := page.Focus(ctx, s.ui.SlateEditor); err != nil {
			return sent, ids, err
		}
		if err := page.InsertText(ctx, chunk); err != nil {
			return sent, ids, err
		}
		if err := page.PressKey(ctx, browser.KeyEnter); err != nil {
			return sent, ids, err
		}

		sent++
		ids = append(ids, uuid.NewString())
		s.logger.Debug("Chunk dispatched",
			zap.String("channel_id", channelID),
			zap.Int("chunk", i+1),
			zap.Int("of", len(chunks)))
	}
	return sent, ids, nil
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
