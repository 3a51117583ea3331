// Package ratelimit implements the one pacing policy every UI-driving
// action consults: minimum spacing between actions, exponential backoff with
// jitter on throttle signals, and a hard retry ceiling.
package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/config"
)

// Policy is shared by the scraper, search, and sender so retry behavior is
// identical everywhere. It is safe for concurrent use, though the session
// layer serializes DOM work anyway.
type Policy struct {
	limiter    *rate.Limiter
	maxRetries int
	base       time.Duration
	cap        time.Duration
	logger     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(cfg config.RateLimitConfig, logger *zap.Logger) *Policy {
	spacing := cfg.MinActionSpacing
	if spacing <= 0 {
		spacing = time.Millisecond
	}
	return &Policy{
		limiter:    rate.NewLimiter(rate.Every(spacing), 1),
		maxRetries: cfg.MaxRetries,
		base:       cfg.BackoffBase,
		cap:        cfg.BackoffCap,
		logger:     logger.Named("ratelimit"),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs fn under the policy. Transient failures (navigation timeouts,
// throttle signals) are retried with backoff up to the ceiling; all other
// errors pass through untouched on the first occurrence.
func (p *Policy) Do(ctx context.Context, action string, fn func(context.Context) error) error {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		throttled := isThrottle(err)
		timedOut := isNavTimeout(err)
		if !throttled && !timedOut {
			return err
		}

		if attempt >= p.maxRetries {
			elapsed := time.Since(start)
			if throttled {
				return &schemas.RateLimitedError{Action: action, Elapsed: elapsed, Retries: attempt}
			}
			return &schemas.NavigationTimeoutError{Action: action, Elapsed: elapsed, Retries: attempt}
		}

		delay := p.backoff(attempt)
		p.logger.Warn("Transient failure, backing off",
			zap.String("action", action),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Bool("throttled", throttled),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoff computes base*2^attempt with full jitter, capped.
func (p *Policy) backoff(attempt int) time.Duration {
	d := p.base << uint(attempt)
	if d > p.cap || d <= 0 {
		d = p.cap
	}
	p.mu.Lock()
	jittered := time.Duration(p.rng.Int63n(int64(d))) + d/2
	p.mu.Unlock()
	if jittered > p.cap {
		jittered = p.cap
	}
	return jittered
}

func isThrottle(err error) bool {
	var sig *schemas.ThrottleSignal
	return errors.As(err, &sig)
}

func isNavTimeout(err error) bool {
	var nav *schemas.NavigationTimeoutError
	return errors.As(err, &nav)
}
