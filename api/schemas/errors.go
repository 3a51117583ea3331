package schemas

import (
	"fmt"
	"time"
)

// The error taxonomy mirrors how failures propagate out of the core:
// transient classes (NavigationTimeoutError, RateLimitedError) are retried
// locally with bounded backoff before surfacing; everything else propagates
// immediately as a typed failure.

// AuthenticationError means credentials were rejected or the second-factor
// challenge never completed. Fatal to the session; never auto-retried.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NavigationTimeoutError means a UI region never became ready within the
// bounded wait for an action.
type NavigationTimeoutError struct {
	Action  string
	Elapsed time.Duration
	Retries int
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation timed out during %q after %s (%d retries)", e.Action, e.Elapsed, e.Retries)
}

// RateLimitedError means throttling was detected and the backoff retry
// ceiling was exhausted.
type RateLimitedError struct {
	Action  string
	Elapsed time.Duration
	Retries int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited during %q after %s (%d retries)", e.Action, e.Elapsed, e.Retries)
}

// ElementNotFoundError means the UI structure we depend on was not
// recognized. Retrying will not help; it signals the platform changed its
// layout contract.
type ElementNotFoundError struct {
	Selector string
	Action   string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found during %q", e.Selector, e.Action)
}

// OutOfRangeError means the caller asked for an index or count beyond what
// is available or allowed.
type OutOfRangeError struct {
	What      string
	Requested int
	Limit     int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s out of range: requested %d, limit %d", e.What, e.Requested, e.Limit)
}

// SendFailureError reports the first rejected chunk of an outbound send.
// Sent counts the chunks that succeeded before the failure so the caller
// can decide on resume.
type SendFailureError struct {
	Sent  int
	Total int
	Cause error
}

func (e *SendFailureError) Error() string {
	return fmt.Sprintf("send failed after %d/%d chunks: %v", e.Sent, e.Total, e.Cause)
}

func (e *SendFailureError) Unwrap() error { return e.Cause }

// ThrottleSignal marks an observation that the platform is pushing back
// (warning banner, unexpectedly empty DOM, 429-class navigation failure).
// The rate limiter treats any error wrapping a ThrottleSignal as retryable.
type ThrottleSignal struct {
	Source string
}

func (e *ThrottleSignal) Error() string {
	return fmt.Sprintf("throttling detected (%s)", e.Source)
}
