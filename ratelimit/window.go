package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-review/core"
)

type RateLimitedError struct {
	StreamID   string
	RFCID      string
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf(
		"ratelimit: stream %q rfc %q nudge rate limited for %s",
		strings.TrimSpace(e.StreamID),
		strings.TrimSpace(e.RFCID),
		e.RetryAfter,
	)
}

func (e RateLimitedError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"stream_id": strings.TrimSpace(e.StreamID),
		"rfc_id":    strings.TrimSpace(e.RFCID),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ReviewErrorRateLimited).
		WithMetadata(metadata)
}

// WindowLimiter is the sliding-window nudge throttle. The per-RFC send
// timestamps live inside the stream state, so limiter bookkeeping is
// persisted atomically with whatever transition triggered the nudge.
type WindowLimiter struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if limit <= 0 {
		limit = 3
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &WindowLimiter{
		Limit:  limit,
		Window: window,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// TryNudge prunes expired timestamps, then either records the send and
// allows it, or reports how long until the oldest entry leaves the window.
// It mutates state in place; the caller owns persistence.
func (l *WindowLimiter) TryNudge(state *core.StreamState, rfcID string, now time.Time) core.NudgeDecision {
	if l == nil || state == nil {
		return core.NudgeDecision{}
	}
	rfcID = strings.TrimSpace(rfcID)
	if rfcID == "" {
		return core.NudgeDecision{}
	}
	if state.NudgeWindows == nil {
		state.NudgeWindows = map[string][]time.Time{}
	}
	now = now.UTC()
	cutoff := now.Add(-l.window())

	window := state.NudgeWindows[rfcID]
	pruned := window[:0]
	for _, sent := range window {
		if sent.After(cutoff) {
			pruned = append(pruned, sent)
		}
	}

	limit := l.limit()
	if len(pruned) >= limit {
		state.NudgeWindows[rfcID] = append([]time.Time(nil), pruned...)
		return core.NudgeDecision{
			Sent:       false,
			Remaining:  0,
			RetryAfter: pruned[0].Add(l.window()).Sub(now),
		}
	}

	pruned = append(pruned, now)
	state.NudgeWindows[rfcID] = append([]time.Time(nil), pruned...)
	return core.NudgeDecision{
		Sent:      true,
		Remaining: limit - len(pruned),
	}
}

func (l *WindowLimiter) limit() int {
	if l != nil && l.Limit > 0 {
		return l.Limit
	}
	return 3
}

func (l *WindowLimiter) window() time.Duration {
	if l != nil && l.Window > 0 {
		return l.Window
	}
	return 15 * time.Minute
}

var _ core.NudgeLimiter = (*WindowLimiter)(nil)
