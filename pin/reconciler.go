package pin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-review/core"
)

const (
	defaultMaxAttempts    = 3
	defaultCallTimeout    = 10 * time.Second
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// Reconciler converges a stream's channel toward at most one pinned status
// card. It only runs inside the owning actor's execution path, so it mutates
// the passed state without locking and leaves persistence to the caller.
type Reconciler struct {
	Channel     core.ChannelAPI
	Renderer    core.Renderer
	Logger      core.Logger
	MaxAttempts int
	CallTimeout time.Duration
}

func NewReconciler(channel core.ChannelAPI, renderer core.Renderer) *Reconciler {
	return &Reconciler{
		Channel:     channel,
		Renderer:    renderer,
		MaxAttempts: defaultMaxAttempts,
		CallTimeout: defaultCallTimeout,
	}
}

// Reconcile edits the existing pinned card in place when one exists. When the
// edit cannot land it falls back to send then pin then unpin of the stale
// message, so a reader never sees two pinned cards for the same stream.
// Retry exhaustion is reported as a degraded outcome, never as an error: the
// state change that triggered reconciliation has already been accepted.
func (r *Reconciler) Reconcile(ctx context.Context, state *core.StreamState, locale string) (core.PinOutcome, error) {
	if r == nil {
		return core.PinOutcome{}, fmt.Errorf("pin: reconciler is nil")
	}
	if state == nil {
		return core.PinOutcome{}, fmt.Errorf("pin: stream state is required")
	}
	if r.Channel == nil || r.Renderer == nil {
		return core.PinOutcome{}, fmt.Errorf("pin: channel api and renderer are required")
	}

	active := state.ActiveRFC()
	if active == nil {
		return r.clearPin(ctx, state)
	}

	text, err := r.Renderer.Render(ctx, core.RenderInput{
		RFC:    active,
		Locale: strings.TrimSpace(locale),
		Kind:   core.RenderKindCard,
	})
	if err != nil {
		r.logError("pin: render failed", "stream_id", state.StreamID, "error", err)
		return core.PinOutcome{Degraded: true, Reason: fmt.Sprintf("render: %v", err)}, nil
	}

	if existing := strings.TrimSpace(state.PinnedMessageID); existing != "" {
		editErr := r.call(ctx, func(callCtx context.Context) error {
			return r.Channel.Edit(callCtx, existing, text)
		})
		if editErr == nil {
			return core.PinOutcome{MessageID: existing}, nil
		}
		r.logError("pin: edit failed, replacing message",
			"stream_id", state.StreamID, "message_id", existing, "error", editErr)
		return r.replacePin(ctx, state, existing, text)
	}

	return r.replacePin(ctx, state, "", text)
}

// replacePin sends a fresh card and pins it before unpinning the stale one.
// The transient two-pin window closes before Reconcile returns; a failed
// unpin degrades the stream rather than leaving the new card unpinned.
func (r *Reconciler) replacePin(ctx context.Context, state *core.StreamState, stale, text string) (core.PinOutcome, error) {
	var messageID string
	sendErr := r.call(ctx, func(callCtx context.Context) error {
		id, err := r.Channel.Send(callCtx, state.StreamID, text)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if sendErr != nil {
		return core.PinOutcome{Degraded: true, Reason: fmt.Sprintf("send: %v", sendErr)}, nil
	}

	pinErr := r.call(ctx, func(callCtx context.Context) error {
		return r.Channel.Pin(callCtx, messageID)
	})
	if pinErr != nil {
		return core.PinOutcome{Degraded: true, Reason: fmt.Sprintf("pin: %v", pinErr)}, nil
	}

	if stale != "" {
		unpinErr := r.call(ctx, func(callCtx context.Context) error {
			return r.Channel.Unpin(callCtx, stale)
		})
		if unpinErr != nil {
			state.PinnedMessageID = messageID
			return core.PinOutcome{
				Degraded:  true,
				MessageID: messageID,
				Reason:    fmt.Sprintf("unpin stale message: %v", unpinErr),
			}, nil
		}
	}

	state.PinnedMessageID = messageID
	return core.PinOutcome{MessageID: messageID}, nil
}

func (r *Reconciler) clearPin(ctx context.Context, state *core.StreamState) (core.PinOutcome, error) {
	existing := strings.TrimSpace(state.PinnedMessageID)
	if existing == "" {
		return core.PinOutcome{}, nil
	}
	unpinErr := r.call(ctx, func(callCtx context.Context) error {
		return r.Channel.Unpin(callCtx, existing)
	})
	if unpinErr != nil {
		return core.PinOutcome{
			Degraded:  true,
			MessageID: existing,
			Reason:    fmt.Sprintf("unpin: %v", unpinErr),
		}, nil
	}
	state.PinnedMessageID = ""
	return core.PinOutcome{}, nil
}

// call runs one channel operation with a per-call deadline and bounded
// retries with doubling backoff.
func (r *Reconciler) call(ctx context.Context, fn func(context.Context) error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	timeout := r.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	var lastErr error
	delay := defaultInitialBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return waitErr
		}
		delay *= 2
		if delay > defaultMaxBackoff {
			delay = defaultMaxBackoff
		}
	}
	return lastErr
}

func (r *Reconciler) logError(msg string, args ...any) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Error(msg, args...)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ core.PinReconciler = (*Reconciler)(nil)
