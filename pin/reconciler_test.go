package pin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-review/core"
)

type recordedCall struct {
	op        string
	messageID string
}

type scriptedChannel struct {
	calls     []recordedCall
	nextID    int
	editErrs  []error
	sendErrs  []error
	pinErrs   []error
	unpinErrs []error
}

func (c *scriptedChannel) Send(_ context.Context, streamID, _ string) (string, error) {
	c.calls = append(c.calls, recordedCall{op: "send", messageID: streamID})
	if err := popErr(&c.sendErrs); err != nil {
		return "", err
	}
	c.nextID++
	return fmt.Sprintf("msg-%d", c.nextID), nil
}

func (c *scriptedChannel) Edit(_ context.Context, messageID, _ string) error {
	c.calls = append(c.calls, recordedCall{op: "edit", messageID: messageID})
	return popErr(&c.editErrs)
}

func (c *scriptedChannel) Pin(_ context.Context, messageID string) error {
	c.calls = append(c.calls, recordedCall{op: "pin", messageID: messageID})
	return popErr(&c.pinErrs)
}

func (c *scriptedChannel) Unpin(_ context.Context, messageID string) error {
	c.calls = append(c.calls, recordedCall{op: "unpin", messageID: messageID})
	return popErr(&c.unpinErrs)
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type staticRenderer struct {
	text string
	err  error
}

func (r staticRenderer) Render(_ context.Context, _ core.RenderInput) (string, error) {
	return r.text, r.err
}

func newTestReconciler(channel *scriptedChannel, renderer core.Renderer) *Reconciler {
	r := NewReconciler(channel, renderer)
	r.MaxAttempts = 1
	r.CallTimeout = time.Second
	return r
}

func stateWithActiveRFC(pinned string) *core.StreamState {
	state := core.NewStreamState("stream-1")
	state.ActiveRFCID = "rfc-1"
	state.PinnedMessageID = pinned
	state.RFCs["rfc-1"] = &core.RFCRecord{
		ID:       "rfc-1",
		StreamID: "stream-1",
		Status:   core.RFCStatusUnderReview,
	}
	return state
}

func TestReconcileSendsAndPinsFirstCard(t *testing.T) {
	channel := &scriptedChannel{}
	reconciler := newTestReconciler(channel, staticRenderer{text: "card"})
	state := stateWithActiveRFC("")

	outcome, err := reconciler.Reconcile(context.Background(), state, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Degraded {
		t.Fatalf("unexpected degraded outcome: %s", outcome.Reason)
	}
	if state.PinnedMessageID != "msg-1" {
		t.Fatalf("expected pinned message msg-1, got %q", state.PinnedMessageID)
	}
	wantOps := []string{"send", "pin"}
	assertOps(t, channel, wantOps)
}

func TestReconcileEditsExistingPinInPlace(t *testing.T) {
	channel := &scriptedChannel{}
	reconciler := newTestReconciler(channel, staticRenderer{text: "card"})
	state := stateWithActiveRFC("msg-7")

	outcome, err := reconciler.Reconcile(context.Background(), state, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.MessageID != "msg-7" {
		t.Fatalf("expected existing message id, got %q", outcome.MessageID)
	}
	if state.PinnedMessageID != "msg-7" {
		t.Fatalf("pinned message changed to %q", state.PinnedMessageID)
	}
	assertOps(t, channel, []string{"edit"})
}

func TestReconcileFallsBackToReplaceWhenEditFails(t *testing.T) {
	channel := &scriptedChannel{editErrs: []error{errors.New("message deleted")}}
	reconciler := newTestReconciler(channel, staticRenderer{text: "card"})
	state := stateWithActiveRFC("msg-7")

	outcome, err := reconciler.Reconcile(context.Background(), state, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Degraded {
		t.Fatalf("unexpected degraded outcome: %s", outcome.Reason)
	}
	if state.PinnedMessageID != "msg-1" {
		t.Fatalf("expected replacement pin msg-1, got %q", state.PinnedMessageID)
	}
	assertOps(t, channel, []string{"edit", "send", "pin", "unpin"})
	if last := channel.calls[len(channel.calls)-1]; last.messageID != "msg-7" {
		t.Fatalf("expected stale message msg-7 unpinned, got %q", last.messageID)
	}
}

func TestReconcileDegradesWhenSendExhausted(t *testing.T) {
	channel := &scriptedChannel{
		editErrs: []error{errors.New("edit down")},
		sendErrs: []error{errors.New("send down")},
	}
	reconciler := newTestReconciler(channel, staticRenderer{text: "card"})
	state := stateWithActiveRFC("msg-7")

	outcome, err := reconciler.Reconcile(context.Background(), state, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Degraded {
		t.Fatal("expected degraded outcome")
	}
	if state.PinnedMessageID != "msg-7" {
		t.Fatalf("pinned message should be unchanged, got %q", state.PinnedMessageID)
	}
}

func TestReconcileRetriesBeforeDegrading(t *testing.T) {
	channel := &scriptedChannel{
		editErrs: []error{errors.New("transient"), nil},
	}
	reconciler := newTestReconciler(channel, staticRenderer{text: "card"})
	reconciler.MaxAttempts = 2
	state := stateWithActiveRFC("msg-7")

	outcome, err := reconciler.Reconcile(context.Background(), state, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Degraded {
		t.Fatalf("expected retry to recover, got degraded: %s", outcome.Reason)
	}
	assertOps(t, channel, []string{"edit", "edit"})
}

func TestReconcileUnpinsWhenNoActiveRFC(t *testing.T) {
	channel := &scriptedChannel{}
	reconciler := newTestReconciler(channel, staticRenderer{text: "card"})
	state := core.NewStreamState("stream-1")
	state.PinnedMessageID = "msg-3"

	outcome, err := reconciler.Reconcile(context.Background(), state, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Degraded {
		t.Fatalf("unexpected degraded outcome: %s", outcome.Reason)
	}
	if state.PinnedMessageID != "" {
		t.Fatalf("expected cleared pin, got %q", state.PinnedMessageID)
	}
	assertOps(t, channel, []string{"unpin"})
}

func TestReconcileNoopWithoutActiveRFCOrPin(t *testing.T) {
	channel := &scriptedChannel{}
	reconciler := newTestReconciler(channel, staticRenderer{text: "card"})

	outcome, err := reconciler.Reconcile(context.Background(), core.NewStreamState("stream-1"), "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Degraded || outcome.MessageID != "" {
		t.Fatalf("expected empty outcome, got %+v", outcome)
	}
	if len(channel.calls) != 0 {
		t.Fatalf("expected no channel calls, got %d", len(channel.calls))
	}
}

func TestReconcileRenderFailureDegrades(t *testing.T) {
	channel := &scriptedChannel{}
	reconciler := newTestReconciler(channel, staticRenderer{err: errors.New("template missing")})
	state := stateWithActiveRFC("msg-1")

	outcome, err := reconciler.Reconcile(context.Background(), state, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Degraded {
		t.Fatal("expected degraded outcome")
	}
	if len(channel.calls) != 0 {
		t.Fatalf("expected no channel calls after render failure, got %d", len(channel.calls))
	}
}

func assertOps(t *testing.T, channel *scriptedChannel, want []string) {
	t.Helper()
	if len(channel.calls) != len(want) {
		t.Fatalf("expected ops %v, got %+v", want, channel.calls)
	}
	for i, op := range want {
		if channel.calls[i].op != op {
			t.Fatalf("call %d: expected %q, got %q", i, op, channel.calls[i].op)
		}
	}
}
