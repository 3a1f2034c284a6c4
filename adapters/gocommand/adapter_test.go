package gocommand

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-review/command"
	"github.com/goliatone/go-review/core"
)

type okMessage struct{}

func (okMessage) Type() string { return "review.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "review.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type nudgeMessage struct {
	StreamID string
}

func (nudgeMessage) Type() string { return "review.command.nudge.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "review.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(gocmd.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := gocmd.CommandFunc[nudgeMessage](func(context.Context, nudgeMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, gocmd.CommandMeta, *gocmd.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), nudgeMessage{StreamID: "stream-1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

type recordingApplier struct {
	last core.Event
}

func (r *recordingApplier) Apply(_ context.Context, event core.Event) (core.ApplyResult, error) {
	r.last = event
	return core.ApplyResult{
		Outcome: core.ApplyOutcomeAccepted,
		RFCID:   event.RFCID,
		Status:  core.RFCStatusReadyForReview,
	}, nil
}

func TestApplyEventCommandThroughDispatcher(t *testing.T) {
	adapter := NewRegistryAdapter(gocmd.NewRegistry())
	applier := &recordingApplier{}

	subscription, err := RegisterAndSubscribe(adapter, command.NewApplyEventCommand(applier))
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer subscription.Unsubscribe()

	collector := gocmd.NewResult[core.ApplyResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	msg := command.ApplyEventMessage{Event: core.Event{
		StreamID:        "stream-1",
		DeliveryID:      "delivery-1",
		Type:            core.EventTypeNew,
		RFCID:           "rfc-1",
		ApprovalsNeeded: 2,
		ReceivedAt:      time.Now().UTC(),
	}}
	if err := Dispatch(ctx, msg); err != nil {
		t.Fatalf("dispatch apply event: %v", err)
	}

	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected apply result in collector")
	}
	if result.Outcome != core.ApplyOutcomeAccepted || result.RFCID != "rfc-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if applier.last.DeliveryID != "delivery-1" {
		t.Fatalf("expected event to reach the applier, got %+v", applier.last)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(gocmd.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := gocmd.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("review.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}
