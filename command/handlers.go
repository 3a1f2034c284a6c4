package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-review/core"
)

type MutatingService interface {
	Apply(ctx context.Context, event core.Event) (core.ApplyResult, error)
}

type SweepService interface {
	Sweep(ctx context.Context) (core.SweepStats, error)
}

type ApplyEventCommand struct {
	service MutatingService
}

func NewApplyEventCommand(service MutatingService) *ApplyEventCommand {
	return &ApplyEventCommand{service: service}
}

func (c *ApplyEventCommand) Execute(ctx context.Context, msg ApplyEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: apply service is required")
	}
	out, err := c.service.Apply(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SweepCommand struct {
	service SweepService
}

func NewSweepCommand(service SweepService) *SweepCommand {
	return &SweepCommand{service: service}
}

func (c *SweepCommand) Execute(ctx context.Context, msg SweepMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sweep service is required")
	}
	out, err := c.service.Sweep(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
