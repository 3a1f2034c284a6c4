package command

import (
	"github.com/goliatone/go-review/core"
)

const (
	TypeApplyEvent = "review.command.event.apply"
	TypeSweep      = "review.command.sweep"
)

type ApplyEventMessage struct {
	Event core.Event
}

func (ApplyEventMessage) Type() string { return TypeApplyEvent }

func (m ApplyEventMessage) Validate() error {
	if err := m.Event.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid event")
	}
	return nil
}

type SweepMessage struct{}

func (SweepMessage) Type() string { return TypeSweep }

func (SweepMessage) Validate() error { return nil }
