package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ApplyEventMessage] = (*ApplyEventCommand)(nil)
	_ gocmd.Commander[SweepMessage]      = (*SweepCommand)(nil)
)
