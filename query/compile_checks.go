package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-review/core"
)

var (
	_ gocmd.Querier[GetStateMessage, core.StreamSnapshot]    = (*GetStateQuery)(nil)
	_ gocmd.Querier[GetAuditMessage, core.AuditPage]         = (*GetAuditQuery)(nil)
	_ gocmd.Querier[GetMetricsMessage, core.MetricsSnapshot] = (*GetMetricsQuery)(nil)
)
