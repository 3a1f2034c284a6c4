package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-review/core"
)

const (
	TypeGetState   = "review.query.state.get"
	TypeGetAudit   = "review.query.audit.list"
	TypeGetMetrics = "review.query.metrics.get"
)

type GetStateMessage struct {
	StreamID string
}

func (GetStateMessage) Type() string { return TypeGetState }

func (m GetStateMessage) Validate() error {
	if strings.TrimSpace(m.StreamID) == "" {
		return fmt.Errorf("query: stream id is required")
	}
	return nil
}

type GetAuditMessage struct {
	Filter core.AuditFilter
}

func (GetAuditMessage) Type() string { return TypeGetAudit }

func (m GetAuditMessage) Validate() error {
	if m.Filter.Page < 0 {
		return fmt.Errorf("query: page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return fmt.Errorf("query: per_page must be >= 0")
	}
	return nil
}

type GetMetricsMessage struct{}

func (GetMetricsMessage) Type() string { return TypeGetMetrics }

func (GetMetricsMessage) Validate() error { return nil }
