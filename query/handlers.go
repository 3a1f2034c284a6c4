package query

import (
	"context"

	"github.com/goliatone/go-review/core"
)

type StateReader interface {
	GetState(ctx context.Context, streamID string) (core.StreamSnapshot, error)
}

type AuditReader interface {
	GetAudit(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error)
}

type MetricsReader interface {
	GetMetrics() core.MetricsSnapshot
}

type GetStateQuery struct {
	reader StateReader
}

func NewGetStateQuery(reader StateReader) *GetStateQuery {
	return &GetStateQuery{reader: reader}
}

func (q *GetStateQuery) Query(ctx context.Context, msg GetStateMessage) (core.StreamSnapshot, error) {
	if q == nil || q.reader == nil {
		return core.StreamSnapshot{}, queryDependencyError("query: state reader is required")
	}
	return q.reader.GetState(ctx, msg.StreamID)
}

type GetAuditQuery struct {
	reader AuditReader
}

func NewGetAuditQuery(reader AuditReader) *GetAuditQuery {
	return &GetAuditQuery{reader: reader}
}

func (q *GetAuditQuery) Query(ctx context.Context, msg GetAuditMessage) (core.AuditPage, error) {
	if q == nil || q.reader == nil {
		return core.AuditPage{}, queryDependencyError("query: audit reader is required")
	}
	return q.reader.GetAudit(ctx, msg.Filter)
}

type GetMetricsQuery struct {
	reader MetricsReader
}

func NewGetMetricsQuery(reader MetricsReader) *GetMetricsQuery {
	return &GetMetricsQuery{reader: reader}
}

func (q *GetMetricsQuery) Query(_ context.Context, _ GetMetricsMessage) (core.MetricsSnapshot, error) {
	if q == nil || q.reader == nil {
		return core.MetricsSnapshot{}, queryDependencyError("query: metrics reader is required")
	}
	return q.reader.GetMetrics(), nil
}
