package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type AuditRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type AuditRetentionPruner interface {
	Prune(ctx context.Context, policy AuditRetentionPolicy) (deleted int, err error)
}

// OperationalAuditSink buffers audit appends off the actor's apply path and
// drains them to the primary store. Entries already carry their per-stream
// sequence, so buffered delivery never reorders the log.
type OperationalAuditSink struct {
	primary  AuditStore
	fallback AuditSink
	policy   AuditRetentionPolicy
	pruner   AuditRetentionPruner

	queue chan AuditEntry
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewOperationalAuditSink(
	primary AuditStore,
	fallback AuditSink,
	policy AuditRetentionPolicy,
	bufferSize int,
) (*OperationalAuditSink, error) {
	if primary == nil {
		return nil, fmt.Errorf("core: primary audit store is required")
	}
	if bufferSize <= 0 {
		bufferSize = 128
	}

	sink := &OperationalAuditSink{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		queue:    make(chan AuditEntry, bufferSize),
		now: func() time.Time {
			return time.Now().UTC()
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if pruner, ok := primary.(AuditRetentionPruner); ok {
		sink.pruner = pruner
	}

	go sink.run()
	return sink, nil
}

func (s *OperationalAuditSink) Append(ctx context.Context, entry AuditEntry) error {
	if s == nil || s.primary == nil {
		return fmt.Errorf("core: operational audit sink is not configured")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- entry:
		return nil
	default:
		if s.fallback != nil {
			return s.fallback.Append(ctx, entry)
		}
		return s.primary.Append(ctx, entry)
	}
}

func (s *OperationalAuditSink) List(ctx context.Context, filter AuditFilter) (AuditPage, error) {
	if s == nil || s.primary == nil {
		return AuditPage{}, fmt.Errorf("core: operational audit sink is not configured")
	}
	return s.primary.List(ctx, filter)
}

func (s *OperationalAuditSink) EnforceRetention(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: operational audit sink is not configured")
	}
	pruner := s.pruner
	if pruner == nil {
		if p, ok := s.primary.(AuditRetentionPruner); ok {
			pruner = p
		}
	}
	if pruner == nil {
		return 0, nil
	}
	return pruner.Prune(ctx, s.policy)
}

func (s *OperationalAuditSink) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *OperationalAuditSink) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case entry := <-s.queue:
			s.flush(entry)
		}
	}
}

// drain empties anything still buffered at shutdown; every accepted Append
// must reach a sink.
func (s *OperationalAuditSink) drain() {
	for {
		select {
		case entry := <-s.queue:
			s.flush(entry)
		default:
			return
		}
	}
}

func (s *OperationalAuditSink) flush(entry AuditEntry) {
	if err := s.primary.Append(context.Background(), entry); err != nil && s.fallback != nil {
		_ = s.fallback.Append(context.Background(), entry)
	}
}

var (
	_ AuditSink  = (*OperationalAuditSink)(nil)
	_ AuditStore = (*OperationalAuditSink)(nil)
)
