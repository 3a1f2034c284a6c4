package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// StreamStore persists the single durable record per stream. Upsert must
// write the whole record in one durable operation: the apply path relies on
// the state mutation and its delivery id landing together.
type StreamStore interface {
	Get(ctx context.Context, streamID string) (*StreamState, error)
	Upsert(ctx context.Context, state *StreamState) error
	Delete(ctx context.Context, streamID string) error
	List(ctx context.Context) ([]*StreamState, error)
}

// StorageSizer is an optional StreamStore extension reporting the persisted
// footprint for the storage_bytes gauge.
type StorageSizer interface {
	StorageBytes(ctx context.Context) (int64, error)
}

type AuditStore interface {
	Append(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, filter AuditFilter) (AuditPage, error)
}

// AuditSink is the write side handed to the actor; the async operational sink
// and the stores all satisfy it.
type AuditSink interface {
	Append(ctx context.Context, entry AuditEntry) error
}

type RenderKind string

const (
	RenderKindCard  RenderKind = "card"
	RenderKindNudge RenderKind = "nudge"
)

type RenderInput struct {
	RFC    *RFCRecord
	Locale string
	Viewer string
	Kind   RenderKind
}

// Renderer is an external collaborator producing the user-visible text for a
// stream's status card or an escalation nudge.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) (string, error)
}

// ChannelAPI is the external messaging surface. Calls may fail or time out;
// callers bound every call and treat exhaustion as a degraded outcome.
type ChannelAPI interface {
	Send(ctx context.Context, streamID string, text string) (messageID string, err error)
	Edit(ctx context.Context, messageID string, text string) error
	Pin(ctx context.Context, messageID string) error
	Unpin(ctx context.Context, messageID string) error
}

type PinOutcome struct {
	Degraded  bool
	MessageID string
	Reason    string
}

// PinReconciler keeps the at-most-one pinned message invariant. It is only
// ever called from the owning actor's execution path, so it needs no locking.
type PinReconciler interface {
	Reconcile(ctx context.Context, state *StreamState, locale string) (PinOutcome, error)
}

type NudgeDecision struct {
	Sent       bool
	Remaining  int
	RetryAfter time.Duration
}

// NudgeLimiter gates escalation sends with a per-RFC sliding window stored in
// the stream state, so limiter bookkeeping persists with the transition that
// triggered it.
type NudgeLimiter interface {
	TryNudge(state *StreamState, rfcID string, now time.Time) NudgeDecision
}

// EventApplier serializes event application per stream. The supervisor's
// per-stream mailboxes implement it; the sweeper and ingress depend on it.
type EventApplier interface {
	Apply(ctx context.Context, event Event) (ApplyResult, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
	SetGauge(ctx context.Context, name string, value float64, tags map[string]string)
}

type MetricsSnapshot struct {
	InvocationsTotal  int64
	CleanupTotal      int64
	SLABreachesTotal  int64
	StorageBytesGauge int64
	Counters          map[string]int64
}

type MetricsReader interface {
	Snapshot() MetricsSnapshot
}

// StoreProvider is what a repository factory yields after wiring.
type StoreProvider interface {
	StreamStore() StreamStore
	AuditStore() AuditStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
