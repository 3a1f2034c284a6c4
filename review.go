package review

import (
	"github.com/goliatone/go-review/actor"
	"github.com/goliatone/go-review/core"
	"github.com/goliatone/go-review/pin"
	"github.com/goliatone/go-review/ratelimit"
)

type Config = core.Config

type NudgeConfig = core.NudgeConfig
type RetentionConfig = core.RetentionConfig
type ReconcilerConfig = core.ReconcilerConfig
type ActorConfig = core.ActorConfig

type Option = core.Option

type Service = core.Service

type StreamStore = core.StreamStore
type AuditStore = core.AuditStore
type AuditSink = core.AuditSink
type Renderer = core.Renderer
type ChannelAPI = core.ChannelAPI
type PinReconciler = core.PinReconciler
type NudgeLimiter = core.NudgeLimiter
type EventApplier = core.EventApplier
type MetricsRecorder = core.MetricsRecorder

type Event = core.Event
type EventType = core.EventType
type ApplyResult = core.ApplyResult
type ApplyOutcome = core.ApplyOutcome
type RejectReason = core.RejectReason
type RFCRecord = core.RFCRecord
type RFCStatus = core.RFCStatus
type StreamState = core.StreamState
type StreamSnapshot = core.StreamSnapshot
type SweepStats = core.SweepStats

type AuditEntry = core.AuditEntry
type AuditAction = core.AuditAction
type AuditFilter = core.AuditFilter
type AuditPage = core.AuditPage
type MetricsSnapshot = core.MetricsSnapshot

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithStreamStore       = core.WithStreamStore
	WithAuditStore        = core.WithAuditStore
	WithAuditSink         = core.WithAuditSink
	WithRenderer          = core.WithRenderer
	WithChannelAPI        = core.WithChannelAPI
	WithPinReconciler     = core.WithPinReconciler
	WithNudgeLimiter      = core.WithNudgeLimiter
	WithEventApplier      = core.WithEventApplier
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	service, err := core.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	wireDefaultRuntime(service)
	return service, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	service, err := core.Setup(cfg, opts...)
	if err != nil {
		return nil, err
	}
	wireDefaultRuntime(service)
	return service, nil
}

// wireDefaultRuntime assembles the per-stream actor pipeline from the
// service's collaborators when the host did not install its own applier.
// Hosts wiring WithEventApplier keep full control and skip all of this.
func wireDefaultRuntime(service *Service) {
	if service == nil || service.EventApplier() != nil {
		return
	}
	cfg := service.Config()

	reconciler := service.PinReconciler()
	if reconciler == nil && service.ChannelAPI() != nil && service.Renderer() != nil {
		r := pin.NewReconciler(service.ChannelAPI(), service.Renderer())
		r.Logger = service.Logger()
		if cfg.Reconciler.MaxAttempts > 0 {
			r.MaxAttempts = cfg.Reconciler.MaxAttempts
		}
		if cfg.Reconciler.CallTimeout > 0 {
			r.CallTimeout = cfg.Reconciler.CallTimeout
		}
		reconciler = r
	}

	limiter := service.NudgeLimiter()
	if limiter == nil {
		limiter = ratelimit.NewWindowLimiter(cfg.Nudge.Limit, cfg.Nudge.Window)
	}

	sink := service.AuditSink()
	if sink == nil {
		sink = service.AuditStore()
	}

	applier := &actor.Applier{
		Store:      service.StreamStore(),
		Audit:      sink,
		Reconciler: reconciler,
		Limiter:    limiter,
		Renderer:   service.Renderer(),
		Channel:    service.ChannelAPI(),
		Metrics:    service.MetricsRecorder(),
		Logger:     service.Logger(),
		Retention:  cfg.Retention.Period,
		DedupBound: cfg.Actor.DedupCapacity,
	}
	service.UseEventApplier(actor.NewSupervisor(applier,
		actor.WithMailboxDepth(cfg.Actor.MailboxDepth),
		actor.WithSupervisorLogger(service.Logger()),
	))
}
