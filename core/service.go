package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Service is the public surface: a thin orchestration layer over the event
// applier, the stores, and the metrics recorder. All stream mutation still
// flows through the applier's per-stream serialization.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	streamStore     StreamStore
	auditStore      AuditStore
	auditSink       AuditSink
	renderer        Renderer
	channel         ChannelAPI
	reconciler      PinReconciler
	limiter         NudgeLimiter
	applier         EventApplier
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder := defaultServiceBuilder(cfg)
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&builder)
	}

	// Explicit store options win; otherwise a repository factory builds the
	// durable stores from the persistence client, and memory stores back
	// whatever is still missing.
	if builder.streamStore == nil || builder.auditStore == nil {
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok && factory != nil {
			provider, err := factory.BuildStores(builder.persistenceClient)
			if err != nil {
				return nil, err
			}
			if provider != nil {
				if builder.streamStore == nil {
					builder.streamStore = provider.StreamStore()
				}
				if builder.auditStore == nil {
					builder.auditStore = provider.AuditStore()
				}
			}
		}
	}
	if builder.streamStore == nil {
		builder.streamStore = NewMemoryStreamStore()
	}
	if builder.auditStore == nil {
		builder.auditStore = NewMemoryAuditStore()
	}

	service := &Service{
		config:          builder.runtimeConfig,
		logger:          builder.logger,
		loggerProvider:  builder.loggerProvider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		streamStore:     builder.streamStore,
		auditStore:      builder.auditStore,
		auditSink:       builder.auditSink,
		renderer:        builder.renderer,
		channel:         builder.channel,
		reconciler:      builder.reconciler,
		limiter:         builder.limiter,
		applier:         builder.applier,
	}
	return service, nil
}

// Setup resolves configuration through the configured provider and options
// resolver before building the service, mirroring how hosts load layered
// config (defaults < file < runtime overrides).
func Setup(runtime Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(runtime)
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&builder)
	}

	defaults := DefaultConfig()
	loaded := defaults
	if builder.configProvider != nil {
		cfg, err := builder.configProvider.Load(context.Background(), defaults)
		if err != nil {
			return nil, err
		}
		loaded = cfg
	}
	resolved := loaded
	if builder.optionsResolver != nil {
		cfg, err := builder.optionsResolver.Resolve(defaults, loaded, runtime)
		if err != nil {
			return nil, err
		}
		resolved = cfg
	}
	return NewService(resolved, options...)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) StreamStore() StreamStore {
	if s == nil {
		return nil
	}
	return s.streamStore
}

func (s *Service) AuditStore() AuditStore {
	if s == nil {
		return nil
	}
	return s.auditStore
}

func (s *Service) AuditSink() AuditSink {
	if s == nil {
		return nil
	}
	return s.auditSink
}

func (s *Service) Renderer() Renderer {
	if s == nil {
		return nil
	}
	return s.renderer
}

func (s *Service) ChannelAPI() ChannelAPI {
	if s == nil {
		return nil
	}
	return s.channel
}

func (s *Service) PinReconciler() PinReconciler {
	if s == nil {
		return nil
	}
	return s.reconciler
}

func (s *Service) NudgeLimiter() NudgeLimiter {
	if s == nil {
		return nil
	}
	return s.limiter
}

func (s *Service) MetricsRecorder() MetricsRecorder {
	if s == nil {
		return nil
	}
	return s.metricsRecorder
}

func (s *Service) EventApplier() EventApplier {
	if s == nil {
		return nil
	}
	return s.applier
}

// UseEventApplier installs the applier that Apply routes events through.
// Hosts that assemble their own pipeline call this once during setup.
func (s *Service) UseEventApplier(applier EventApplier) {
	if s == nil {
		return
	}
	s.applier = applier
}

// Close shuts down the applier and audit sink when they expose a Close.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if closer, ok := s.applier.(interface{ Close() }); ok && closer != nil {
		closer.Close()
	}
	if closer, ok := s.auditSink.(interface{ Close() }); ok && closer != nil {
		closer.Close()
	}
}

// Apply routes one inbound event through the per-stream applier and
// translates failures into the service error envelope.
func (s *Service) Apply(ctx context.Context, event Event) (ApplyResult, error) {
	if s == nil {
		return ApplyResult{}, fmt.Errorf("core: service is nil")
	}
	if s.applier == nil {
		return ApplyResult{}, s.mapError(goerrors.New(
			"core: event applier is not configured",
			goerrors.CategoryInternal,
		))
	}
	startedAt := time.Now().UTC()
	result, err := s.applier.Apply(ctx, event)
	fields := map[string]any{
		"stream_id":   event.StreamID,
		"delivery_id": event.DeliveryID,
		"rfc_id":      event.RFCID,
		"outcome":     string(result.Outcome),
	}
	s.recordCounter(ctx, MetricInvocationsTotal, 1, map[string]string{
		"event_type": string(event.Type),
	})
	s.observeOperation(ctx, startedAt, "apply."+string(event.Type), err, fields)
	if err != nil {
		return result, s.mapError(err)
	}
	return result, nil
}

// GetState serves the read-only observability view. It reads the persisted
// record directly; only the owning actor ever writes it.
func (s *Service) GetState(ctx context.Context, streamID string) (StreamSnapshot, error) {
	if s == nil || s.streamStore == nil {
		return StreamSnapshot{}, fmt.Errorf("core: stream store is not configured")
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return StreamSnapshot{}, s.mapError(goerrors.New(
			"core: stream id is required",
			goerrors.CategoryBadInput,
		))
	}
	state, err := s.streamStore.Get(ctx, streamID)
	if err != nil {
		return StreamSnapshot{}, s.mapError(err)
	}
	return StreamSnapshot{
		Stream: state,
		Active: state.ActiveRFC(),
	}, nil
}

func (s *Service) GetAudit(ctx context.Context, filter AuditFilter) (AuditPage, error) {
	if s == nil || s.auditStore == nil {
		return AuditPage{}, fmt.Errorf("core: audit store is not configured")
	}
	page, err := s.auditStore.List(ctx, filter)
	if err != nil {
		return AuditPage{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) GetMetrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{Counters: map[string]int64{}}
	}
	if reader, ok := s.metricsRecorder.(MetricsReader); ok {
		return reader.Snapshot()
	}
	return MetricsSnapshot{Counters: map[string]int64{}}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	mapper := s.errorMapper
	if mapper == nil {
		mapper = defaultErrorMapper
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
