package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	persistenceClient any
	repositoryFactory any
	streamStore       StreamStore
	auditStore        AuditStore
	auditSink         AuditSink
	renderer          Renderer
	channel           ChannelAPI
	reconciler        PinReconciler
	limiter           NudgeLimiter
	applier           EventApplier
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithStreamStore(store StreamStore) Option {
	return func(b *serviceBuilder) {
		b.streamStore = store
	}
}

func WithAuditStore(store AuditStore) Option {
	return func(b *serviceBuilder) {
		b.auditStore = store
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(b *serviceBuilder) {
		b.auditSink = sink
	}
}

func WithRenderer(renderer Renderer) Option {
	return func(b *serviceBuilder) {
		b.renderer = renderer
	}
}

func WithChannelAPI(channel ChannelAPI) Option {
	return func(b *serviceBuilder) {
		b.channel = channel
	}
}

func WithPinReconciler(reconciler PinReconciler) Option {
	return func(b *serviceBuilder) {
		b.reconciler = reconciler
	}
}

func WithNudgeLimiter(limiter NudgeLimiter) Option {
	return func(b *serviceBuilder) {
		b.limiter = limiter
	}
}

func WithEventApplier(applier EventApplier) Option {
	return func(b *serviceBuilder) {
		b.applier = applier
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("review", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return reviewErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	nudge := map[string]any{}
	if includeZero || cfg.Nudge.Limit > 0 {
		nudge["limit"] = cfg.Nudge.Limit
	}
	if includeZero || cfg.Nudge.Window > 0 {
		nudge["window"] = cfg.Nudge.Window
	}
	if len(nudge) > 0 {
		layer["nudge"] = nudge
	}

	retention := map[string]any{}
	if includeZero || cfg.Retention.Period > 0 {
		retention["period"] = cfg.Retention.Period
	}
	if includeZero || cfg.Retention.SweepInterval > 0 {
		retention["sweep_interval"] = cfg.Retention.SweepInterval
	}
	if includeZero || cfg.Retention.AuditTTL > 0 {
		retention["audit_ttl"] = cfg.Retention.AuditTTL
	}
	if includeZero || cfg.Retention.AuditRowCap > 0 {
		retention["audit_row_cap"] = cfg.Retention.AuditRowCap
	}
	if len(retention) > 0 {
		layer["retention"] = retention
	}

	reconciler := map[string]any{}
	if includeZero || cfg.Reconciler.MaxAttempts > 0 {
		reconciler["max_attempts"] = cfg.Reconciler.MaxAttempts
	}
	if includeZero || cfg.Reconciler.CallTimeout > 0 {
		reconciler["call_timeout"] = cfg.Reconciler.CallTimeout
	}
	if len(reconciler) > 0 {
		layer["reconciler"] = reconciler
	}

	actor := map[string]any{}
	if includeZero || cfg.Actor.MailboxDepth > 0 {
		actor["mailbox_depth"] = cfg.Actor.MailboxDepth
	}
	if includeZero || cfg.Actor.DedupCapacity > 0 {
		actor["dedup_capacity"] = cfg.Actor.DedupCapacity
	}
	if len(actor) > 0 {
		layer["actor"] = actor
	}

	return layer
}
