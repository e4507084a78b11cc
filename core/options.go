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

type runtimeBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          Registry
	eventBus          EventBus
	dedupLedger       DedupLedger
	installationStore InstallationStore
	deliveryLedger    DeliveryLedgerStore
	authStateStore    AuthStateStore
	identityResolver  IdentityResolver
	actionInvoker     ActionInvoker
	jobEnqueuer       JobEnqueuer
	credentialCodec   CredentialCodec
	lifecycleHooks    []LifecycleHook
}

type Option func(*runtimeBuilder)

func WithLogger(logger Logger) Option {
	return func(b *runtimeBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *runtimeBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *runtimeBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *runtimeBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *runtimeBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *runtimeBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *runtimeBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *runtimeBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *runtimeBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *runtimeBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *runtimeBuilder) {
		b.registry = registry
	}
}

func WithEventBus(bus EventBus) Option {
	return func(b *runtimeBuilder) {
		b.eventBus = bus
	}
}

func WithDedupLedger(ledger DedupLedger) Option {
	return func(b *runtimeBuilder) {
		b.dedupLedger = ledger
	}
}

func WithInstallationStore(store InstallationStore) Option {
	return func(b *runtimeBuilder) {
		b.installationStore = store
	}
}

func WithDeliveryLedgerStore(store DeliveryLedgerStore) Option {
	return func(b *runtimeBuilder) {
		b.deliveryLedger = store
	}
}

func WithAuthStateStore(store AuthStateStore) Option {
	return func(b *runtimeBuilder) {
		b.authStateStore = store
	}
}

func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(b *runtimeBuilder) {
		b.identityResolver = resolver
	}
}

func WithActionInvoker(invoker ActionInvoker) Option {
	return func(b *runtimeBuilder) {
		b.actionInvoker = invoker
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *runtimeBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithCredentialCodec(codec CredentialCodec) Option {
	return func(b *runtimeBuilder) {
		b.credentialCodec = codec
	}
}

func WithLifecycleHook(hook LifecycleHook) Option {
	return func(b *runtimeBuilder) {
		if hook != nil {
			b.lifecycleHooks = append(b.lifecycleHooks, hook)
		}
	}
}

func defaultRuntimeBuilder(runtime Config) runtimeBuilder {
	loggerProvider, logger := glog.Resolve("connectors", nil, nil)
	return runtimeBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		credentialCodec: JSONCredentialCodec{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return runtimeErrorMapper(err)
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
	if includeZero || cfg.Webhook.TimestampToleranceSeconds > 0 || cfg.Webhook.DedupTTLSeconds > 0 {
		layer["webhook"] = map[string]any{
			"timestamp_tolerance_seconds": cfg.Webhook.TimestampToleranceSeconds,
			"dedup_ttl_seconds":           cfg.Webhook.DedupTTLSeconds,
		}
	}
	if includeZero || cfg.Health.FailureThreshold > 0 || cfg.Health.ProbeTimeoutSeconds > 0 {
		layer["health"] = map[string]any{
			"failure_threshold":     cfg.Health.FailureThreshold,
			"probe_timeout_seconds": cfg.Health.ProbeTimeoutSeconds,
		}
	}
	if includeZero || cfg.Events.AsyncBufferSize > 0 {
		layer["events"] = map[string]any{
			"async_buffer_size": cfg.Events.AsyncBufferSize,
		}
	}
	return layer
}
