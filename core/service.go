package core

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Service is the runtime facade: it owns the registry, the event bus, the
// dedup ledger, and the installation persistence, and exposes the
// operations embedding applications call.
type Service struct {
	config            Config
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
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Registry          Registry
	EventBus          EventBus
	DedupLedger       DedupLedger
	InstallationStore InstallationStore
	DeliveryLedger    DeliveryLedgerStore
	AuthStateStore    AuthStateStore
	IdentityResolver  IdentityResolver
	ActionInvoker     ActionInvoker
	JobEnqueuer       JobEnqueuer
	CredentialCodec   CredentialCodec
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultRuntimeBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("connectors", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("connectors"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.credentialCodec == nil {
		builder.credentialCodec = JSONCredentialCodec{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.registry == nil {
		registryOptions := []RegistryOption{
			RegistryWithLogger(logger),
			RegistryWithMetricsRecorder(builder.metricsRecorder),
			RegistryWithFailureThreshold(finalConfig.Health.FailureThreshold),
			RegistryWithProbeTimeout(finalConfig.ProbeTimeout()),
		}
		for _, hook := range builder.lifecycleHooks {
			registryOptions = append(registryOptions, RegistryWithLifecycleHook(hook))
		}
		builder.registry = NewConnectorRegistry(registryOptions...)
	}
	if builder.eventBus == nil {
		builder.eventBus = NewInProcessEventBus(
			EventBusWithLogger(logger),
			EventBusWithMetricsRecorder(builder.metricsRecorder),
			EventBusWithBufferSize(finalConfig.Events.AsyncBufferSize),
		)
	}
	if builder.dedupLedger == nil {
		builder.dedupLedger = NewMemoryDedupLedger(finalConfig.DedupTTL())
	}
	if builder.authStateStore == nil {
		builder.authStateStore = NewMemoryAuthStateStore(defaultAuthStateTTL)
	}

	if (builder.installationStore == nil || builder.deliveryLedger == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				if builder.installationStore == nil {
					builder.installationStore = storeProvider.InstallationStore()
				}
				if builder.deliveryLedger == nil {
					builder.deliveryLedger = storeProvider.DeliveryLedgerStore()
				}
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			if builder.installationStore == nil {
				builder.installationStore = storeProvider.InstallationStore()
			}
			if builder.deliveryLedger == nil {
				builder.deliveryLedger = storeProvider.DeliveryLedgerStore()
			}
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		eventBus:          builder.eventBus,
		dedupLedger:       builder.dedupLedger,
		installationStore: builder.installationStore,
		deliveryLedger:    builder.deliveryLedger,
		authStateStore:    builder.authStateStore,
		identityResolver:  builder.identityResolver,
		actionInvoker:     builder.actionInvoker,
		jobEnqueuer:       builder.jobEnqueuer,
		credentialCodec:   builder.credentialCodec,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Registry:          s.registry,
		EventBus:          s.eventBus,
		DedupLedger:       s.dedupLedger,
		InstallationStore: s.installationStore,
		DeliveryLedger:    s.deliveryLedger,
		AuthStateStore:    s.authStateStore,
		IdentityResolver:  s.identityResolver,
		ActionInvoker:     s.actionInvoker,
		JobEnqueuer:       s.jobEnqueuer,
		CredentialCodec:   s.credentialCodec,
	}
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) EventBus() EventBus {
	if s == nil {
		return nil
	}
	return s.eventBus
}

func (s *Service) LoadConnector(ctx context.Context, req LoadRequest) (status ConnectorStatus, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"connector": req.Name}
	defer func() {
		s.observeOperation(ctx, startedAt, "connector_load", err, fields)
	}()

	if s == nil || s.registry == nil {
		err = fmt.Errorf("core: registry is not configured")
		return ConnectorStatus{}, s.mapError(err)
	}
	status, err = s.registry.Load(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return status, err
	}
	return status, nil
}

func (s *Service) RouteMessage(ctx context.Context, msg NormalizedMessage) (result RouteResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"connector":  msg.Channel.Connector,
		"channel_id": msg.Channel.ChannelID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "route_message", err, fields)
	}()

	if s == nil || s.registry == nil {
		err = fmt.Errorf("core: registry is not configured")
		return RouteResult{}, s.mapError(err)
	}
	result, err = s.registry.RouteMessage(ctx, msg)
	if err != nil {
		err = s.mapError(err)
		return result, err
	}
	if s.installationStore != nil {
		if installation, lookupErr := s.installationStore.GetByChannel(ctx, msg.Channel.Connector, msg.Channel.ChannelID); lookupErr == nil {
			_ = s.installationStore.TouchLastActive(ctx, installation.ID, time.Now().UTC())
		}
	}
	return result, nil
}

// PublishEvent emits one core event to the bus and fans it out to every
// routable connector.
func (s *Service) PublishEvent(ctx context.Context, event CoreEvent) (report BroadcastReport, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"event_type": event.Type,
		"event_id":   event.ID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "publish_event", err, fields)
	}()

	if s == nil || s.registry == nil {
		err = fmt.Errorf("core: registry is not configured")
		return BroadcastReport{}, s.mapError(err)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if s.eventBus != nil {
		if _, busErr := s.eventBus.Publish(ctx, event); busErr != nil {
			err = s.mapError(busErr)
			return BroadcastReport{}, err
		}
	}
	report = s.registry.BroadcastEvent(ctx, event)
	fields["delivered"] = report.Delivered
	fields["failed"] = len(report.Errors)
	return report, nil
}

func (s *Service) HealthCheckAll(ctx context.Context) map[string]ConnectorStatus {
	if s == nil || s.registry == nil {
		return map[string]ConnectorStatus{}
	}
	return s.registry.HealthCheckAll(ctx)
}

func (s *Service) StopConnector(ctx context.Context, name string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"connector": name}
	defer func() {
		s.observeOperation(ctx, startedAt, "connector_stop", err, fields)
	}()

	if s == nil || s.registry == nil {
		err = fmt.Errorf("core: registry is not configured")
		return s.mapError(err)
	}
	if err = s.registry.Stop(ctx, name); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// Shutdown stops every connector and drains queued async events.
func (s *Service) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.registry != nil {
		if err := s.registry.StopAll(ctx); err != nil {
			firstErr = err
		}
	}
	if s.eventBus != nil {
		if err := s.eventBus.Drain(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return s.mapError(firstErr)
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
