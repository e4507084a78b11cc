package connectors

import "github.com/goliatone/go-connectors/core"

type Config = core.Config

type WebhookConfig = core.WebhookConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Registry = core.Registry
type EventBus = core.EventBus
type DedupLedger = core.DedupLedger
type InstallationStore = core.InstallationStore
type DeliveryLedgerStore = core.DeliveryLedgerStore
type AuthStateStore = core.AuthStateStore
type IdentityResolver = core.IdentityResolver
type ActionInvoker = core.ActionInvoker
type JobEnqueuer = core.JobEnqueuer
type CredentialCodec = core.CredentialCodec
type SecretProvider = core.SecretProvider
type Connector = core.Connector
type ConnectorFactory = core.ConnectorFactory

type LoadRequest = core.LoadRequest
type InstallRequest = core.InstallRequest

type BeginAuthorizationRequest = core.BeginAuthorizationRequest
type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest

type NormalizedMessage = core.NormalizedMessage
type NormalizedResponse = core.NormalizedResponse
type ResponseKind = core.ResponseKind
type ActionBinder = core.ActionBinder
type CoreEvent = core.CoreEvent
type WebhookEnvelope = core.WebhookEnvelope
type PublishReport = core.PublishReport

type ConnectorStatus = core.ConnectorStatus
type Installation = core.Installation
type RouteResult = core.RouteResult
type BroadcastReport = core.BroadcastReport

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithSecretProvider      = core.WithSecretProvider
	WithPersistenceClient   = core.WithPersistenceClient
	WithRepositoryFactory   = core.WithRepositoryFactory
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithRegistry            = core.WithRegistry
	WithEventBus            = core.WithEventBus
	WithDedupLedger         = core.WithDedupLedger
	WithInstallationStore   = core.WithInstallationStore
	WithDeliveryLedgerStore = core.WithDeliveryLedgerStore
	WithAuthStateStore      = core.WithAuthStateStore
	WithIdentityResolver    = core.WithIdentityResolver
	WithActionInvoker       = core.WithActionInvoker
	WithJobEnqueuer         = core.WithJobEnqueuer
	WithCredentialCodec     = core.WithCredentialCodec
	WithLifecycleHook       = core.WithLifecycleHook
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
