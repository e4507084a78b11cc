package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Connector is the capability contract every channel connector implements.
// Implementations translate between a platform's native surface and the
// channel-neutral message types; they never call planning internals directly.
type Connector interface {
	Descriptor() ConnectorDescriptor

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck(ctx context.Context) (HealthStatus, error)

	HandleMessage(ctx context.Context, msg NormalizedMessage) (NormalizedResponse, error)
	HandleEvent(ctx context.Context, event CoreEvent) error

	// SendMessage pushes one outbound response to a channel user. The flag
	// reports whether the platform accepted the message.
	SendMessage(ctx context.Context, channelID, userID string, response NormalizedResponse) (bool, error)
}

// ActionBinder is implemented by connectors that call back into core
// functionality. The registry binds the invoker after build, before Start.
type ActionBinder interface {
	BindActions(invoker ActionInvoker)
}

// WebhookConnector is implemented by connectors that receive platform
// webhooks. Decode turns a verified envelope into zero or more normalized
// messages; signature and replay checks already happened upstream.
type WebhookConnector interface {
	Connector
	Decode(ctx context.Context, envelope WebhookEnvelope) ([]NormalizedMessage, error)
}

// ConnectorFactory builds a connector from validated config. Registered in
// the factory table before Load is ever called for the name.
type ConnectorFactory func(config map[string]any) (Connector, error)

type LoadRequest struct {
	Name   string
	Config map[string]any
}

type RouteResult struct {
	Response NormalizedResponse
	Handled  bool
}

type BroadcastError struct {
	Connector string
	Err       error
}

type BroadcastReport struct {
	Delivered int
	Errors    []BroadcastError
}

// Registry owns the connector lifecycle: factory table, load/start,
// routing, event broadcast, health sweeps, stop.
type Registry interface {
	RegisterFactory(name string, factory ConnectorFactory) error
	Load(ctx context.Context, req LoadRequest) (ConnectorStatus, error)
	RouteMessage(ctx context.Context, msg NormalizedMessage) (RouteResult, error)
	BroadcastEvent(ctx context.Context, event CoreEvent) BroadcastReport
	HealthCheckAll(ctx context.Context) map[string]ConnectorStatus
	Status(name string) (ConnectorStatus, bool)
	List() []ConnectorStatus
	Stop(ctx context.Context, name string) error
	StopAll(ctx context.Context) error
}

// EventHandler consumes one core event. Errors are isolated per handler and
// never interrupt delivery to other subscribers.
type EventHandler interface {
	Handle(ctx context.Context, event CoreEvent) error
}

type EventHandlerFunc func(ctx context.Context, event CoreEvent) error

func (f EventHandlerFunc) Handle(ctx context.Context, event CoreEvent) error {
	return f(ctx, event)
}

type Subscription interface {
	Unsubscribe()
}

// HandlerOutcome is one subscriber's result for a published event. Err is
// nil when the handler accepted the event.
type HandlerOutcome struct {
	SubscriberID string
	Err          error
}

// PublishReport collects every subscriber outcome for one synchronous
// publish. Zero subscribers yields an empty outcome set.
type PublishReport struct {
	Delivered int
	Outcomes  []HandlerOutcome
}

func (r PublishReport) Failed() int {
	failed := 0
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed++
		}
	}
	return failed
}

// EventBus is the in-process publish/subscribe fabric between the runtime
// and connectors. Publish is synchronous fan-out reporting per-handler
// outcomes; PublishAsync defers delivery to a worker and Drain flushes it.
type EventBus interface {
	Publish(ctx context.Context, event CoreEvent) (PublishReport, error)
	PublishAsync(ctx context.Context, event CoreEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	Drain(ctx context.Context) error
}

type ClaimOutcome string

const (
	ClaimOutcomeAccepted  ClaimOutcome = "accepted"
	ClaimOutcomeDuplicate ClaimOutcome = "duplicate"
)

// DedupLedger provides replay protection for webhook deliveries. Claim is
// atomic: exactly one caller wins for a given key inside the TTL window.
// Release drops a claim whose delivery failed so the sender's retry is not
// treated as a replay.
type DedupLedger interface {
	Claim(ctx context.Context, record DedupRecord) (ClaimOutcome, error)
	Release(ctx context.Context, key string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type UpsertInstallationInput struct {
	Connector            string
	ChannelID            string
	EncryptedCredentials []byte
	CredentialFormat     string
	CredentialVersion    int
	HasRefreshCredential bool
	Status               InstallationStatus
	Metadata             map[string]any
}

// InstallationStore persists connector installations. One active row per
// (connector, channel); uninstall purges credential bytes in place.
type InstallationStore interface {
	Upsert(ctx context.Context, in UpsertInstallationInput) (Installation, error)
	Get(ctx context.Context, id string) (Installation, error)
	GetByChannel(ctx context.Context, connector, channelID string) (Installation, error)
	ListByConnector(ctx context.Context, connector string) ([]Installation, error)
	UpdateStatus(ctx context.Context, id string, status InstallationStatus) error
	PurgeCredentials(ctx context.Context, id string) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

type DeliveryState string

const (
	DeliveryStateReceived  DeliveryState = "received"
	DeliveryStateProcessed DeliveryState = "processed"
	DeliveryStateFailed    DeliveryState = "failed"
)

type DeliveryRecord struct {
	ID            string
	Connector     string
	ChannelID     string
	DeliveryID    string
	State         DeliveryState
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	ExpiresAt     time.Time
	ReceivedAt    time.Time
	UpdatedAt     time.Time
}

// DeliveryLedgerStore is the durable counterpart of DedupLedger: it survives
// restarts and carries retry bookkeeping for deferred processing.
type DeliveryLedgerStore interface {
	Claim(ctx context.Context, record DedupRecord) (ClaimOutcome, error)
	MarkProcessed(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key string, cause error, nextAttemptAt *time.Time) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type StoreProvider interface {
	InstallationStore() InstallationStore
	DeliveryLedgerStore() DeliveryLedgerStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SecretProvider encrypts credential payloads at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// CallerIdentity is the resolved core-side identity behind a channel sender.
type CallerIdentity struct {
	UserID    string
	Channel   ChannelRef
	SenderID  string
	Metadata  map[string]any
	Resolved  bool
	Anonymous bool
}

type IdentityResolver interface {
	Resolve(ctx context.Context, channel ChannelRef, senderID string) (CallerIdentity, error)
}

type ActionRequest struct {
	Name   string
	Caller CallerIdentity
	Params map[string]any
}

// ActionResult is the only shape Core Actions return. Failures ride in the
// result, never as raised errors, so connector authors get one uniform path.
type ActionResult struct {
	Success   bool
	Data      map[string]any
	Error     string
	ErrorCode string
}

// ActionInvoker is the single gateway connectors use to reach core
// functionality.
type ActionInvoker interface {
	Invoke(ctx context.Context, req ActionRequest) ActionResult
	Actions() []string
}

type AuthStateRecord struct {
	State     string
	Connector string
	ChannelID string
	Metadata  map[string]any
	ExpiresAt time.Time
}

// AuthStateStore holds short-lived authorization callback state.
type AuthStateStore interface {
	Put(ctx context.Context, record AuthStateRecord) error
	Consume(ctx context.Context, state string) (AuthStateRecord, error)
}

type JobExecutionMessage struct {
	JobID          string
	Kind           string
	Parameters     map[string]any
	IdempotencyKey string
}

// JobEnqueuer defers work past the webhook acknowledgment.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

// JobDelivery is one in-flight queue message. Ack or Nack must be called
// exactly once.
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

// JobWorkerHook observes worker execution without being able to alter it.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

// LifecycleHook observes connector state transitions. Hook errors are logged
// and dropped; they never affect the transition.
type LifecycleHook interface {
	Name() string
	OnTransition(ctx context.Context, status ConnectorStatus, previous ConnectorState) error
}

// TransportRequest is one outbound call a connector makes against its channel
// provider API.
type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportAdapter executes outbound provider calls for one wire protocol.
type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}
