package webhooks

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Result is the processor's answer to the transport layer. StatusCode maps
// directly onto the HTTP acknowledgment.
type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
	Responses  []core.NormalizedResponse
}

// Handler turns one verified, deduplicated envelope into downstream work.
type Handler interface {
	Handle(ctx context.Context, envelope core.WebhookEnvelope) (Result, error)
}

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Processor runs the ingestion pipeline: verify, claim the delivery in the
// dedup ledger, apply burst control, then hand off. When an enqueuer is
// configured the hand-off is deferred so the acknowledgment stays fast;
// enqueue failure degrades to synchronous handling rather than dropping the
// delivery.
type Processor struct {
	Verifier    Verifier
	Ledger      core.DedupLedger
	Durable     core.DeliveryLedgerStore
	Handler     Handler
	Burst       BurstController
	Enqueuer    core.JobEnqueuer
	RetryPolicy RetryPolicy
	DedupTTL    time.Duration
	Logger      core.Logger
	Metrics     core.MetricsRecorder
	Now         func() time.Time
}

func NewProcessor(verifier Verifier, ledger core.DedupLedger, handler Handler) *Processor {
	_, logger := glog.Resolve("connectors:webhooks", nil, nil)
	return &Processor{
		Verifier:    verifier,
		Ledger:      ledger,
		Handler:     handler,
		RetryPolicy: ExponentialRetryPolicy{},
		DedupTTL:    time.Hour,
		Logger:      glog.Ensure(logger),
		Metrics:     core.NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, envelope core.WebhookEnvelope) (Result, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return Result{}, fmt.Errorf("webhooks: processor requires handler and ledger")
	}
	envelope.Connector = strings.TrimSpace(strings.ToLower(envelope.Connector))
	if err := envelope.Validate(); err != nil {
		return Result{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
		}, err
	}
	if envelope.ReceivedAt.IsZero() {
		envelope.ReceivedAt = p.now()
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, envelope); err != nil {
			p.recordCounter(ctx, "connectors.webhooks.rejected", envelope, "verification")
			p.logSecurityReject(ctx, envelope, err)
			return Result{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"connector": envelope.Connector,
					"rejected":  true,
				},
			}, err
		}
	}

	record := core.DedupRecord{
		Connector:  envelope.Connector,
		ChannelID:  envelope.ChannelID,
		DeliveryID: envelope.DeliveryID,
		SeenAt:     envelope.ReceivedAt,
		ExpiresAt:  envelope.ReceivedAt.Add(p.dedupTTL()),
	}
	outcome, err := p.claim(ctx, record)
	if err != nil {
		return Result{}, err
	}
	if outcome == core.ClaimOutcomeDuplicate {
		p.recordCounter(ctx, "connectors.webhooks.deduped", envelope, "duplicate")
		return Result{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"connector":   envelope.Connector,
				"delivery_id": envelope.DeliveryID,
				"deduped":     true,
			},
		}, nil
	}

	if p.Burst != nil {
		decision, burstErr := p.Burst.Allow(ctx, envelope)
		if burstErr != nil {
			return Result{}, burstErr
		}
		if !decision.Allow {
			p.markProcessed(ctx, record)
			metadata := ensureMetadata(decision.Metadata)
			metadata["connector"] = envelope.Connector
			metadata["delivery_id"] = envelope.DeliveryID
			return Result{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   metadata,
			}, nil
		}
	}

	if p.Enqueuer != nil {
		enqueueErr := p.enqueue(ctx, envelope)
		if enqueueErr == nil {
			return Result{
				Accepted:   true,
				StatusCode: http.StatusAccepted,
				Metadata: map[string]any{
					"connector":   envelope.Connector,
					"delivery_id": envelope.DeliveryID,
					"deferred":    true,
				},
			}, nil
		}
		p.logProcessorError(ctx, "enqueue failed, handling synchronously", envelope, enqueueErr)
	}

	result, err := p.Handler.Handle(ctx, envelope)
	if err != nil {
		p.markFailed(ctx, record, err)
		return Result{}, err
	}
	if !result.Accepted || result.StatusCode >= http.StatusInternalServerError {
		retryErr := fmt.Errorf("webhooks: delivery handler returned retryable status %d", result.StatusCode)
		p.markFailed(ctx, record, retryErr)
		return result, retryErr
	}

	p.markProcessed(ctx, record)
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["connector"] = envelope.Connector
	result.Metadata["delivery_id"] = envelope.DeliveryID
	return result, nil
}

// claim consults the in-memory ledger first and the durable ledger second;
// a duplicate in either wins.
func (p *Processor) claim(ctx context.Context, record core.DedupRecord) (core.ClaimOutcome, error) {
	outcome, err := p.Ledger.Claim(ctx, record)
	if err != nil {
		return "", err
	}
	if outcome == core.ClaimOutcomeDuplicate {
		return outcome, nil
	}
	if p.Durable != nil {
		durableOutcome, durableErr := p.Durable.Claim(ctx, record)
		if durableErr != nil {
			return "", durableErr
		}
		if durableOutcome == core.ClaimOutcomeDuplicate {
			return core.ClaimOutcomeDuplicate, nil
		}
	}
	return core.ClaimOutcomeAccepted, nil
}

func (p *Processor) enqueue(ctx context.Context, envelope core.WebhookEnvelope) error {
	msg := &core.JobExecutionMessage{
		JobID:          uuid.NewString(),
		Kind:           "webhook_delivery",
		IdempotencyKey: envelope.DedupKey(),
		Parameters: map[string]any{
			"connector":   envelope.Connector,
			"channel_id":  envelope.ChannelID,
			"delivery_id": envelope.DeliveryID,
			"timestamp":   envelope.Timestamp,
			"signature":   envelope.Signature,
			"body":        base64.StdEncoding.EncodeToString(envelope.Body),
			"received_at": envelope.ReceivedAt.Format(time.RFC3339Nano),
		},
	}
	return p.Enqueuer.Enqueue(ctx, msg)
}

func (p *Processor) markProcessed(ctx context.Context, record core.DedupRecord) {
	if p.Durable == nil {
		return
	}
	if err := p.Durable.MarkProcessed(ctx, record.Key()); err != nil {
		p.logLedgerError(ctx, record, err)
	}
}

// markFailed releases the in-memory claim so the sender's retry is accepted
// again, and records the failure in the durable ledger when one is wired.
func (p *Processor) markFailed(ctx context.Context, record core.DedupRecord, cause error) {
	if p.Ledger != nil {
		if err := p.Ledger.Release(ctx, record.Key()); err != nil {
			p.logLedgerError(ctx, record, err)
		}
	}
	if p.Durable == nil {
		return
	}
	nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(1))
	if err := p.Durable.MarkFailed(ctx, record.Key(), cause, &nextAttemptAt); err != nil {
		p.logLedgerError(ctx, record, err)
	}
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) dedupTTL() time.Duration {
	if p != nil && p.DedupTTL > 0 {
		return p.DedupTTL
	}
	return time.Hour
}

func (p *Processor) recordCounter(ctx context.Context, name string, envelope core.WebhookEnvelope, reason string) {
	if p == nil || p.Metrics == nil {
		return
	}
	p.Metrics.IncCounter(ctx, name, 1, map[string]string{
		"connector": envelope.Connector,
		"reason":    reason,
	})
}

func (p *Processor) logSecurityReject(ctx context.Context, envelope core.WebhookEnvelope, err error) {
	p.logProcessorError(ctx, "webhook delivery rejected", envelope, err)
}

func (p *Processor) logLedgerError(ctx context.Context, record core.DedupRecord, err error) {
	if p == nil || p.Logger == nil {
		return
	}
	p.Logger.Error("delivery ledger update failed",
		"connector", record.Connector,
		"delivery_id", record.DeliveryID,
		"error", err.Error(),
	)
}

func (p *Processor) logProcessorError(ctx context.Context, message string, envelope core.WebhookEnvelope, err error) {
	if p == nil || p.Logger == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error(message,
		"connector", envelope.Connector,
		"channel_id", envelope.ChannelID,
		"delivery_id", envelope.DeliveryID,
		"error", err.Error(),
	)
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}
