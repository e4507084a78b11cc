package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// WildcardEventType subscribes a handler to every published event.
const WildcardEventType = "*"

type busSubscription struct {
	id        string
	bus       *InProcessEventBus
	eventType string
}

func (s *busSubscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.unsubscribe(s.eventType, s.id)
}

// InProcessEventBus fans core events out to subscribed handlers. Synchronous
// publish delivers inline; async publish hands delivery to a single worker
// goroutine so event emitters never block on slow handlers. Handler order
// within a fan-out is unspecified.
type InProcessEventBus struct {
	mu       sync.RWMutex
	handlers map[string]map[string]EventHandler

	logger          Logger
	metricsRecorder MetricsRecorder

	asyncOnce sync.Once
	asyncCh   chan asyncDelivery
	pending   sync.WaitGroup

	bufferSize int
}

type asyncDelivery struct {
	ctx   context.Context
	event CoreEvent
}

type EventBusOption func(*InProcessEventBus)

func EventBusWithLogger(logger Logger) EventBusOption {
	return func(b *InProcessEventBus) {
		b.logger = logger
	}
}

func EventBusWithMetricsRecorder(recorder MetricsRecorder) EventBusOption {
	return func(b *InProcessEventBus) {
		if recorder != nil {
			b.metricsRecorder = recorder
		}
	}
}

func EventBusWithBufferSize(size int) EventBusOption {
	return func(b *InProcessEventBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

func NewInProcessEventBus(options ...EventBusOption) *InProcessEventBus {
	bus := &InProcessEventBus{
		handlers:        make(map[string]map[string]EventHandler),
		metricsRecorder: NopMetricsRecorder{},
		bufferSize:      256,
	}
	for _, option := range options {
		if option != nil {
			option(bus)
		}
	}
	return bus
}

func (b *InProcessEventBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if b == nil {
		return nil, fmt.Errorf("core: event bus is nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("core: event handler is nil")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("core: event type is required")
	}
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]EventHandler)
	}
	b.handlers[eventType][id] = handler
	return &busSubscription{id: id, bus: b, eventType: eventType}, nil
}

func (b *InProcessEventBus) unsubscribe(eventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}
}

// Publish delivers the event to every matching subscriber inline and reports
// one outcome per handler. A failing handler is logged and skipped; the
// remaining subscribers still receive the event. Zero subscribers yields an
// empty report, not an error.
func (b *InProcessEventBus) Publish(ctx context.Context, event CoreEvent) (PublishReport, error) {
	if b == nil {
		return PublishReport{}, fmt.Errorf("core: event bus is nil")
	}
	if strings.TrimSpace(event.Type) == "" {
		return PublishReport{}, fmt.Errorf("core: event type is required")
	}
	return b.deliver(ctx, event), nil
}

// PublishAsync queues the event for the delivery worker. A full queue blocks
// the caller so queued events keep their arrival order; a cancelled context
// aborts the wait.
func (b *InProcessEventBus) PublishAsync(ctx context.Context, event CoreEvent) error {
	if b == nil {
		return fmt.Errorf("core: event bus is nil")
	}
	if strings.TrimSpace(event.Type) == "" {
		return fmt.Errorf("core: event type is required")
	}
	b.asyncOnce.Do(b.startWorker)

	b.pending.Add(1)
	select {
	case b.asyncCh <- asyncDelivery{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	case <-ctx.Done():
		b.pending.Done()
		return fmt.Errorf("core: async publish interrupted: %w", ctx.Err())
	}
}

// Drain blocks until every queued async event has been delivered or the
// context expires.
func (b *InProcessEventBus) Drain(ctx context.Context) error {
	if b == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		b.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("core: event bus drain interrupted: %w", ctx.Err())
	}
}

func (b *InProcessEventBus) startWorker() {
	b.asyncCh = make(chan asyncDelivery, b.bufferSize)
	go func() {
		for delivery := range b.asyncCh {
			b.deliver(delivery.ctx, delivery.event)
			b.pending.Done()
		}
	}()
}

func (b *InProcessEventBus) deliver(ctx context.Context, event CoreEvent) PublishReport {
	subscribers := b.snapshotHandlers(event.Type)
	report := PublishReport{Outcomes: make([]HandlerOutcome, 0, len(subscribers))}
	for _, subscriber := range subscribers {
		err := safeHandleBusEvent(ctx, subscriber.handler, event)
		report.Outcomes = append(report.Outcomes, HandlerOutcome{SubscriberID: subscriber.id, Err: err})
		if err != nil {
			b.metricsRecorder.IncCounter(ctx, "connectors.bus.handler.failures", 1, map[string]string{
				"event_type": event.Type,
			})
			b.logBusError(ctx, "event handler failed", map[string]any{
				"event_type": event.Type,
				"event_id":   event.ID,
				"error":      err.Error(),
			})
			continue
		}
		report.Delivered++
	}
	return report
}

type busSubscriber struct {
	id      string
	handler EventHandler
}

func (b *InProcessEventBus) snapshotHandlers(eventType string) []busSubscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subscribers := make([]busSubscriber, 0, len(b.handlers[eventType])+len(b.handlers[WildcardEventType]))
	for id, handler := range b.handlers[eventType] {
		subscribers = append(subscribers, busSubscriber{id: id, handler: handler})
	}
	if eventType != WildcardEventType {
		for id, handler := range b.handlers[WildcardEventType] {
			subscribers = append(subscribers, busSubscriber{id: id, handler: handler})
		}
	}
	return subscribers
}

func (b *InProcessEventBus) logBusError(ctx context.Context, message string, fields map[string]any) {
	if b == nil || b.logger == nil {
		return
	}
	logger := b.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	logger.Error(message, flattenFields(fields)...)
}

func safeHandleBusEvent(ctx context.Context, handler EventHandler, event CoreEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: event handler panicked: %v", recovered)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ EventBus = (*InProcessEventBus)(nil)
