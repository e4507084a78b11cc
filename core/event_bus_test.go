package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestInProcessEventBus_PublishDeliversToSubscribers(t *testing.T) {
	bus := NewInProcessEventBus()
	var received []CoreEvent
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(_ context.Context, event CoreEvent) error {
		received = append(received, event)
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := bus.Publish(context.Background(), CoreEvent{ID: "e1", Type: "task.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(received) != 1 || received[0].ID != "e1" {
		t.Fatalf("expected one delivery, got %+v", received)
	}
}

func TestInProcessEventBus_PublishWithoutSubscribersSucceeds(t *testing.T) {
	bus := NewInProcessEventBus()
	if _, err := bus.Publish(context.Background(), CoreEvent{Type: "task.created"}); err != nil {
		t.Fatalf("publish with no subscribers: %v", err)
	}
}

func TestInProcessEventBus_HandlerFailureIsolated(t *testing.T) {
	bus := NewInProcessEventBus()
	delivered := 0
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(context.Context, CoreEvent) error {
		return errors.New("handler refused")
	})); err != nil {
		t.Fatalf("subscribe failing handler: %v", err)
	}
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(context.Context, CoreEvent) error {
		delivered++
		return nil
	})); err != nil {
		t.Fatalf("subscribe healthy handler: %v", err)
	}

	report, err := bus.Publish(context.Background(), CoreEvent{Type: "task.created"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected healthy handler to still receive event, got %d", delivered)
	}
	if report.Delivered != 1 {
		t.Fatalf("expected report to count one delivery, got %d", report.Delivered)
	}
	if report.Failed() != 1 {
		t.Fatalf("expected report to count one failure, got %d", report.Failed())
	}
	var failure *HandlerOutcome
	for idx := range report.Outcomes {
		if report.Outcomes[idx].Err != nil {
			failure = &report.Outcomes[idx]
		}
	}
	if failure == nil || failure.SubscriberID == "" {
		t.Fatalf("expected a failure outcome naming its subscriber, got %+v", report.Outcomes)
	}
	if !strings.Contains(failure.Err.Error(), "handler refused") {
		t.Fatalf("expected outcome to carry the handler error, got %v", failure.Err)
	}
}

func TestInProcessEventBus_PublishReportsEmptyForNoSubscribers(t *testing.T) {
	bus := NewInProcessEventBus()
	report, err := bus.Publish(context.Background(), CoreEvent{Type: "task.created"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if report.Delivered != 0 || len(report.Outcomes) != 0 {
		t.Fatalf("expected empty report for zero subscribers, got %+v", report)
	}
}

func TestInProcessEventBus_HandlerPanicIsolated(t *testing.T) {
	bus := NewInProcessEventBus()
	delivered := 0
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(context.Context, CoreEvent) error {
		panic("handler exploded")
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(context.Context, CoreEvent) error {
		delivered++
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bus.Publish(context.Background(), CoreEvent{Type: "task.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected delivery despite panicking handler, got %d", delivered)
	}
}

func TestInProcessEventBus_WildcardSubscription(t *testing.T) {
	bus := NewInProcessEventBus()
	seen := map[string]int{}
	if _, err := bus.Subscribe(WildcardEventType, EventHandlerFunc(func(_ context.Context, event CoreEvent) error {
		seen[event.Type]++
		return nil
	})); err != nil {
		t.Fatalf("subscribe wildcard: %v", err)
	}

	for _, eventType := range []string{"task.created", "task.completed"} {
		if _, err := bus.Publish(context.Background(), CoreEvent{Type: eventType}); err != nil {
			t.Fatalf("publish %s: %v", eventType, err)
		}
	}
	if seen["task.created"] != 1 || seen["task.completed"] != 1 {
		t.Fatalf("expected wildcard to see both events, got %v", seen)
	}
}

func TestInProcessEventBus_Unsubscribe(t *testing.T) {
	bus := NewInProcessEventBus()
	delivered := 0
	sub, err := bus.Subscribe("task.created", EventHandlerFunc(func(context.Context, CoreEvent) error {
		delivered++
		return nil
	}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := bus.Publish(context.Background(), CoreEvent{Type: "task.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	sub.Unsubscribe()
	if _, err := bus.Publish(context.Background(), CoreEvent{Type: "task.created"}); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected exactly one delivery, got %d", delivered)
	}
}

func TestInProcessEventBus_PublishAsyncAndDrain(t *testing.T) {
	bus := NewInProcessEventBus(EventBusWithBufferSize(8))
	var mu sync.Mutex
	delivered := 0
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(context.Context, CoreEvent) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := bus.PublishAsync(context.Background(), CoreEvent{Type: "task.created"}); err != nil {
			t.Fatalf("publish async: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if delivered != 5 {
		t.Fatalf("expected 5 deliveries after drain, got %d", delivered)
	}
}

func TestInProcessEventBus_PublishAsyncKeepsArrivalOrder(t *testing.T) {
	bus := NewInProcessEventBus(EventBusWithBufferSize(1))
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(_ context.Context, event CoreEvent) error {
		<-release
		mu.Lock()
		order = append(order, event.ID)
		mu.Unlock()
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := []string{"e1", "e2", "e3", "e4"}
	published := make(chan error, 1)
	go func() {
		for _, id := range want {
			if err := bus.PublishAsync(context.Background(), CoreEvent{ID: id, Type: "task.created"}); err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()
	close(release)
	if err := <-published; err != nil {
		t.Fatalf("publish async: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("expected %d deliveries, got %v", len(want), order)
	}
	for idx := range want {
		if order[idx] != want[idx] {
			t.Fatalf("expected arrival order %v, got %v", want, order)
		}
	}
}

func TestInProcessEventBus_PublishAsyncCancelledWhileQueueFull(t *testing.T) {
	bus := NewInProcessEventBus(EventBusWithBufferSize(1))
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	delivered := 0
	if _, err := bus.Subscribe("task.created", EventHandlerFunc(func(context.Context, CoreEvent) error {
		once.Do(func() { close(started) })
		<-block
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.PublishAsync(context.Background(), CoreEvent{ID: "e1", Type: "task.created"}); err != nil {
		t.Fatalf("publish async: %v", err)
	}
	<-started
	// the worker is busy with e1, so e2 fills the only buffer slot
	if err := bus.PublishAsync(context.Background(), CoreEvent{ID: "e2", Type: "task.created"}); err != nil {
		t.Fatalf("publish async: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.PublishAsync(ctx, CoreEvent{ID: "e3", Type: "task.created"}); err == nil {
		t.Fatalf("expected cancelled publish against a full queue to fail")
	}

	close(block)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	if err := bus.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if delivered != 2 {
		t.Fatalf("expected the queued events and only those delivered, got %d", delivered)
	}
}

func TestInProcessEventBus_PublishRequiresEventType(t *testing.T) {
	bus := NewInProcessEventBus()
	if _, err := bus.Publish(context.Background(), CoreEvent{}); err == nil {
		t.Fatalf("expected empty event type to be rejected")
	}
	if err := bus.PublishAsync(context.Background(), CoreEvent{}); err == nil {
		t.Fatalf("expected empty event type to be rejected")
	}
}
