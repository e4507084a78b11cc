package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-connectors/core"
)

func burstEnvelope(channelID string) core.WebhookEnvelope {
	return core.WebhookEnvelope{Connector: "demo", ChannelID: channelID, DeliveryID: "evt"}
}

func TestBurstController_NoneModeAllowsAll(t *testing.T) {
	controller := NewBurstController(BurstOptions{Mode: BurstModeNone})
	for i := 0; i < 3; i++ {
		decision, err := controller.Allow(context.Background(), burstEnvelope("c1"))
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allow {
			t.Fatalf("expected all deliveries allowed in none mode")
		}
	}
}

func TestBurstController_CoalesceInsideWindow(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: time.Second,
		Now:    func() time.Time { return current },
	})

	decision, _ := controller.Allow(context.Background(), burstEnvelope("c1"))
	if !decision.Allow {
		t.Fatalf("expected first delivery allowed")
	}

	current = current.Add(200 * time.Millisecond)
	decision, _ = controller.Allow(context.Background(), burstEnvelope("c1"))
	if decision.Allow {
		t.Fatalf("expected second delivery coalesced")
	}
	if decision.Metadata["coalesced"] != true {
		t.Fatalf("expected coalesced metadata, got %v", decision.Metadata)
	}

	current = current.Add(2 * time.Second)
	decision, _ = controller.Allow(context.Background(), burstEnvelope("c1"))
	if !decision.Allow {
		t.Fatalf("expected delivery outside window allowed")
	}
}

func TestBurstController_KeysScopedPerChannel(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeDebounce,
		Window: time.Second,
		Now:    func() time.Time { return current },
	})

	if decision, _ := controller.Allow(context.Background(), burstEnvelope("c1")); !decision.Allow {
		t.Fatalf("expected c1 allowed")
	}
	if decision, _ := controller.Allow(context.Background(), burstEnvelope("c2")); !decision.Allow {
		t.Fatalf("expected c2 unaffected by c1 burst")
	}
}

func TestDefaultBurstKeyExtractor(t *testing.T) {
	key, ok := DefaultBurstKeyExtractor(burstEnvelope("C1"))
	if !ok || key != "demo:c1" {
		t.Fatalf("unexpected key %q ok=%v", key, ok)
	}
	if _, ok := DefaultBurstKeyExtractor(core.WebhookEnvelope{}); ok {
		t.Fatalf("expected no key without connector")
	}
	key, ok = DefaultBurstKeyExtractor(core.WebhookEnvelope{
		Connector: "demo",
		Headers:   map[string]string{"X-Channel-Id": "abc"},
	})
	if !ok || key != "demo:abc" {
		t.Fatalf("unexpected header key %q", key)
	}
}
