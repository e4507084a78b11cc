package devkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
)

// ValidateConnectorConformance drives a factory-built connector through the
// full lifecycle contract: descriptor sanity, schema validation, start,
// health probe, message echo and stop. Connector authors run this against
// their implementation before registering it.
func ValidateConnectorConformance(
	ctx context.Context,
	factory core.ConnectorFactory,
	config map[string]any,
) error {
	if factory == nil {
		return fmt.Errorf("devkit: connector factory is required")
	}
	connector, err := factory(config)
	if err != nil {
		return fmt.Errorf("devkit: factory failed: %w", err)
	}
	if connector == nil {
		return fmt.Errorf("devkit: factory returned nil connector")
	}

	descriptor := connector.Descriptor()
	if err := descriptor.Validate(); err != nil {
		return fmt.Errorf("devkit: invalid descriptor: %w", err)
	}
	applied := descriptor.ConfigSchema.ApplyDefaults(config)
	if err := descriptor.ConfigSchema.Check(applied); err != nil {
		return fmt.Errorf("devkit: config rejected by own schema: %w", err)
	}

	if err := connector.Start(ctx); err != nil {
		return fmt.Errorf("devkit: start failed: %w", err)
	}
	status, err := connector.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("devkit: health check failed after start: %w", err)
	}
	if !status.Healthy {
		return fmt.Errorf("devkit: connector unhealthy after start: %s", status.Detail)
	}

	response, err := connector.HandleMessage(ctx, conformanceMessage(descriptor.Name))
	if err != nil {
		return fmt.Errorf("devkit: handle message failed: %w", err)
	}
	if strings.TrimSpace(response.Text) == "" {
		return fmt.Errorf("devkit: handle message returned empty response text")
	}

	accepted, err := connector.SendMessage(ctx, "conformance", "conformance-user", core.NormalizedResponse{
		Channel: core.ChannelRef{Connector: descriptor.Name, ChannelID: "conformance"},
		Text:    "pong",
	})
	if err != nil {
		return fmt.Errorf("devkit: send message failed: %w", err)
	}
	if !accepted {
		return fmt.Errorf("devkit: send message was not accepted")
	}

	if err := connector.HandleEvent(ctx, core.CoreEvent{
		ID:        "conformance-event",
		Type:      "task.created",
		Source:    "devkit",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("devkit: handle event failed: %w", err)
	}

	if err := connector.Stop(ctx); err != nil {
		return fmt.Errorf("devkit: stop failed: %w", err)
	}
	return nil
}

// ValidateWebhookDecoderConformance checks that a webhook connector decodes
// its own wire format into valid normalized messages.
func ValidateWebhookDecoderConformance(
	ctx context.Context,
	connector core.WebhookConnector,
	envelope core.WebhookEnvelope,
) error {
	if connector == nil {
		return fmt.Errorf("devkit: webhook connector is required")
	}
	messages, err := connector.Decode(ctx, envelope)
	if err != nil {
		return fmt.Errorf("devkit: decode failed: %w", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("devkit: decode produced no messages")
	}
	for i, msg := range messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("devkit: decoded message %d is invalid: %w", i, err)
		}
	}
	return nil
}

// ValidateDedupLedgerConformance checks the claim contract: the first claim
// for a delivery is accepted, every later claim inside the TTL is a
// duplicate, and a released claim frees the key for the next attempt.
func ValidateDedupLedgerConformance(
	ctx context.Context,
	ledger core.DedupLedger,
	record core.DedupRecord,
) error {
	if ledger == nil {
		return fmt.Errorf("devkit: dedup ledger is required")
	}
	outcome, err := ledger.Claim(ctx, record)
	if err != nil {
		return err
	}
	if outcome != core.ClaimOutcomeAccepted {
		return fmt.Errorf("devkit: first claim should be accepted, got %s", outcome)
	}
	outcome, err = ledger.Claim(ctx, record)
	if err != nil {
		return err
	}
	if outcome != core.ClaimOutcomeDuplicate {
		return fmt.Errorf("devkit: second claim should be a duplicate, got %s", outcome)
	}
	if err := ledger.Release(ctx, record.Key()); err != nil {
		return fmt.Errorf("devkit: release failed: %w", err)
	}
	outcome, err = ledger.Claim(ctx, record)
	if err != nil {
		return err
	}
	if outcome != core.ClaimOutcomeAccepted {
		return fmt.Errorf("devkit: claim after release should be accepted, got %s", outcome)
	}
	return nil
}

func conformanceMessage(connector string) core.NormalizedMessage {
	return core.NormalizedMessage{
		Channel:    core.ChannelRef{Connector: connector, ChannelID: "conformance"},
		SenderID:   "conformance-user",
		Text:       "ping",
		ReceivedAt: time.Now().UTC(),
	}
}
