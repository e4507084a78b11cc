package webhooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goliatone/go-connectors/core"
)

// Decoder turns a verified envelope into channel-neutral messages. Webhook
// connectors implement this through core.WebhookConnector.
type Decoder interface {
	Decode(ctx context.Context, envelope core.WebhookEnvelope) ([]core.NormalizedMessage, error)
}

// DecoderResolver finds the decoder for one connector name.
type DecoderResolver func(connector string) (Decoder, bool)

type MessageRouter interface {
	RouteMessage(ctx context.Context, msg core.NormalizedMessage) (core.RouteResult, error)
}

// DispatchHandler is the default processor handler: decode the envelope via
// the owning connector, route every message through the registry, gather
// the responses.
type DispatchHandler struct {
	Resolve DecoderResolver
	Router  MessageRouter
}

func (h *DispatchHandler) Handle(ctx context.Context, envelope core.WebhookEnvelope) (Result, error) {
	if h == nil || h.Resolve == nil || h.Router == nil {
		return Result{}, fmt.Errorf("webhooks: dispatch handler requires resolver and router")
	}
	decoder, ok := h.Resolve(envelope.Connector)
	if !ok {
		return Result{
			Accepted:   false,
			StatusCode: http.StatusNotFound,
		}, fmt.Errorf("webhooks: no decoder for connector %s", envelope.Connector)
	}

	messages, err := decoder.Decode(ctx, envelope)
	if err != nil {
		return Result{
			Accepted:   false,
			StatusCode: http.StatusUnprocessableEntity,
		}, fmt.Errorf("webhooks: decode delivery %s: %w", envelope.DeliveryID, err)
	}

	result := Result{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   map[string]any{"messages": len(messages)},
	}
	for _, msg := range messages {
		routed, routeErr := h.Router.RouteMessage(ctx, msg)
		if routeErr != nil {
			return Result{
				Accepted:   false,
				StatusCode: http.StatusInternalServerError,
				Metadata:   result.Metadata,
			}, routeErr
		}
		if routed.Handled {
			result.Responses = append(result.Responses, routed.Response)
		}
	}
	return result, nil
}

// RegistryDecoderResolver resolves decoders from the live connector set.
// Only connectors implementing core.WebhookConnector participate.
type RegistryDecoderResolver struct {
	Lookup func(connector string) (core.Connector, bool)
}

func (r RegistryDecoderResolver) Resolver() DecoderResolver {
	return func(connector string) (Decoder, bool) {
		if r.Lookup == nil {
			return nil, false
		}
		instance, ok := r.Lookup(connector)
		if !ok {
			return nil, false
		}
		webhookConnector, ok := instance.(core.WebhookConnector)
		if !ok {
			return nil, false
		}
		return webhookConnector, true
	}
}

var _ Handler = (*DispatchHandler)(nil)
