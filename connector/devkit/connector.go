package devkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-connectors/core"
)

const (
	// ConnectorName is the registry name the devkit factory registers under.
	ConnectorName    = "devkit"
	connectorVersion = "1.0.0"
)

// Connector is an in-memory reference implementation of the full channel
// contract, including webhook decoding. It echoes inbound messages and
// records everything it sees so tests can assert on runtime behavior.
type Connector struct {
	mu       sync.Mutex
	greeting string
	secret   string
	started  bool

	messages []core.NormalizedMessage
	events   []core.CoreEvent
	sent     []SentMessage
	invoker  core.ActionInvoker
	probes   int

	// Failure injection for exercising runtime isolation paths.
	StartErr   error
	StopErr    error
	MessageErr error
	EventErr   error
	ProbeErr   error
	SendErr    error
}

// SentMessage is one outbound response the connector pushed to its platform.
type SentMessage struct {
	ChannelID string
	UserID    string
	Response  core.NormalizedResponse
}

// Factory builds a devkit connector from validated runtime config. Register
// it with a registry to make the reference channel loadable by name.
func Factory(config map[string]any) (core.Connector, error) {
	connector := &Connector{greeting: "hello"}
	if raw, ok := config["greeting"].(string); ok && strings.TrimSpace(raw) != "" {
		connector.greeting = strings.TrimSpace(raw)
	}
	if raw, ok := config["secret"].(string); ok {
		connector.secret = raw
	}
	return connector, nil
}

func (c *Connector) Descriptor() core.ConnectorDescriptor {
	return core.ConnectorDescriptor{
		Name:    ConnectorName,
		Version: connectorVersion,
		ConfigSchema: core.ConfigSchema{
			Fields: []core.SchemaField{
				{Name: "secret", Type: core.FieldTypeSecret, Required: true},
				{Name: "greeting", Type: core.FieldTypeString, Default: "hello"},
			},
		},
	}
}

func (c *Connector) Start(context.Context) error {
	if c.StartErr != nil {
		return c.StartErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *Connector) Stop(context.Context) error {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	return c.StopErr
}

func (c *Connector) HealthCheck(context.Context) (core.HealthStatus, error) {
	c.mu.Lock()
	c.probes++
	started := c.started
	c.mu.Unlock()

	if c.ProbeErr != nil {
		return core.HealthStatus{Healthy: false, Detail: c.ProbeErr.Error()}, c.ProbeErr
	}
	if !started {
		return core.HealthStatus{Healthy: false, Detail: "not started"}, fmt.Errorf("devkit: connector not started")
	}
	return core.HealthStatus{Healthy: true, Detail: "ok"}, nil
}

func (c *Connector) HandleMessage(_ context.Context, msg core.NormalizedMessage) (core.NormalizedResponse, error) {
	if c.MessageErr != nil {
		return core.NormalizedResponse{}, c.MessageErr
	}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	greeting := c.greeting
	c.mu.Unlock()

	return core.NormalizedResponse{
		Channel:  msg.Channel,
		Text:     greeting + " " + msg.SenderID + ": " + msg.Text,
		ThreadID: msg.ThreadID,
	}, nil
}

// SendMessage records the outbound response and reports it as accepted. A
// configured SendErr simulates platform push failures.
func (c *Connector) SendMessage(_ context.Context, channelID, userID string, response core.NormalizedResponse) (bool, error) {
	if c.SendErr != nil {
		return false, c.SendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, SentMessage{ChannelID: channelID, UserID: userID, Response: response})
	c.mu.Unlock()
	return true, nil
}

// BindActions keeps the runtime's action invoker so handlers can call back
// into the platform.
func (c *Connector) BindActions(invoker core.ActionInvoker) {
	c.mu.Lock()
	c.invoker = invoker
	c.mu.Unlock()
}

func (c *Connector) HandleEvent(_ context.Context, event core.CoreEvent) error {
	if c.EventErr != nil {
		return c.EventErr
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

// Decode implements core.WebhookConnector. The devkit wire format is a JSON
// object with a channel_id, sender_id, text and optional thread_id, or an
// "events" array of such objects.
func (c *Connector) Decode(_ context.Context, envelope core.WebhookEnvelope) ([]core.NormalizedMessage, error) {
	if len(envelope.Body) == 0 {
		return nil, fmt.Errorf("devkit: empty webhook body")
	}

	var payload devkitPayload
	if err := json.Unmarshal(envelope.Body, &payload); err != nil {
		return nil, fmt.Errorf("devkit: malformed webhook body: %w", err)
	}

	items := payload.Events
	if len(items) == 0 {
		items = []devkitEvent{payload.devkitEvent}
	}

	receivedAt := envelope.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	messages := make([]core.NormalizedMessage, 0, len(items))
	for _, item := range items {
		channelID := strings.TrimSpace(item.ChannelID)
		if channelID == "" {
			channelID = strings.TrimSpace(envelope.ChannelID)
		}
		msg := core.NormalizedMessage{
			Channel:    core.ChannelRef{Connector: ConnectorName, ChannelID: channelID},
			SenderID:   strings.TrimSpace(item.SenderID),
			Text:       item.Text,
			ThreadID:   strings.TrimSpace(item.ThreadID),
			ReceivedAt: receivedAt,
		}
		if err := msg.Validate(); err != nil {
			return nil, fmt.Errorf("devkit: decode delivery %s: %w", envelope.DeliveryID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Messages returns a copy of every message the connector handled.
func (c *Connector) Messages() []core.NormalizedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.NormalizedMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Events returns a copy of every broadcast event the connector received.
func (c *Connector) Events() []core.CoreEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.CoreEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Sent returns a copy of every response pushed through SendMessage.
func (c *Connector) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// Invoker returns the action invoker bound by the runtime, if any.
func (c *Connector) Invoker() core.ActionInvoker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invoker
}

// Probes reports how many health checks ran.
func (c *Connector) Probes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probes
}

type devkitEvent struct {
	ChannelID string `json:"channel_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	ThreadID  string `json:"thread_id,omitempty"`
}

type devkitPayload struct {
	devkitEvent
	Events []devkitEvent `json:"events,omitempty"`
}

var (
	_ core.Connector        = (*Connector)(nil)
	_ core.WebhookConnector = (*Connector)(nil)
	_ core.ActionBinder     = (*Connector)(nil)
)
