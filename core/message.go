package core

import (
	"fmt"
	"strings"
	"time"
)

// NormalizedMessage is the channel-neutral representation of an inbound user
// message. Connectors translate platform payloads into this shape before
// anything downstream sees them.
type NormalizedMessage struct {
	Channel       ChannelRef
	SenderID      string
	Text          string
	Command       string
	CommandParams map[string]string
	ThreadID      string
	Attachments   []Attachment
	Metadata      map[string]any
	ReceivedAt    time.Time
}

// ParseCommand fills Command and CommandParams from a slash-prefixed text
// ("/remind target=me in=5m"). Plain text leaves both unset.
func (m *NormalizedMessage) ParseCommand() {
	if m == nil {
		return
	}
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return
	}
	m.Command = strings.ToLower(fields[0])
	if len(fields) == 1 {
		return
	}
	params := make(map[string]string, len(fields)-1)
	for idx, field := range fields[1:] {
		if key, value, ok := strings.Cut(field, "="); ok && strings.TrimSpace(key) != "" {
			params[strings.ToLower(strings.TrimSpace(key))] = value
			continue
		}
		params[fmt.Sprintf("arg%d", idx)] = field
	}
	m.CommandParams = params
}

func (m NormalizedMessage) Validate() error {
	if err := m.Channel.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.SenderID) == "" {
		return fmt.Errorf("core: normalized message sender id is required")
	}
	return nil
}

type Attachment struct {
	Kind     string
	Name     string
	URL      string
	MimeType string
	Size     int64
}

// ResponseKind tells the connector how to render a reply on its platform.
type ResponseKind string

const (
	ResponseKindOrdinary  ResponseKind = "ordinary"
	ResponseKindEphemeral ResponseKind = "ephemeral"
	ResponseKindModal     ResponseKind = "modal"
	ResponseKindError     ResponseKind = "error"
)

// ResponseAction is one interactive element (button, menu entry) attached to
// a response.
type ResponseAction struct {
	ID    string
	Label string
	Value string
}

// NormalizedResponse is the channel-neutral outbound reply. Connectors apply
// platform formatting on their side of the boundary. A zero Kind means
// ordinary.
type NormalizedResponse struct {
	Channel  ChannelRef
	Kind     ResponseKind
	Text     string
	ThreadID string
	Blocks   []ResponseBlock
	Actions  []ResponseAction
	Metadata map[string]any
}

// ResponseBlock is a minimal structured element a connector may render
// natively (buttons, sections) or flatten to text.
type ResponseBlock struct {
	Type string
	Text string
	Data map[string]any
}

// WebhookEnvelope carries one raw webhook delivery through verification and
// dedup. Body is the exact bytes received; headers are preserved for
// signature material.
type WebhookEnvelope struct {
	Connector  string
	ChannelID  string
	DeliveryID string
	Signature  string
	Timestamp  string
	Headers    map[string]string
	Body       []byte
	ReceivedAt time.Time
}

func (e WebhookEnvelope) Validate() error {
	if strings.TrimSpace(e.Connector) == "" {
		return fmt.Errorf("core: webhook envelope connector is required")
	}
	if strings.TrimSpace(e.DeliveryID) == "" {
		return fmt.Errorf("core: webhook envelope delivery id is required")
	}
	return nil
}

// DedupKey is the replay-protection scope for one delivery.
func (e WebhookEnvelope) DedupKey() string {
	return strings.TrimSpace(strings.ToLower(e.Connector)) + ":" +
		strings.TrimSpace(e.ChannelID) + ":" +
		strings.TrimSpace(e.DeliveryID)
}

// DedupRecord tracks one seen delivery until its TTL lapses.
type DedupRecord struct {
	Connector  string
	ChannelID  string
	DeliveryID string
	SeenAt     time.Time
	ExpiresAt  time.Time
}

func (r DedupRecord) Key() string {
	return strings.TrimSpace(strings.ToLower(r.Connector)) + ":" +
		strings.TrimSpace(r.ChannelID) + ":" +
		strings.TrimSpace(r.DeliveryID)
}
