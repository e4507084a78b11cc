package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
)

const (
	SignaturePrefix           = "v1="
	DefaultTimestampTolerance = 5 * time.Minute
)

// Verifier authenticates one raw webhook delivery before anything else
// touches it.
type Verifier interface {
	Verify(ctx context.Context, envelope core.WebhookEnvelope) error
}

// SecretResolver returns the signing secret for one channel. Backed by the
// installation store in production; static maps in tests.
type SecretResolver interface {
	SigningSecret(ctx context.Context, connector, channelID string) (string, error)
}

type SecretResolverFunc func(ctx context.Context, connector, channelID string) (string, error)

func (f SecretResolverFunc) SigningSecret(ctx context.Context, connector, channelID string) (string, error) {
	return f(ctx, connector, channelID)
}

// HMACVerifier checks the delivery signature: HMAC-SHA256 keyed on the
// channel signing secret over "<timestamp>.<body>", hex encoded behind the
// v1= prefix. The timestamp must fall inside the tolerance window in either
// direction before any signature math happens.
type HMACVerifier struct {
	Secrets   SecretResolver
	Tolerance time.Duration
	Now       func() time.Time
}

func NewHMACVerifier(secrets SecretResolver) *HMACVerifier {
	return &HMACVerifier{
		Secrets:   secrets,
		Tolerance: DefaultTimestampTolerance,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (v *HMACVerifier) Verify(ctx context.Context, envelope core.WebhookEnvelope) error {
	if v == nil || v.Secrets == nil {
		return fmt.Errorf("webhooks: verifier requires a secret resolver")
	}
	timestamp := strings.TrimSpace(envelope.Timestamp)
	if timestamp == "" {
		return fmt.Errorf("webhooks: stale timestamp check requires a timestamp header")
	}
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("webhooks: invalid timestamp %q", timestamp)
	}
	sentAt := time.Unix(seconds, 0).UTC()
	now := v.now()
	tolerance := v.tolerance()
	if sentAt.Before(now.Add(-tolerance)) || sentAt.After(now.Add(tolerance)) {
		return fmt.Errorf("webhooks: stale timestamp outside %s tolerance", tolerance)
	}

	signature := strings.TrimSpace(envelope.Signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature is required")
	}
	signature = strings.TrimPrefix(signature, SignaturePrefix)

	secret, err := v.Secrets.SigningSecret(ctx, envelope.Connector, envelope.ChannelID)
	if err != nil {
		return fmt.Errorf("webhooks: resolve signing secret: %w", err)
	}
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("webhooks: signing secret is not configured")
	}

	expected := ComputeSignature(secret, timestamp, envelope.Body)
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: signature mismatch")
	}
	expectedRaw, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, expectedRaw) {
		return fmt.Errorf("webhooks: signature mismatch")
	}
	return nil
}

// ComputeSignature derives the hex digest a sender must attach. Exposed for
// connector SDKs and tests.
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func (v *HMACVerifier) tolerance() time.Duration {
	if v != nil && v.Tolerance > 0 {
		return v.Tolerance
	}
	return DefaultTimestampTolerance
}

var _ Verifier = (*HMACVerifier)(nil)
