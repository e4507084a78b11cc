package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "channel_credential_json"
	CredentialPayloadVersionV1    = 1
)

// ChannelCredential is the decrypted credential material a connector needs
// to talk to its platform. Never logged, never persisted in the clear.
type ChannelCredential struct {
	BotToken      string
	SigningSecret string
	RefreshToken  string
	ExpiresAt     *time.Time
	Metadata      map[string]any
}

type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential ChannelCredential) ([]byte, error)
	Decode(payload []byte) (ChannelCredential, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	BotToken      string         `json:"bot_token,omitempty"`
	SigningSecret string         `json:"signing_secret,omitempty"`
	RefreshToken  string         `json:"refresh_token,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (JSONCredentialCodec) Encode(credential ChannelCredential) ([]byte, error) {
	payload := jsonCredentialPayload{
		BotToken:      strings.TrimSpace(credential.BotToken),
		SigningSecret: strings.TrimSpace(credential.SigningSecret),
		RefreshToken:  strings.TrimSpace(credential.RefreshToken),
		ExpiresAt:     cloneTimePointer(credential.ExpiresAt),
		Metadata:      copyAnyMap(credential.Metadata),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (ChannelCredential, error) {
	if len(payload) == 0 {
		return ChannelCredential{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ChannelCredential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return ChannelCredential{
		BotToken:      strings.TrimSpace(decoded.BotToken),
		SigningSecret: strings.TrimSpace(decoded.SigningSecret),
		RefreshToken:  strings.TrimSpace(decoded.RefreshToken),
		ExpiresAt:     cloneTimePointer(decoded.ExpiresAt),
		Metadata:      copyAnyMap(decoded.Metadata),
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
