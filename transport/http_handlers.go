package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/webhooks"
	goerrors "github.com/goliatone/go-errors"
)

const defaultIngestBodyLimit int64 = 1 << 20 // 1 MiB

// Ingest headers. Provider-specific header names are translated to these by
// the edge proxy or by per-connector routes.
const (
	HeaderSignature  = "X-Webhook-Signature"
	HeaderTimestamp  = "X-Webhook-Timestamp"
	HeaderDeliveryID = "X-Delivery-Id"
	HeaderChannelID  = "X-Channel-Id"
)

// DeliveryProcessor is the pipeline behind the ingest endpoint.
type DeliveryProcessor interface {
	Process(ctx context.Context, envelope core.WebhookEnvelope) (webhooks.Result, error)
}

// WebhookIngestHandler terminates provider webhook HTTP deliveries. The
// connector name is the last path segment: POST /webhooks/{connector}.
type WebhookIngestHandler struct {
	Processor    DeliveryProcessor
	MaxBodyBytes int64
	Now          func() time.Time
}

func NewWebhookIngestHandler(processor DeliveryProcessor) *WebhookIngestHandler {
	return &WebhookIngestHandler{
		Processor:    processor,
		MaxBodyBytes: defaultIngestBodyLimit,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *WebhookIngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Processor == nil {
		writeJSONError(w, http.StatusInternalServerError, core.RuntimeErrorInternal, "ingest handler is not configured")
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, core.RuntimeErrorInternal, "method not allowed")
		return
	}
	connector := lastPathSegment(r.URL.Path)
	if connector == "" || connector == "webhooks" {
		writeJSONError(w, http.StatusNotFound, core.RuntimeErrorNotFound, "connector name is required in the path")
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultIngestBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, core.RuntimeErrorConfigInvalid, "read request body")
		return
	}
	if int64(len(body)) > limit {
		writeJSONError(w, http.StatusRequestEntityTooLarge, core.RuntimeErrorConfigInvalid, "request body exceeds limit")
		return
	}

	envelope := core.WebhookEnvelope{
		Connector:  connector,
		ChannelID:  strings.TrimSpace(r.Header.Get(HeaderChannelID)),
		DeliveryID: strings.TrimSpace(r.Header.Get(HeaderDeliveryID)),
		Signature:  strings.TrimSpace(r.Header.Get(HeaderSignature)),
		Timestamp:  strings.TrimSpace(r.Header.Get(HeaderTimestamp)),
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		ReceivedAt: h.now(),
	}

	result, err := h.Processor.Process(r.Context(), envelope)
	if err != nil {
		status, textCode := classifyProcessError(err, result)
		writeJSONError(w, status, textCode, err.Error())
		return
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"accepted": result.Accepted,
		"metadata": result.Metadata,
	})
}

func (h *WebhookIngestHandler) now() time.Time {
	if h != nil && h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// HealthSource reports connector health for the health endpoint.
type HealthSource interface {
	HealthCheckAll(ctx context.Context) map[string]core.ConnectorStatus
}

// HealthHandler exposes unauthenticated connector health. The endpoint
// reports 503 when any probed connector is unhealthy.
type HealthHandler struct {
	Source HealthSource
}

func NewHealthHandler(source HealthSource) *HealthHandler {
	return &HealthHandler{Source: source}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Source == nil {
		writeJSONError(w, http.StatusInternalServerError, core.RuntimeErrorInternal, "health source is not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, core.RuntimeErrorInternal, "method not allowed")
		return
	}

	statuses := h.Source.HealthCheckAll(r.Context())
	healthy := true
	report := make(map[string]any, len(statuses))
	for name, status := range statuses {
		entry := map[string]any{
			"state":                string(status.State),
			"last_healthy":         status.LastHealthy,
			"consecutive_failures": status.ConsecutiveFailures,
		}
		if status.Version != "" {
			entry["version"] = status.Version
		}
		report[name] = entry
		if status.State == core.ConnectorStateUnhealthy {
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy":    healthy,
		"connectors": report,
	})
}

// Authorizer is the begin/complete authorization surface behind the
// callback endpoint.
type Authorizer interface {
	BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.Installation, error)
}

type beginAuthorizationPayload struct {
	Connector string         `json:"connector"`
	ChannelID string         `json:"channel_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type completeAuthorizationPayload struct {
	State      string         `json:"state"`
	Credential credentialBody `json:"credential"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type credentialBody struct {
	BotToken      string         `json:"bot_token"`
	SigningSecret string         `json:"signing_secret"`
	RefreshToken  string         `json:"refresh_token,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// AuthCallbackHandler terminates the authorization flow:
// POST /authorize begins a flow, POST /authorize/callback completes it with
// the state token and credential material.
type AuthCallbackHandler struct {
	Authorizer   Authorizer
	MaxBodyBytes int64
}

func NewAuthCallbackHandler(authorizer Authorizer) *AuthCallbackHandler {
	return &AuthCallbackHandler{
		Authorizer:   authorizer,
		MaxBodyBytes: defaultIngestBodyLimit,
	}
}

func (h *AuthCallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Authorizer == nil {
		writeJSONError(w, http.StatusInternalServerError, core.RuntimeErrorInternal, "authorizer is not configured")
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, core.RuntimeErrorInternal, "method not allowed")
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultIngestBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil || int64(len(body)) > limit {
		writeJSONError(w, http.StatusBadRequest, core.RuntimeErrorConfigInvalid, "read request body")
		return
	}

	if lastPathSegment(r.URL.Path) == "callback" {
		h.complete(w, r, body)
		return
	}
	h.begin(w, r, body)
}

func (h *AuthCallbackHandler) begin(w http.ResponseWriter, r *http.Request, body []byte) {
	var payload beginAuthorizationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, core.RuntimeErrorConfigInvalid, "decode authorization request")
		return
	}
	response, err := h.Authorizer.BeginAuthorization(r.Context(), core.BeginAuthorizationRequest{
		Connector: strings.ToLower(strings.TrimSpace(payload.Connector)),
		ChannelID: strings.TrimSpace(payload.ChannelID),
		Metadata:  payload.Metadata,
	})
	if err != nil {
		status, textCode := classifyProcessError(err, webhooks.Result{})
		writeJSONError(w, status, textCode, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      response.State,
		"expires_at": response.ExpiresAt,
	})
}

func (h *AuthCallbackHandler) complete(w http.ResponseWriter, r *http.Request, body []byte) {
	var payload completeAuthorizationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, core.RuntimeErrorConfigInvalid, "decode callback request")
		return
	}
	if strings.TrimSpace(payload.State) == "" {
		writeJSONError(w, http.StatusBadRequest, core.RuntimeErrorConfigInvalid, "state is required")
		return
	}
	installation, err := h.Authorizer.CompleteAuthorization(r.Context(), core.CompleteAuthorizationRequest{
		State: strings.TrimSpace(payload.State),
		Credential: core.ChannelCredential{
			BotToken:      payload.Credential.BotToken,
			SigningSecret: payload.Credential.SigningSecret,
			RefreshToken:  payload.Credential.RefreshToken,
			ExpiresAt:     payload.Credential.ExpiresAt,
			Metadata:      payload.Credential.Metadata,
		},
		Metadata: payload.Metadata,
	})
	if err != nil {
		status, textCode := classifyProcessError(err, webhooks.Result{})
		writeJSONError(w, status, textCode, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"installation_id": installation.ID,
		"connector":       installation.Connector,
		"channel_id":      installation.ChannelID,
		"status":          string(installation.Status),
	})
}

func classifyProcessError(err error, result webhooks.Result) (int, string) {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code, richErr.TextCode
	}
	if result.StatusCode > 0 {
		return result.StatusCode, textCodeForStatus(result.StatusCode)
	}
	return http.StatusInternalServerError, core.RuntimeErrorInternal
}

func textCodeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.RuntimeErrorInvalidSignature
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return core.RuntimeErrorConfigInvalid
	case http.StatusNotFound:
		return core.RuntimeErrorNotFound
	case http.StatusConflict:
		return core.RuntimeErrorDuplicate
	default:
		return core.RuntimeErrorInternal
	}
}

func lastPathSegment(path string) string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return ""
	}
	segments := strings.Split(trimmed, "/")
	return strings.TrimSpace(strings.ToLower(segments[len(segments)-1]))
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, textCode, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    textCode,
			"message": message,
		},
	})
}
