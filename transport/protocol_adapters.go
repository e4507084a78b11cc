package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	KindJSON   = "json"
	KindForm   = "form"
	KindStream = "stream"
	KindUpload = "upload"
)

// ProviderHTTPAdapter wraps the REST adapter with the content negotiation a
// channel provider protocol expects. Chat provider APIs split roughly into
// JSON bot APIs, form-encoded legacy webhooks, event streams, and media
// upload endpoints.
type ProviderHTTPAdapter struct {
	kind          string
	defaultMethod string
	defaultHeader map[string]string
	rest          *RESTAdapter
}

func NewJSONAdapter(client HTTPDoer) *ProviderHTTPAdapter {
	return newProviderHTTPAdapter(KindJSON, client, "POST", map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	})
}

func NewFormAdapter(client HTTPDoer) *ProviderHTTPAdapter {
	return newProviderHTTPAdapter(KindForm, client, "POST", map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
}

func NewStreamAdapter(client HTTPDoer) *ProviderHTTPAdapter {
	return newProviderHTTPAdapter(KindStream, client, "GET", map[string]string{
		"Accept": "text/event-stream",
	})
}

func NewUploadAdapter(client HTTPDoer) *ProviderHTTPAdapter {
	return newProviderHTTPAdapter(KindUpload, client, "POST", map[string]string{
		"Content-Type": "application/octet-stream",
	})
}

func newProviderHTTPAdapter(kind string, client HTTPDoer, defaultMethod string, defaultHeaders map[string]string) *ProviderHTTPAdapter {
	return &ProviderHTTPAdapter{
		kind:          strings.TrimSpace(strings.ToLower(kind)),
		defaultMethod: strings.TrimSpace(strings.ToUpper(defaultMethod)),
		defaultHeader: cloneHeaders(defaultHeaders),
		rest:          NewRESTAdapter(client),
	}
}

func (a *ProviderHTTPAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *ProviderHTTPAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.rest == nil {
		return core.TransportResponse{}, fmt.Errorf("transport: provider adapter is nil")
	}
	resolved := req
	if strings.TrimSpace(resolved.Method) == "" {
		resolved.Method = a.defaultMethod
	}
	headers := cloneHeaders(a.defaultHeader)
	for key, value := range req.Headers {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		headers[trimmed] = strings.TrimSpace(value)
	}
	resolved.Headers = headers
	response, err := a.rest.Do(ctx, resolved)
	if err != nil {
		return core.TransportResponse{}, err
	}
	response.Metadata = cloneMetadata(response.Metadata)
	response.Metadata["kind"] = a.kind
	return response, nil
}

func cloneHeaders(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		out[trimmed] = strings.TrimSpace(value)
	}
	return out
}

func cloneMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*ProviderHTTPAdapter)(nil)
