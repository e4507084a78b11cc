package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-connectors/core"
)

func TestRESTAdapter_MergesQueryAndHeaders(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		w.Header().Set("X-Provider", "demo")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.DefaultHeaders["Authorization"] = "Bearer token"

	response, err := adapter.Do(context.Background(), core.TransportRequest{
		Method:  "post",
		URL:     server.URL + "/api?base=1",
		Query:   map[string]string{"channel": "c1"},
		Headers: map[string]string{"X-Trace": "t1"},
		Body:    []byte(`{"text":"hi"}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", response.StatusCode)
	}
	if captured.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", captured.Method)
	}
	if captured.URL.Query().Get("base") != "1" || captured.URL.Query().Get("channel") != "c1" {
		t.Fatalf("expected merged query, got %s", captured.URL.RawQuery)
	}
	if captured.Header.Get("Authorization") != "Bearer token" || captured.Header.Get("X-Trace") != "t1" {
		t.Fatalf("expected merged headers")
	}
	if response.Headers["X-Provider"] != "demo" {
		t.Fatalf("expected flattened response headers, got %v", response.Headers)
	}
	if string(response.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", string(response.Body))
	}
}

func TestRESTAdapter_EnforcesResponseBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	_, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:                  server.URL,
		MaxResponseBodyBytes: 16,
	})
	if err == nil {
		t.Fatalf("expected body limit rejection")
	}
}

func TestRESTAdapter_RequiresURL(t *testing.T) {
	adapter := NewRESTAdapter(nil)
	if _, err := adapter.Do(context.Background(), core.TransportRequest{}); err == nil {
		t.Fatalf("expected missing url rejection")
	}
}

func TestProviderAdapters_ApplyProtocolDefaults(t *testing.T) {
	var captured http.Header
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	form := NewFormAdapter(server.Client())
	response, err := form.Do(context.Background(), core.TransportRequest{URL: server.URL})
	if err != nil {
		t.Fatalf("form do: %v", err)
	}
	if method != http.MethodPost {
		t.Fatalf("expected form adapter to default to POST, got %s", method)
	}
	if captured.Get("Content-Type") != "application/x-www-form-urlencoded" {
		t.Fatalf("expected form content type, got %q", captured.Get("Content-Type"))
	}
	if response.Metadata["kind"] != KindForm {
		t.Fatalf("expected kind metadata, got %v", response.Metadata)
	}

	stream := NewStreamAdapter(server.Client())
	if _, err := stream.Do(context.Background(), core.TransportRequest{URL: server.URL}); err != nil {
		t.Fatalf("stream do: %v", err)
	}
	if method != http.MethodGet {
		t.Fatalf("expected stream adapter to default to GET, got %s", method)
	}
	if captured.Get("Accept") != "text/event-stream" {
		t.Fatalf("expected event-stream accept header")
	}
}
