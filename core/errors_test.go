package core

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestRuntimeErrorMapper_TextCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
		wantHTTP int
	}{
		{
			name:     "signature failure",
			err:      errors.New("webhooks: signature mismatch"),
			wantCode: RuntimeErrorInvalidSignature,
			wantHTTP: http.StatusUnauthorized,
		},
		{
			name:     "stale timestamp",
			err:      errors.New("webhooks: stale timestamp outside tolerance"),
			wantCode: RuntimeErrorStaleTimestamp,
			wantHTTP: http.StatusUnauthorized,
		},
		{
			name:     "duplicate delivery",
			err:      errors.New("webhooks: duplicate delivery evt-42"),
			wantCode: RuntimeErrorDuplicate,
			wantHTTP: http.StatusConflict,
		},
		{
			name:     "connector missing",
			err:      errors.New("core: connector factory not registered: demo"),
			wantCode: RuntimeErrorNotFound,
			wantHTTP: http.StatusNotFound,
		},
		{
			name:     "config invalid",
			err:      errors.New("core: config schema check failed: missing required field \"secret\""),
			wantCode: RuntimeErrorConfigInvalid,
			wantHTTP: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := runtimeErrorMapper(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.TextCode != tc.wantCode {
				t.Fatalf("expected text code %s, got %s", tc.wantCode, mapped.TextCode)
			}
			if mapped.Code != tc.wantHTTP {
				t.Fatalf("expected status %d, got %d", tc.wantHTTP, mapped.Code)
			}
		})
	}
}

func TestRuntimeErrorMapper_PreservesRichErrors(t *testing.T) {
	original := goerrors.New("core: connector demo start failed", goerrors.CategoryOperation).
		WithTextCode(RuntimeErrorStartFailure)
	mapped := runtimeErrorMapper(original)
	if mapped.TextCode != RuntimeErrorStartFailure {
		t.Fatalf("expected original text code preserved, got %s", mapped.TextCode)
	}
}

func TestRuntimeErrorMapper_Nil(t *testing.T) {
	if mapped := runtimeErrorMapper(nil); mapped != nil {
		t.Fatalf("expected nil for nil input")
	}
}
