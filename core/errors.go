package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RuntimeErrorConfigInvalid      = "RUNTIME_CONFIG_INVALID"
	RuntimeErrorLoadFailure        = "RUNTIME_LOAD_FAILURE"
	RuntimeErrorStartFailure       = "RUNTIME_START_FAILURE"
	RuntimeErrorHandlerException   = "RUNTIME_HANDLER_EXCEPTION"
	RuntimeErrorInvalidSignature   = "RUNTIME_INVALID_SIGNATURE"
	RuntimeErrorStaleTimestamp     = "RUNTIME_STALE_TIMESTAMP"
	RuntimeErrorDuplicate          = "RUNTIME_DUPLICATE_DELIVERY"
	RuntimeErrorHealthCheckFailure = "RUNTIME_HEALTH_CHECK_FAILURE"
	RuntimeErrorActionFailure      = "RUNTIME_ACTION_FAILURE"
	RuntimeErrorNotFound           = "RUNTIME_CONNECTOR_NOT_FOUND"
	RuntimeErrorInternal           = "RUNTIME_INTERNAL_ERROR"
)

func runtimeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRuntimeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newRuntimeError(err.Error(), goerrors.CategoryAuth, RuntimeErrorInvalidSignature)
	case strings.Contains(msg, "stale timestamp"), strings.Contains(msg, "timestamp outside"):
		return newRuntimeError(err.Error(), goerrors.CategoryAuth, RuntimeErrorStaleTimestamp)
	case strings.Contains(msg, "duplicate delivery"), strings.Contains(msg, "already claimed"):
		return newRuntimeError(err.Error(), goerrors.CategoryConflict, RuntimeErrorDuplicate)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not registered"):
		return newRuntimeError(err.Error(), goerrors.CategoryNotFound, RuntimeErrorNotFound)
	case strings.Contains(msg, "health check"):
		return newRuntimeError(err.Error(), goerrors.CategoryOperation, RuntimeErrorHealthCheckFailure)
	case strings.Contains(msg, "schema check failed"), strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newRuntimeError(err.Error(), goerrors.CategoryValidation, RuntimeErrorConfigInvalid)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRuntimeErrorEnvelope(mapped)
}

func newRuntimeError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRuntimeErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureRuntimeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = runtimeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRuntimeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRuntimeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RuntimeErrorConfigInvalid
	case goerrors.CategoryNotFound:
		return RuntimeErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return RuntimeErrorInvalidSignature
	case goerrors.CategoryConflict:
		return RuntimeErrorDuplicate
	case goerrors.CategoryOperation:
		return RuntimeErrorHandlerException
	default:
		return RuntimeErrorInternal
	}
}

func runtimeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
