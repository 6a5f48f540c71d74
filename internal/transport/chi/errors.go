package chi

import (
	"context"
	"errors"
	"net/http"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// defaultErrorHandlers is checked in order; the first match wins. Quota and
// rate limits come before the generic provider failure they may wrap.
func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded,
			http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrModelConflict, http.StatusConflict, CodeModelConflict),
		sentinelHandler(domain.ErrCollectionUnbound, http.StatusConflict, CodeCollectionUnbound),
		sentinelHandler(domain.ErrConfiguration, http.StatusUnprocessableEntity, CodeConfiguration),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrIndexOutOfSync, http.StatusInternalServerError, CodeIndexOutOfSync),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, clientMessage(err, sentinel, status))
		return true
	}
}

// clientMessage returns the full error chain for client errors and only the
// sentinel text for server-side failures.
func clientMessage(err, sentinel error, status int) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	return sentinel.Error()
}
