package ragstore

import "github.com/kailas-cloud/ragstore/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrConfiguration          = domain.ErrConfiguration
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrModelConflict          = domain.ErrModelConflict
	ErrCollectionUnbound      = domain.ErrCollectionUnbound
	ErrIndexOutOfSync         = domain.ErrIndexOutOfSync
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)
