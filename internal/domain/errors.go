package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing collection.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration signals a fatal setup problem (credentials, backend, capabilities).
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidRequest signals a missing or malformed required field.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrModelConflict signals a model override that disagrees with the stored collection model.
	ErrModelConflict = errors.New("embedding model conflict")
	// ErrCollectionUnbound signals an embedding operation on a collection without a known model.
	ErrCollectionUnbound = errors.New("collection has no embedding model")
	// ErrIndexOutOfSync signals a vector index whose size disagrees with the recorded positions.
	ErrIndexOutOfSync = errors.New("vector index out of sync with content store")

	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a provider-side rate limit (retryable).
	ErrRateLimited = errors.New("rate limited")
)

// ConfigurationError is a fatal construction-time error. It is never retried.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration.Error(), e.Setting, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError creates a configuration error for the given setting.
func NewConfigurationError(setting, reason string) error {
	return &ConfigurationError{Setting: setting, Reason: reason}
}

// DimensionError carries the expected and actual vector lengths.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrVectorDimMismatch.Error(), e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrVectorDimMismatch }

// NewDimensionError creates a dimension mismatch error.
func NewDimensionError(expected, actual int) error {
	return &DimensionError{Expected: expected, Actual: actual}
}

// TransientBackendError is returned once retries against the embedding backend are exhausted.
// Cause holds the last underlying failure.
type TransientBackendError struct {
	Attempts int
	Cause    error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrEmbeddingProviderError.Error(), e.Attempts, e.Cause)
}

// Unwrap exposes both the provider sentinel and the last cause to errors.Is/As.
func (e *TransientBackendError) Unwrap() []error { return []error{ErrEmbeddingProviderError, e.Cause} }

// RetryableError marks a backend failure as transient.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so that IsRetryable reports true.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err was marked transient by a backend.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re) || errors.Is(err, ErrRateLimited)
}
