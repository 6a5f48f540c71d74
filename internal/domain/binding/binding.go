// Package binding models the embedding model a collection is bound to.
//
// A collection is either Unbound (its documents were registered before any
// embedding model was known) or Bound to exactly one (provider, model,
// dimensions) triple. The provider is empty when vectors were supplied by
// the caller; queries then resolve the model under the default provider.
package binding

import (
	"fmt"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Placeholder is the storage encoding of an unbound collection's model column.
const Placeholder = "precomputed"

// Binding is Unbound or Bound(provider, model, dim). The zero value is Unbound.
type Binding struct {
	provider string
	model    string
	dim      int
}

// Unbound returns the unbound binding.
func Unbound() Binding { return Binding{} }

// Bound validates and creates a bound binding. provider may be empty.
func Bound(provider, model string, dim int) (Binding, error) {
	if model == "" {
		return Binding{}, fmt.Errorf("embedding model is required: %w", domain.ErrInvalidRequest)
	}
	if model == Placeholder {
		return Binding{}, fmt.Errorf("model name %q is reserved: %w", Placeholder, domain.ErrInvalidRequest)
	}
	if dim <= 0 {
		return Binding{}, fmt.Errorf("embedding dimensions must be positive: %w", domain.ErrInvalidRequest)
	}
	return Binding{provider: provider, model: model, dim: dim}, nil
}

// Decode maps the persisted (provider, model, dim) columns back to a Binding.
func Decode(provider, model string, dim int) Binding {
	if model == "" || model == Placeholder || dim <= 0 {
		return Unbound()
	}
	return Binding{provider: provider, model: model, dim: dim}
}

// Encode returns the persisted (provider, model, dim) columns.
func (b Binding) Encode() (string, string, int) {
	if !b.IsBound() {
		return "", Placeholder, 0
	}
	return b.provider, b.model, b.dim
}

// IsBound reports whether the binding carries a model.
func (b Binding) IsBound() bool { return b.model != "" }

// Model returns the bound model and whether the binding is bound.
func (b Binding) Model() (string, bool) { return b.model, b.IsBound() }

// Dimensions returns the bound dimension and whether the binding is bound.
func (b Binding) Dimensions() (int, bool) { return b.dim, b.IsBound() }

// Provider returns the provider the collection was embedded with, "" when
// unbound or unknown.
func (b Binding) Provider() string { return b.provider }

// Resolve checks a requested model/dim override against the binding and returns
// the effective pair. Empty model or zero dim means "no override". An unbound
// binding requires an explicit model; its dimension may stay 0 (learned from the
// first embedding). A bound binding rejects disagreeing overrides.
func (b Binding) Resolve(model string, dim int) (string, int, error) {
	if !b.IsBound() {
		if model == "" {
			return "", 0, domain.ErrCollectionUnbound
		}
		return model, dim, nil
	}
	if model != "" && model != b.model {
		return "", 0, fmt.Errorf("collection is bound to %q, request uses %q: %w",
			b.model, model, domain.ErrModelConflict)
	}
	if dim > 0 && dim != b.dim {
		return "", 0, domain.NewDimensionError(b.dim, dim)
	}
	return b.model, b.dim, nil
}

// ResolveProvider checks a requested provider against the binding and
// returns the effective one. A recorded provider wins over an empty request
// and rejects a different one.
func (b Binding) ResolveProvider(provider string) (string, error) {
	if b.provider == "" {
		return provider, nil
	}
	if provider != "" && provider != b.provider {
		return "", fmt.Errorf("collection is bound to provider %q, request uses %q: %w",
			b.provider, provider, domain.ErrModelConflict)
	}
	return b.provider, nil
}

// String renders the binding for logs.
func (b Binding) String() string {
	switch {
	case !b.IsBound():
		return "unbound"
	case b.provider == "":
		return fmt.Sprintf("%s/%d", b.model, b.dim)
	default:
		return fmt.Sprintf("%s:%s/%d", b.provider, b.model, b.dim)
	}
}
