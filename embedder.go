package ragstore

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragstore/internal/domain"
	embeddinguc "github.com/kailas-cloud/ragstore/internal/usecase/embedding"
)

// CustomProvider is the provider name reported for an Embedder passed to WithEmbedder.
const CustomProvider = "custom"

// Embedder turns texts into vectors, one per text and in order. Model names
// the vector space; collections built with an Embedder are bound to it.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedFunc adapts a function to Embedder.
func EmbedFunc(model string, fn func(ctx context.Context, texts []string) ([][]float32, error)) Embedder {
	return funcEmbedder{model: model, fn: fn}
}

type funcEmbedder struct {
	model string
	fn    func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f funcEmbedder) Model() string { return f.model }

func (f funcEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.fn(ctx, texts)
}

// embedderBackend wraps a public Embedder as a local embedding backend.
type embedderBackend struct {
	inner Embedder
}

var _ domain.EmbeddingBackend = (*embedderBackend)(nil)

func (b *embedderBackend) Provider() string { return CustomProvider }
func (b *embedderBackend) Model() string    { return b.inner.Model() }
func (b *embedderBackend) Remote() bool     { return false }

func (b *embedderBackend) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := b.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

func (b *embedderBackend) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	vecs, err := b.inner.Embed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(vecs) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d vectors for %d texts: %w",
			len(vecs), len(texts), domain.ErrEmbeddingProviderError)
	}
	return domain.BatchEmbeddingResult{Embeddings: vecs}, nil
}

// embedderResolver is the built-in provider registry.
type embedderResolver interface {
	Embedder(ctx context.Context, provider, model string) (domain.TextEmbedder, error)
}

// resolver serves the custom embedder for its own model and delegates the rest.
type resolver struct {
	custom   *embeddinguc.Service
	fallback embedderResolver
}

func newResolver(custom Embedder, fallback embedderResolver) *resolver {
	r := &resolver{fallback: fallback}
	if custom != nil {
		r.custom = embeddinguc.NewService(nil, &embedderBackend{inner: custom}, embeddinguc.Config{})
	}
	return r
}

func (r *resolver) Embedder(ctx context.Context, provider, model string) (domain.TextEmbedder, error) {
	if r.custom != nil && (provider == "" || provider == CustomProvider) &&
		(model == "" || model == r.custom.Model()) {
		return r.custom, nil
	}
	if provider == CustomProvider {
		return nil, domain.NewConfigurationError("embedding.model",
			fmt.Sprintf("custom embedder serves %q, not %q", r.customModel(), model))
	}
	e, err := r.fallback.Embedder(ctx, provider, model)
	if err != nil {
		return nil, fmt.Errorf("resolve embedder: %w", err)
	}
	return e, nil
}

func (r *resolver) customModel() string {
	if r.custom == nil {
		return ""
	}
	return r.custom.Model()
}
