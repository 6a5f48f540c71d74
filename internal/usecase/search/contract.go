package search

import (
	"context"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/vecindex"
)

// Stores opens the content store of an existing collection.
type Stores interface {
	Existing(ctx context.Context, name string) (db.ContentStore, error)
}

// VectorSearcher runs nearest-neighbour queries against a collection's index.
type VectorSearcher interface {
	Search(
		ctx context.Context, name string, query []float32, topK int, res vecindex.PositionResolver,
	) ([]vecindex.Match, error)
}

// EmbedderResolver returns the embedder for a provider and model.
// Empty values select the configured defaults.
type EmbedderResolver interface {
	Embedder(ctx context.Context, provider, model string) (domain.TextEmbedder, error)
}
