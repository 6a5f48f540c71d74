package pipeline

import (
	"context"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/collection"
	"github.com/kailas-cloud/ragstore/internal/vecindex"
)

// Stores opens per-collection content stores.
type Stores interface {
	Open(ctx context.Context, name string) (db.ContentStore, error)
	Existing(ctx context.Context, name string) (db.ContentStore, error)
	List(ctx context.Context) ([]collection.Collection, error)
	Path(name string) (string, error)
}

// VectorIndex appends vectors to per-collection index files.
type VectorIndex interface {
	Load(ctx context.Context, name string, dim int, reset bool) (*vecindex.Flat, error)
	Append(
		ctx context.Context, f *vecindex.Flat, name string, ids []int64, vectors [][]float32,
		rec vecindex.PositionRecorder,
	) (*vecindex.Receipt, error)
	Path(name string) string
	Evict(name string)
}

// EmbedderResolver returns the embedder for a provider and model.
// Empty values select the configured defaults.
type EmbedderResolver interface {
	Embedder(ctx context.Context, provider, model string) (domain.TextEmbedder, error)
}
