package db

import (
	"context"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain/collection"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
)

// ContentStore is the relational + keyword facade over one collection's database.
//
//nolint:interfacebloat // consumers depend on the narrow sub-interfaces
type ContentStore interface {
	Pinger
	CollectionStore
	DocumentStore
	KeywordSearcher
	VectorBookkeeper
	WithTx(ctx context.Context, fn func(tx ContentStore) error) error
	Close() error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CollectionStore persists collection metadata.
type CollectionStore interface {
	UpsertCollection(ctx context.Context, c collection.Collection) (collection.Collection, error)
	GetCollection(ctx context.Context, name string) (collection.Collection, error)
	ListCollections(ctx context.Context) ([]collection.Collection, error)
}

// DocumentStore persists append-only document rows.
type DocumentStore interface {
	InsertDocuments(ctx context.Context, coll string, rows []document.Row) (int, error)
	FetchDocuments(ctx context.Context, coll string, keys []string, limit int) ([]document.Document, error)
	FetchUnembedded(ctx context.Context, coll string) ([]document.Document, error)
	FetchByIDs(ctx context.Context, coll string, ids []int64) ([]document.Document, error)
}

// KeywordHit is a full-text match. Score is always KeywordScore.
type KeywordHit struct {
	Document document.Document
	Score    float64
}

// KeywordScore is the fixed score of every keyword hit.
const KeywordScore = 1.0

// KeywordSearcher runs sanitized full-text queries.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, coll, query string, limit int, useNormalized bool) ([]KeywordHit, error)
}

// VectorBookkeeper maps document ids to vector index positions.
type VectorBookkeeper interface {
	RecordPositions(ctx context.Context, coll string, ids []int64, start int) error
	ResolvePositions(ctx context.Context, coll string, positions []int) (map[int]int64, error)
	ClearVectors(ctx context.Context, coll string) error
	VectorCount(ctx context.Context, coll string) (int, error)
}

// KVStore is the shared key-value backend of the embedding cache and
// budget counters.
type KVStore interface {
	Pinger
	Get(ctx context.Context, key string) ([]byte, error)
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrWithExpiry(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}
