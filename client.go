// Package ragstore is the embedded Go API of the hybrid retrieval engine:
// per-collection SQLite content stores, flat inner-product vector indexes on
// disk, and keyword, embedding, or hybrid search over both.
package ragstore

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragstore/internal/config"
	"github.com/kailas-cloud/ragstore/internal/db/sqlite"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/search/mode"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
	"github.com/kailas-cloud/ragstore/internal/provider"
	pipelineuc "github.com/kailas-cloud/ragstore/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/ragstore/internal/usecase/search"
	"github.com/kailas-cloud/ragstore/internal/vecindex"
)

const defaultBusyTimeout = 5 * time.Second

// Client is the ragstore entry point. It is safe for concurrent use.
type Client struct {
	stores   *sqlite.Registry
	pipeline *pipelineuc.Service
	search   *searchuc.Service
	obs      *observer
}

// Open creates a Client over a data directory.
func Open(opts ...Option) (*Client, error) {
	cc := &clientConfig{dataDir: "data"}
	for _, o := range opts {
		o.apply(cc)
	}

	cfg := config.Config{
		HTTP:      config.HTTPConfig{Port: 1},
		Storage:   config.StorageConfig{DataDir: cc.dataDir},
		Embedding: cc.embedding,
		Index:     config.IndexConfig{Eviction: cc.eviction, LRUSize: cc.lruSize},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ragstore: %w: %w", domain.ErrConfiguration, err)
	}

	obs, err := newObserver(cc.logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	stores, err := sqlite.NewRegistry(cfg.Storage.DataDir, defaultBusyTimeout, nil)
	if err != nil {
		return nil, fmt.Errorf("ragstore: %w", err)
	}

	var policy vecindex.EvictionPolicy
	if cfg.Index.Eviction == "lru" {
		policy = vecindex.LRU(cfg.Index.LRUSize)
	}
	index := vecindex.NewManager(cfg.Storage.DataDir, vecindex.NewCache(policy))
	registry := provider.NewRegistry(cfg.Embedding, nil)
	if cc.embedder == nil {
		// Missing credentials of the default provider fail here, not at the first build.
		if _, err := registry.Default(context.Background()); err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("ragstore: %w", err)
		}
	}
	embedders := newResolver(cc.embedder, registry)

	return &Client{
		stores:   stores,
		pipeline: pipelineuc.New(stores, index, embedders),
		search:   searchuc.New(stores, index, embedders),
		obs:      obs,
	}, nil
}

// Close closes every opened collection database.
func (c *Client) Close() error {
	if err := c.stores.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Build ingests docs into a collection and embeds every row not yet in its
// index. Rebuilding with the same docs is a no-op.
func (c *Client) Build(ctx context.Context, collection string, docs []Document, opts ...BuildOption) (
	res BuildResult, err error,
) {
	start := time.Now()
	defer func() { c.obs.observe("build", collection, start, err) }()

	var bc buildConfig
	for _, o := range opts {
		o(&bc)
	}
	ctx, usage := domain.NewContextWithUsage(ctx)
	out, err := c.pipeline.Build(ctx, pipelineuc.BuildRequest{
		Collection:  collection,
		Description: bc.description,
		Docs:        toRows(docs),
		Provider:    bc.provider,
		Model:       bc.model,
		Overwrite:   bc.overwrite,
	})
	if err != nil {
		return BuildResult{}, fmt.Errorf("build: %w", err)
	}
	return BuildResult{
		Collection: out.Collection,
		Inserted:   out.Inserted,
		Skipped:    out.Skipped,
		Embedded:   out.Embedded,
		Provider:   out.Provider,
		Model:      out.Model,
		Dimensions: out.Dimensions,
		Tokens:     usage.TotalTokens,
	}, nil
}

// Register stores docs without embedding them. A new collection stays
// unbound until the first Build or AddVectors.
func (c *Client) Register(ctx context.Context, collection, description string, docs []Document) (
	res RegisterResult, err error,
) {
	start := time.Now()
	defer func() { c.obs.observe("register", collection, start, err) }()

	out, err := c.pipeline.Register(ctx, collection, description, toRows(docs))
	if err != nil {
		return RegisterResult{}, fmt.Errorf("register: %w", err)
	}
	return RegisterResult{Collection: out.Collection, Inserted: out.Inserted, Skipped: out.Skipped}, nil
}

// AddVectors ingests vectors computed outside ragstore by model.
func (c *Client) AddVectors(ctx context.Context, collection, model string, items []VectorItem) (
	res AddVectorsResult, err error,
) {
	start := time.Now()
	defer func() { c.obs.observe("add_vectors", collection, start, err) }()

	out, err := c.pipeline.AddVectors(ctx, pipelineuc.AddVectorsRequest{
		Collection: collection,
		Model:      model,
		Items:      toVectorItems(items),
	})
	if err != nil {
		return AddVectorsResult{}, fmt.Errorf("add vectors: %w", err)
	}
	return AddVectorsResult{
		Collection: out.Collection,
		Inserted:   out.Inserted,
		Added:      out.Added,
		Skipped:    out.Skipped,
		Model:      out.Model,
		Dimensions: out.Dimensions,
	}, nil
}

// SearchOptions configures a search. Zero values select hybrid search,
// top 10 and alpha 0.5.
type SearchOptions struct {
	Method SearchMethod
	TopK   int
	// Alpha weights the embedding score in hybrid search; nil means 0.5.
	Alpha *float64
	// Provider, Model and Dimensions must match the collection binding when
	// set. The query is embedded with the bound provider otherwise.
	Provider   string
	Model      string
	Dimensions int
}

// Search ranks a collection's documents against query.
func (c *Client) Search(ctx context.Context, collection, query string, opts *SearchOptions) (
	hits []Hit, err error,
) {
	start := time.Now()
	defer func() { c.obs.observe("search", collection, start, err) }()

	if opts == nil {
		opts = &SearchOptions{}
	}
	req, err := request.New(query, mode.Mode(opts.Method), opts.TopK, opts.Alpha, opts.Model, opts.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results, err := c.search.Search(ctx, collection, req.WithProvider(opts.Provider))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return fromResults(results), nil
}

// Collection returns the stored collection.
func (c *Client) Collection(ctx context.Context, name string) (CollectionInfo, error) {
	col, err := c.pipeline.Collection(ctx, name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("collection: %w", err)
	}
	return fromCollection(col), nil
}

// Collections lists every collection in the data directory.
func (c *Client) Collections(ctx context.Context) ([]CollectionInfo, error) {
	cols, err := c.pipeline.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("collections: %w", err)
	}
	out := make([]CollectionInfo, len(cols))
	for i, col := range cols {
		out[i] = fromCollection(col)
	}
	return out, nil
}

// Documents returns stored rows, restricted to keys when given. limit <= 0
// returns every match.
func (c *Client) Documents(ctx context.Context, collection string, keys []string, limit int) (
	[]StoredDocument, error,
) {
	docs, err := c.pipeline.Documents(ctx, collection, keys, limit)
	if err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	return fromDocuments(docs), nil
}

// Paths returns the database and index files of a collection. The files
// may not exist yet.
func (c *Client) Paths(collection string) (Paths, error) {
	p, err := c.pipeline.Paths(collection)
	if err != nil {
		return Paths{}, fmt.Errorf("paths: %w", err)
	}
	return Paths{DB: p.DB, Index: p.Index}, nil
}

// Ping checks every opened collection database.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.stores.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
