package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	domcol "github.com/kailas-cloud/ragstore/internal/domain/collection"
	"github.com/kailas-cloud/ragstore/internal/domain/search/mode"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
	"github.com/kailas-cloud/ragstore/internal/domain/search/result"
	"github.com/kailas-cloud/ragstore/internal/logger"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

// Service handles collection search across keyword, embedding, and hybrid modes.
type Service struct {
	stores    Stores
	vectors   VectorSearcher
	embedders EmbedderResolver
}

// New creates a search service.
func New(stores Stores, vectors VectorSearcher, embedders EmbedderResolver) *Service {
	return &Service{stores: stores, vectors: vectors, embedders: embedders}
}

// Search runs req against a collection. Model and dimension overrides that
// disagree with a bound collection fail before any search runs.
func (s *Service) Search(ctx context.Context, collectionName string, req request.Request) ([]result.Result, error) {
	start := time.Now()
	method := string(req.Mode())
	ctx = logger.With(ctx, zap.String("collection", collectionName))

	results, err := s.search(ctx, collectionName, req)

	metrics.SearchDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(method, status).Inc()

	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("search completed",
		zap.String("method", method),
		zap.Int("top_k", req.TopK()),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func (s *Service) search(ctx context.Context, collectionName string, req request.Request) ([]result.Result, error) {
	store, err := s.stores.Existing(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	col, err := store.GetCollection(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if err := checkOverrides(col, req); err != nil {
		return nil, err
	}

	switch req.Mode() {
	case mode.Keyword:
		return s.searchKeyword(ctx, store, collectionName, req.Query(), req.TopK())
	case mode.Embedding:
		return s.searchEmbedding(ctx, store, col, req, req.TopK())
	case mode.Hybrid:
		return s.searchHybrid(ctx, store, col, req)
	default:
		return nil, fmt.Errorf("unsupported search method %q: %w", req.Mode(), domain.ErrInvalidRequest)
	}
}

// checkOverrides rejects overrides that disagree with a bound collection,
// whatever the mode.
func checkOverrides(col domcol.Collection, req request.Request) error {
	if !col.Binding().IsBound() {
		return nil
	}
	if _, err := col.Binding().ResolveProvider(req.Provider()); err != nil {
		return err
	}
	if req.Model() == "" && req.Dimensions() == 0 {
		return nil
	}
	_, _, err := col.Binding().Resolve(req.Model(), req.Dimensions())
	return err
}

// searchKeyword runs full-text search over normalized text. Every hit scores 1.0.
func (s *Service) searchKeyword(
	ctx context.Context, store db.ContentStore, collectionName, query string, limit int,
) ([]result.Result, error) {
	hits, err := store.SearchKeyword(ctx, collectionName, query, limit, true)
	if err != nil {
		return nil, fmt.Errorf("search keyword: %w", err)
	}
	out := make([]result.Result, len(hits))
	for i, h := range hits {
		kw := h.Score
		out[i] = result.New(h.Document, h.Score).WithSubScores(&kw, nil)
	}
	return out, nil
}

// searchEmbedding embeds the query with the collection's provider and model,
// normalizes it and returns hydrated hits in index order.
func (s *Service) searchEmbedding(
	ctx context.Context, store db.ContentStore, col domcol.Collection, req request.Request, limit int,
) ([]result.Result, error) {
	model, dim, err := col.Binding().Resolve(req.Model(), req.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", col.Name(), err)
	}
	provider, err := col.Binding().ResolveProvider(req.Provider())
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", col.Name(), err)
	}
	embedder, err := s.embedders.Embedder(ctx, provider, model)
	if err != nil {
		return nil, fmt.Errorf("resolve embedder: %w", err)
	}
	vecs, err := embedder.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("vectorize query: got %d vectors: %w", len(vecs), domain.ErrEmbeddingProviderError)
	}
	query := vecs[0]
	if dim > 0 && len(query) != dim {
		return nil, domain.NewDimensionError(dim, len(query))
	}

	matches, err := s.vectors.Search(ctx, col.Name(), domain.Normalize(query), limit, store)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.DocID
	}
	docs, err := store.FetchByIDs(ctx, col.Name(), ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate hits: %w", err)
	}
	byID := make(map[int64]int, len(docs))
	for i, d := range docs {
		byID[d.ID()] = i
	}

	out := make([]result.Result, 0, len(matches))
	for _, m := range matches {
		i, ok := byID[m.DocID]
		if !ok {
			continue
		}
		emb := m.Score
		out = append(out, result.New(docs[i], m.Score).WithSubScores(nil, &emb))
	}
	return out, nil
}

// searchHybrid over-fetches both sides and fuses them with weight alpha on
// the embedding score.
func (s *Service) searchHybrid(
	ctx context.Context, store db.ContentStore, col domcol.Collection, req request.Request,
) ([]result.Result, error) {
	keyword, err := s.searchKeyword(ctx, store, col.Name(), req.Query(), req.CandidateK())
	if err != nil {
		return nil, err
	}
	embedding, err := s.searchEmbedding(ctx, store, col, req, req.CandidateK())
	if err != nil {
		return nil, err
	}
	return fuse(keyword, embedding, req.Alpha(), req.TopK()), nil
}
