package search

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
	"github.com/kailas-cloud/ragstore/internal/domain/search/mode"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

func mustRequest(t *testing.T, query string, m mode.Mode, topK int, alpha *float64, model string, dims int) request.Request {
	t.Helper()
	req, err := request.New(query, m, topK, alpha, model, dims)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return req
}

func TestSearch_KeywordReturnsOnlyMatches(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())

	res, err := env.svc.Search(context.Background(), "demo", mustRequest(t, "glucose", mode.Keyword, 10, nil, "", 0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Key() != "k1" {
		t.Fatalf("expected only k1, got %v", res)
	}
	if res[0].Score() != 1.0 || res[0].KeywordScore() == nil || *res[0].KeywordScore() != 1.0 {
		t.Errorf("keyword hit must score exactly 1.0, got %v", res[0].Score())
	}
	if res[0].EmbeddingScore() != nil {
		t.Error("keyword mode must not set an embedding sub-score")
	}
	if env.embedder.calls != 0 {
		t.Error("keyword mode must not embed the query")
	}
}

func TestSearch_EmbeddingRanksRelatedDocumentFirst(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())

	res, err := env.svc.Search(context.Background(), "demo",
		mustRequest(t, "blood sugar control", mode.Embedding, 10, nil, "", 0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(res))
	}
	if res[0].Key() != "k1" || res[0].Score() <= res[1].Score() {
		t.Errorf("expected k1 above k2, got %s(%v) %s(%v)",
			res[0].Key(), res[0].Score(), res[1].Key(), res[1].Score())
	}
	if res[0].Text() != "insulin regulates glucose" {
		t.Errorf("hit not hydrated: %q", res[0].Text())
	}
	if env.resolver.lastModel != "concept-4" {
		t.Errorf("query embedded with %q, want the bound model", env.resolver.lastModel)
	}
	if env.searcher.topK != 10 {
		t.Errorf("embedding mode fetched %d candidates, want 10", env.searcher.topK)
	}
}

func TestSearch_HybridEqualScores(t *testing.T) {
	env := newEnv(t)
	env.embedder.fixed["piano keys"] = []float32{0, 0, 0, 1}
	env.seed(t, "demo", []document.Row{
		{Key: "a", Text: "piano keys"},
		{Key: "b", Text: "violin"},
	})

	res, err := env.svc.Search(context.Background(), "demo",
		mustRequest(t, "piano", mode.Hybrid, 1, ptr(0.5), "", 0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Score() != 0.5 {
		t.Fatalf("expected one hit scoring 0.5, got %v", res)
	}
	if env.searcher.topK != 2 {
		t.Errorf("hybrid must over-fetch 2*top_k, got %d", env.searcher.topK)
	}

	both, err := env.svc.Search(context.Background(), "demo",
		mustRequest(t, "piano", mode.Hybrid, 2, ptr(0.5), "", 0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(both) != 2 || both[0].Score() != both[1].Score() {
		t.Fatalf("expected two equal scores, got %v", both)
	}
}

func TestSearch_HybridAlphaOneIsEmbeddingOrder(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())

	res, err := env.svc.Search(context.Background(), "demo",
		mustRequest(t, "metformin", mode.Hybrid, 10, ptr(1), "", 0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range res {
		if r.EmbeddingScore() == nil || r.Score() != *r.EmbeddingScore() {
			t.Errorf("alpha=1: %s score %v must equal its embedding score", r.Key(), r.Score())
		}
	}
	if res[0].Key() != "k2" {
		t.Errorf("expected k2 first, got %s", res[0].Key())
	}
}

func TestSearch_OverrideConflicts(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())
	ctx := context.Background()

	_, err := env.svc.Search(ctx, "demo", mustRequest(t, "glucose", mode.Embedding, 5, nil, "other-model", 0))
	if !errors.Is(err, domain.ErrModelConflict) {
		t.Errorf("expected ErrModelConflict, got %v", err)
	}
	_, err = env.svc.Search(ctx, "demo", mustRequest(t, "glucose", mode.Keyword, 5, nil, "", 8))
	var de *domain.DimensionError
	if !errors.As(err, &de) || de.Expected != conceptDim {
		t.Errorf("expected dimension error in keyword mode too, got %v", err)
	}
	if _, err := env.svc.Search(ctx, "demo", mustRequest(t, "glucose", mode.Hybrid, 5, nil, "concept-4", 4)); err != nil {
		t.Errorf("matching overrides must pass: %v", err)
	}
}

func TestSearch_EmbedsWithBoundProvider(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())
	ctx := context.Background()

	if _, err := env.svc.Search(ctx, "demo", mustRequest(t, "glucose", mode.Embedding, 5, nil, "", 0)); err != nil {
		t.Fatalf("search: %v", err)
	}
	if env.resolver.lastProvider != "concept" || env.resolver.lastModel != "concept-4" {
		t.Fatalf("query embedded with %s/%s, want concept/concept-4",
			env.resolver.lastProvider, env.resolver.lastModel)
	}

	req := mustRequest(t, "glucose", mode.Hybrid, 5, nil, "", 0).WithProvider("concept")
	if _, err := env.svc.Search(ctx, "demo", req); err != nil {
		t.Errorf("matching provider must pass: %v", err)
	}
	env.resolver.lastProvider = ""
	req = mustRequest(t, "glucose", mode.Keyword, 5, nil, "", 0).WithProvider("openai")
	if _, err := env.svc.Search(ctx, "demo", req); !errors.Is(err, domain.ErrModelConflict) {
		t.Errorf("expected ErrModelConflict for another provider, got %v", err)
	}
	if env.resolver.lastProvider != "" {
		t.Error("conflicting provider must fail before resolving an embedder")
	}
}

func TestSearch_UnboundCollection(t *testing.T) {
	env := newEnv(t)
	env.seedUnbound(t, "raw", demoRows())
	ctx := context.Background()

	_, err := env.svc.Search(ctx, "raw", mustRequest(t, "glucose", mode.Embedding, 5, nil, "", 0))
	if !errors.Is(err, domain.ErrCollectionUnbound) {
		t.Fatalf("expected ErrCollectionUnbound, got %v", err)
	}
	if env.embedder.calls != 0 {
		t.Error("unbound collection must fail before embedding")
	}

	res, err := env.svc.Search(ctx, "raw", mustRequest(t, "glucose", mode.Keyword, 5, nil, "", 0))
	if err != nil || len(res) != 1 {
		t.Fatalf("keyword search on unbound collection: %v, %v", res, err)
	}

	res, err = env.svc.Search(ctx, "raw", mustRequest(t, "glucose", mode.Embedding, 5, nil, "concept-4", 0))
	if err != nil {
		t.Fatalf("explicit model on unbound collection: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("no vectors yet, expected no hits, got %d", len(res))
	}
}

func TestSearch_MissingCollection(t *testing.T) {
	env := newEnv(t)
	_, err := env.svc.Search(context.Background(), "nope", mustRequest(t, "x", mode.Keyword, 5, nil, "", 0))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())
	env.embedder.dim = 3

	_, err := env.svc.Search(context.Background(), "demo", mustRequest(t, "glucose", mode.Embedding, 5, nil, "", 0))
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestSearch_EmbedderErrors(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())
	ctx := context.Background()

	env.embedder.err = domain.ErrEmbeddingQuotaExceeded
	_, err := env.svc.Search(ctx, "demo", mustRequest(t, "glucose", mode.Hybrid, 5, nil, "", 0))
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Errorf("expected quota error, got %v", err)
	}

	env.embedder.err = nil
	env.resolver.err = domain.NewConfigurationError("embedding.provider", "unknown")
	_, err = env.svc.Search(ctx, "demo", mustRequest(t, "glucose", mode.Embedding, 5, nil, "", 0))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSearch_Metrics(t *testing.T) {
	env := newEnv(t)
	env.seed(t, "demo", demoRows())
	ctx := context.Background()

	ok := metrics.SearchRequestsTotal.WithLabelValues("keyword", "ok")
	failed := metrics.SearchRequestsTotal.WithLabelValues("keyword", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	_, _ = env.svc.Search(ctx, "demo", mustRequest(t, "glucose", mode.Keyword, 5, nil, "", 0))
	_, _ = env.svc.Search(ctx, "missing", mustRequest(t, "glucose", mode.Keyword, 5, nil, "", 0))

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Errorf("ok delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failed) - failedBefore; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}
