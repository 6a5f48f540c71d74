package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/config"
	"github.com/kailas-cloud/ragstore/internal/domain"
)

func defaultCfg() config.EmbeddingConfig {
	c := config.Config{HTTP: config.HTTPConfig{Port: 1}}
	c.ApplyDefaults()
	return c.Embedding
}

func TestRegistry_DefaultHashing(t *testing.T) {
	cfg := defaultCfg()
	cfg.Dimensions = 32
	r := NewRegistry(cfg, nil)

	s, err := r.Default(context.Background())
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if s.Provider() != "hashing" || s.Model() != "hashing-32" {
		t.Fatalf("unexpected service: %s/%s", s.Provider(), s.Model())
	}
	vecs, err := s.Embed(context.Background(), "a b c", "d")
	if err != nil || len(vecs) != 2 || len(vecs[0]) != 32 {
		t.Fatalf("Embed() = %d vectors, %v", len(vecs), err)
	}

	again, _ := r.Resolve(context.Background(), "hashing", "hashing-32")
	if again != s {
		t.Error("expected the cached service for the resolved model name")
	}
	if err := r.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestRegistry_HashingModelSetsDimension(t *testing.T) {
	r := NewRegistry(defaultCfg(), nil)
	s, err := r.Resolve(context.Background(), "hashing", "hashing-16")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v, _ := s.EmbedOne(context.Background(), "x")
	if len(v) != 16 {
		t.Fatalf("dim = %d, want 16", len(v))
	}
	if _, err := r.Resolve(context.Background(), "hashing", "bogus"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestRegistry_ConfigurationErrors(t *testing.T) {
	cfg := defaultCfg()
	cfg.Providers["openai"] = config.ProviderConfig{}
	r := NewRegistry(cfg, nil)

	if _, err := r.Resolve(context.Background(), "openai", "text-embedding-3-small"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("missing key: expected ErrConfiguration, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "cohere", ""); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("unknown provider: expected ErrConfiguration, got %v", err)
	}
}

type stubBackend struct{ model string }

func (s stubBackend) Provider() string { return "stub" }
func (s stubBackend) Model() string    { return s.model }
func (s stubBackend) Remote() bool     { return false }
func (s stubBackend) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: 10}, nil
}
func (s stubBackend) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: 10 * len(texts)}, nil
}

func TestRegistry_BudgetEnforced(t *testing.T) {
	cfg := defaultCfg()
	cfg.Provider = "stub"
	cfg.Providers["stub"] = config.ProviderConfig{Budget: config.BudgetConfig{DailyTokenLimit: 15, Action: "reject"}}
	calls := 0
	r := NewRegistry(cfg, nil, WithBackend(func(_, model string) (domain.EmbeddingBackend, error) {
		calls++
		return stubBackend{model: model}, nil
	}))

	s, err := r.Resolve(context.Background(), "", "m1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := s.Embed(context.Background(), "a", "b"); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if _, err := s.Embed(context.Background(), "c"); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if bt := r.Budgets()["stub"]; bt == nil || bt.DailyUsed() != 20 {
		t.Fatalf("unexpected budget tracker: %+v", bt)
	}

	if _, err := r.Resolve(context.Background(), "stub", "m2"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected one backend per model, got %d", calls)
	}
}

func TestRegistry_EmbedderInfersHashingProvider(t *testing.T) {
	cfg := defaultCfg()
	cfg.Provider = "openai"
	cfg.Providers = map[string]config.ProviderConfig{"openai": {APIKey: "sk-test"}}
	r := NewRegistry(cfg, nil)

	e, err := r.Embedder(context.Background(), "", "hashing-16")
	if err != nil {
		t.Fatalf("Embedder: %v", err)
	}
	if e.Provider() != "hashing" || e.Model() != "hashing-16" {
		t.Fatalf("unexpected embedder: %s/%s", e.Provider(), e.Model())
	}
}
