// Package provider builds embedding services from configuration, one per
// (provider, model) pair, each wrapped in the cache, budget and metrics
// decorators.
package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/config"
	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/metrics"
	"github.com/kailas-cloud/ragstore/internal/repository/budget"
	"github.com/kailas-cloud/ragstore/internal/repository/embcache"
	"github.com/kailas-cloud/ragstore/internal/transport/hashing"
	"github.com/kailas-cloud/ragstore/internal/transport/ollama"
	"github.com/kailas-cloud/ragstore/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/ragstore/internal/usecase/embedding"
)

// Backend constructs the innermost embedder for a provider and model.
type Backend func(name, model string) (domain.EmbeddingBackend, error)

// Registry resolves embedding services by provider and model.
type Registry struct {
	cfg     config.EmbeddingConfig
	kv      db.KVStore // nil disables cache and budget persistence
	ttl     time.Duration
	backend Backend
	logger  *zap.Logger

	mu       sync.Mutex
	services map[string]*embeddinguc.Service
	budgets  map[string]*embeddinguc.BudgetTracker
}

// Option customizes a Registry.
type Option func(*Registry)

// WithKV enables the shared embedding cache and budget persistence.
func WithKV(kv db.KVStore, ttl time.Duration) Option {
	return func(r *Registry) {
		r.kv = kv
		r.ttl = ttl
	}
}

// WithBackend replaces the backend constructor.
func WithBackend(b Backend) Option {
	return func(r *Registry) { r.backend = b }
}

// NewRegistry creates a registry over the embedding configuration.
func NewRegistry(cfg config.EmbeddingConfig, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]*embeddinguc.Service),
		budgets:  make(map[string]*embeddinguc.BudgetTracker),
	}
	r.backend = r.newBackend
	for _, o := range opts {
		o(r)
	}
	return r
}

// Default returns the service of the configured provider and model.
func (r *Registry) Default(ctx context.Context) (*embeddinguc.Service, error) {
	return r.Resolve(ctx, "", "")
}

// Resolve returns the service for a provider and model, building it on first
// use. Empty values fall back to the configured defaults. Unknown providers
// and missing credentials are configuration errors.
func (r *Registry) Resolve(ctx context.Context, name, model string) (*embeddinguc.Service, error) {
	if name == "" {
		name = r.cfg.Provider
	}
	if model == "" && name == r.cfg.Provider {
		model = r.cfg.Model
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := name + "\x00" + model
	if s, ok := r.services[key]; ok {
		return s, nil
	}

	backend, err := r.backend(name, model)
	if err != nil {
		return nil, err
	}

	var chain domain.Embedder = backend
	if r.kv != nil {
		chain = embcache.New(chain, backend.Model(), r.kv, r.ttl, metrics.EmbeddingCacheTotal, r.logger)
	}
	var checker embeddinguc.BudgetChecker
	if bt := r.budget(ctx, name); bt != nil {
		checker = bt
	}
	chain = embeddinguc.NewInstrumentedEmbedder(chain, backend.Provider(), backend.Model(), checker, r.logger)

	s := embeddinguc.NewService(chain, backend, embeddinguc.Config{
		BatchSize: r.cfg.BatchSize,
		Backoff: embeddinguc.Backoff{
			MaxRetries: r.cfg.MaxRetries,
			Base:       time.Duration(r.cfg.RetryBaseMS) * time.Millisecond,
			Max:        time.Duration(r.cfg.RetryMaxMS) * time.Millisecond,
		},
	})
	r.services[key] = s
	// An empty model resolves to the backend default; cache that key too.
	r.services[name+"\x00"+backend.Model()] = s
	r.logger.Info("Embedding service ready",
		zap.String("provider", backend.Provider()),
		zap.String("model", backend.Model()),
		zap.Bool("remote", backend.Remote()),
	)
	return s, nil
}

// Embedder is Resolve behind the use-case contract. A "hashing-<dim>" model
// without a provider selects the hashing backend, so collections built
// offline stay searchable under any default provider.
func (r *Registry) Embedder(ctx context.Context, name, model string) (domain.TextEmbedder, error) {
	if name == "" && strings.HasPrefix(model, hashing.Provider+"-") {
		name = hashing.Provider
	}
	s, err := r.Resolve(ctx, name, model)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// HealthCheck checks the default provider.
func (r *Registry) HealthCheck(ctx context.Context) error {
	s, err := r.Default(ctx)
	if err != nil {
		return err
	}
	return s.HealthCheck(ctx)
}

// Budgets returns the trackers created so far, by provider.
func (r *Registry) Budgets() map[string]domain.BudgetReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.BudgetReader, len(r.budgets))
	for k, v := range r.budgets {
		out[k] = v
	}
	return out
}

// budget returns the provider's tracker, or nil when the provider has no limits.
// Callers hold r.mu.
func (r *Registry) budget(ctx context.Context, name string) *embeddinguc.BudgetTracker {
	if bt, ok := r.budgets[name]; ok {
		return bt
	}
	bc := r.cfg.Providers[name].Budget
	if bc.DailyTokenLimit == 0 && bc.MonthlyTokenLimit == 0 {
		return nil
	}
	action := embeddinguc.BudgetActionWarn
	if bc.Action == string(embeddinguc.BudgetActionReject) {
		action = embeddinguc.BudgetActionReject
	}
	bt := embeddinguc.NewBudgetTracker(name, bc.DailyTokenLimit, bc.MonthlyTokenLimit, action, r.logger)
	if r.kv != nil {
		bt.WithStore(ctx, budget.New(r.kv, 0, 0))
	}
	r.budgets[name] = bt
	return bt
}

func (r *Registry) newBackend(name, model string) (domain.EmbeddingBackend, error) {
	p := r.cfg.Providers[name]
	timeout := time.Duration(r.cfg.TimeoutSec) * time.Second

	switch name {
	case openai.ProviderOpenAI, openai.ProviderAzure:
		return openai.NewEmbedder(&openai.Config{
			Provider:   name,
			APIKey:     p.APIKey,
			BaseURL:    p.BaseURL,
			Model:      model,
			Dimensions: r.cfg.Dimensions,
			APIVersion: p.APIVersion,
			Deployment: p.Deployment,
			Timeout:    timeout,
		})
	case ollama.Provider:
		return ollama.NewEmbedder(ollama.Config{BaseURL: p.BaseURL, Model: model, Timeout: timeout}), nil
	case hashing.Provider:
		dim, err := hashingDim(model, r.cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		return hashing.NewEmbedder(dim), nil
	default:
		return nil, domain.NewConfigurationError("embedding.provider", fmt.Sprintf("unknown provider %q", name))
	}
}

// hashingDim reads the dimension out of a "hashing-<dim>" model name.
func hashingDim(model string, fallback int) (int, error) {
	if model == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(model, hashing.Provider+"-"))
	if err != nil || n <= 0 || !strings.HasPrefix(model, hashing.Provider+"-") {
		return 0, domain.NewConfigurationError("embedding.model",
			fmt.Sprintf("hashing model must look like %q, got %q", "hashing-384", model))
	}
	return n, nil
}
