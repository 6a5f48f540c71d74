package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/logger"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

// DefaultBatchSize is the number of texts sent per backend call.
const DefaultBatchSize = 64

// Config tunes batching and retries.
type Config struct {
	BatchSize int
	Backoff   Backoff
}

// Service turns texts into an N×D matrix. It batches sequentially and, for
// remote backends, retries transient batch failures with backoff. It never
// normalizes or truncates.
type Service struct {
	chain     domain.Embedder
	backend   domain.EmbeddingBackend
	batchSize int
	backoff   Backoff
	sleep     sleepFunc
}

// NewService wraps chain, the decorated embedder whose innermost element is backend.
func NewService(chain domain.Embedder, backend domain.EmbeddingBackend, cfg Config) *Service {
	if chain == nil {
		chain = backend
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Service{
		chain:     chain,
		backend:   backend,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff.withDefaults(),
		sleep:     sleepCtx,
	}
}

// Provider returns the backend provider name.
func (s *Service) Provider() string { return s.backend.Provider() }

// Model returns the backend model name.
func (s *Service) Model() string { return s.backend.Model() }

// Embed embeds texts in order, one backend call per batch.
func (s *Service) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	batches := (len(texts) + s.batchSize - 1) / s.batchSize

	for b := 0; b < batches; b++ {
		start := b * s.batchSize
		end := min(start+s.batchSize, len(texts))
		batch := texts[start:end]

		res, err := s.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d/%d: %w", b+1, batches, err)
		}
		if len(res.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embed batch %d/%d: got %d vectors for %d texts: %w",
				b+1, batches, len(res.Embeddings), len(batch), domain.ErrEmbeddingProviderError)
		}
		domain.UsageFromContext(ctx).AddBatch(res.TotalTokens)
		out = append(out, res.Embeddings...)
	}
	return out, nil
}

// EmbedAny coerces every value to text with fmt.Sprint before embedding.
func (s *Service) EmbedAny(ctx context.Context, values ...any) ([][]float32, error) {
	texts := make([]string, len(values))
	for i, v := range values {
		if str, ok := v.(string); ok {
			texts[i] = str
			continue
		}
		texts[i] = fmt.Sprint(v)
	}
	return s.Embed(ctx, texts...)
}

// EmbedOne embeds a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// HealthCheck delegates to the backend when it supports health checks.
func (s *Service) HealthCheck(ctx context.Context) error {
	if hc, ok := s.backend.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	call := func(ctx context.Context) error {
		r, err := domain.BatchOf(ctx, s.chain, batch)
		if err != nil {
			return err
		}
		res = r
		return nil
	}
	if !s.backend.Remote() {
		return res, call(ctx)
	}

	onRetry := func(attempt int, delay time.Duration, err error) {
		metrics.EmbeddingRetriesTotal.WithLabelValues(s.Provider(), s.Model()).Inc()
		logger.FromContext(ctx).Warn("Embedding batch failed, retrying",
			zap.String("provider", s.Provider()),
			zap.String("model", s.Model()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return res, retry(ctx, s.backoff, s.sleep, onRetry, call)
}
