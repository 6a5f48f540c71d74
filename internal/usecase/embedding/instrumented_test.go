package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

type mockEmbedder struct {
	result     domain.EmbeddingResult
	err        error
	batchErr   error
	batchCalls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

// plainMockEmbedder implements only Embedder, not BatchEmbedder.
type plainMockEmbedder struct {
	result domain.EmbeddingResult
	calls  int
}

func (m *plainMockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, nil
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3}, PromptTokens: 7, TotalTokens: 7,
	}}
	p := NewInstrumentedEmbedder(inner, "inst-ok", "m1", nil, zap.NewNop())

	before := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("inst-ok", "m1", "ok"))
	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.TotalTokens != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
	after := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("inst-ok", "m1", "ok"))
	if after-before != 1 {
		t.Errorf("expected one ok request recorded, got %v", after-before)
	}
	if got := testutil.ToFloat64(metrics.EmbeddingTokensTotal.WithLabelValues("inst-ok", "m1", "total")); got != 7 {
		t.Errorf("expected 7 total tokens recorded, got %v", got)
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: domain.Retryable(fmt.Errorf("503"))}
	p := NewInstrumentedEmbedder(inner, "inst-err", "m1", nil, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsRetryable(err) {
		t.Error("expected retryable classification to survive wrapping")
	}
	if got := testutil.ToFloat64(metrics.EmbeddingErrorsTotal.WithLabelValues("inst-err", "m1", "transient")); got != 1 {
		t.Errorf("expected one transient error recorded, got %v", got)
	}
}

func TestInstrumentedEmbedder_BudgetRejection(t *testing.T) {
	budget := NewBudgetTracker("inst-budget", 100, 0, BudgetActionReject, zap.NewNop())
	budget.Record(100)

	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	p := NewInstrumentedEmbedder(inner, "inst-budget", "m1", budget, zap.NewNop())

	if _, err := p.Embed(context.Background(), "hello"); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if _, err := p.BatchEmbed(context.Background(), []string{"a", "b"}); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected domain.ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if inner.batchCalls != 0 {
		t.Errorf("backend called %d times after rejection", inner.batchCalls)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_RecordsBudget(t *testing.T) {
	budget := NewBudgetTracker("inst-rec", 1000000, 10000000, BudgetActionReject, zap.NewNop())
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1}, PromptTokens: 100, TotalTokens: 100,
	}}
	p := NewInstrumentedEmbedder(inner, "inst-rec", "m1", budget, zap.NewNop())

	initialDaily := budget.RemainingDaily()
	res, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 || inner.batchCalls != 1 {
		t.Fatalf("expected 3 embeddings in 1 call, got %d in %d", len(res.Embeddings), inner.batchCalls)
	}
	if got := initialDaily - budget.RemainingDaily(); got != 300 {
		t.Errorf("expected budget decrease of 300, got %d", got)
	}
	gauge := metrics.EmbeddingBudgetTokensRemaining.WithLabelValues("inst-rec", "daily")
	if got := testutil.ToFloat64(gauge); got != float64(budget.RemainingDaily()) {
		t.Errorf("remaining gauge = %v, want %d", got, budget.RemainingDaily())
	}
}

func TestInstrumentedEmbedder_BatchEmbed_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "inst", "m1", nil, nil)

	res, err := p.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil || inner.batchCalls != 0 {
		t.Errorf("expected no backend call for empty input")
	}
}

func TestInstrumentedEmbedder_BatchEmbed_FallbackToSingle(t *testing.T) {
	inner := &plainMockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}, TotalTokens: 5}}
	p := NewInstrumentedEmbedder(inner, "inst-fb", "m1", nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 || res.TotalTokens != 10 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 fallback Embed calls, got %d", inner.calls)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", domain.ErrRateLimited), "rate_limited"},
		{context.DeadlineExceeded, "canceled"},
		{domain.Retryable(errors.New("reset")), "transient"},
		{errors.New("bad key"), "provider"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
