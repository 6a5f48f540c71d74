package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage collects token usage for a single build or search call.
// The caller puts a mutable pointer into the context before calling a use case;
// the embedding layer writes after each backend batch; the caller reads it back
// (HTTP response headers, BuildResult).
type EmbeddingUsage struct {
	TotalTokens int
	Batches     int
	Used        bool // true if embedding was called, even on a cache hit with 0 tokens
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddBatch records one backend batch and the tokens it consumed.
func (u *EmbeddingUsage) AddBatch(tokens int) {
	if u != nil {
		u.TotalTokens += tokens
		u.Batches++
		u.Used = true
	}
}

// BudgetReader is read-only access to one provider's token budget.
// Remaining values are -1 when the period is unlimited.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}
