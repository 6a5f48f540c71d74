package health

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/logger"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component failed.
	Degraded Status = "degraded"
	// Unhealthy indicates the storage layer failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	storage   Pinger
	embedding EmbeddingChecker
	cache     Pinger
}

// Option adds an optional component to the report.
type Option func(*Service)

// WithEmbedding checks the default embedding provider.
func WithEmbedding(e EmbeddingChecker) Option {
	return func(s *Service) { s.embedding = e }
}

// WithCache checks the shared embedding cache.
func WithCache(p Pinger) Option {
	return func(s *Service) { s.cache = p }
}

// New creates a Service over the collection storage.
func New(storage Pinger, opts ...Option) *Service {
	s := &Service{storage: storage}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check runs every configured check. A storage failure makes the report
// unhealthy; embedding or cache failures only degrade it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if !s.run(ctx, checks, "storage", s.storage.Ping) {
		status = Unhealthy
	}
	if s.embedding != nil && !s.run(ctx, checks, "embedding", s.embedding.HealthCheck) && status == Healthy {
		status = Degraded
	}
	if s.cache != nil && !s.run(ctx, checks, "cache", s.cache.Ping) && status == Healthy {
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func (s *Service) run(
	ctx context.Context, checks map[string]CheckResult, name string, fn func(context.Context) error,
) bool {
	if err := fn(ctx); err != nil {
		logger.FromContext(ctx).Warn("Health check failed", zap.String("component", name), zap.Error(err))
		checks[name] = CheckError
		return false
	}
	checks[name] = CheckOK
	return true
}
