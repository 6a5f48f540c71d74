package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain"
	domusage "github.com/kailas-cloud/ragstore/internal/domain/usage"
	"github.com/kailas-cloud/ragstore/internal/domain/usage/budget"
)

// Service handles usage reporting.
type Service struct {
	src BudgetSource
	now func() time.Time
}

// New creates a Service. src can be nil (no budgets configured).
func New(src BudgetSource) *Service {
	return &Service{src: src, now: func() time.Time { return time.Now().UTC() }}
}

// Reports builds one report per budgeted provider for the period, sorted by
// provider. A non-empty provider restricts the result to that provider.
func (s *Service) Reports(_ context.Context, period domusage.Period, provider string) ([]domusage.Report, error) {
	if period == "" {
		period = domusage.PeriodDay
	}
	if !period.IsValid() {
		return nil, fmt.Errorf("invalid period %q: %w", period, domain.ErrInvalidRequest)
	}
	if s.src == nil {
		return nil, nil
	}

	budgets := s.src.Budgets()
	names := make([]string, 0, len(budgets))
	for name := range budgets {
		if provider == "" || provider == name {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]domusage.Report, 0, len(names))
	for _, name := range names {
		out = append(out, s.report(period, name, budgets[name]))
	}
	return out, nil
}

func (s *Service) report(period domusage.Period, provider string, br domain.BudgetReader) domusage.Report {
	now := s.now()
	var start, end time.Time
	var limit, used int64

	switch period {
	case domusage.PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		limit, used = br.MonthlyLimit(), br.MonthlyUsed()
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
		limit, used = br.DailyLimit(), br.DailyUsed()
	}

	b := budget.New(limit, used, end.UnixMilli())
	return domusage.NewReport(period, start.UnixMilli(), end.UnixMilli(), provider, used, b)
}
