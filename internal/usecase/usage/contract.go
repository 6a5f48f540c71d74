package usage

import "github.com/kailas-cloud/ragstore/internal/domain"

// BudgetSource lists the budget trackers in use, by provider.
type BudgetSource interface {
	Budgets() map[string]domain.BudgetReader
}
