package budget

// Budget is a token budget snapshot for one period.
type Budget struct {
	limit    int64
	used     int64
	resetsAt int64 // unix millis
}

// New creates a snapshot from the period's limit and consumption. A zero
// limit means unlimited.
func New(limit, used int64, resetsAt int64) Budget {
	return Budget{limit: max(limit, 0), used: max(used, 0), resetsAt: resetsAt}
}

// Unlimited reports whether the period has no cap.
func (b Budget) Unlimited() bool { return b.limit == 0 }

// TokensLimit returns the token cap (0 when unlimited).
func (b Budget) TokensLimit() int64 { return b.limit }

// TokensRemaining returns tokens left, -1 when unlimited and never negative otherwise.
func (b Budget) TokensRemaining() int64 {
	if b.Unlimited() {
		return -1
	}
	return max(b.limit-b.used, 0)
}

// IsExhausted reports whether a capped budget is spent.
func (b Budget) IsExhausted() bool { return !b.Unlimited() && b.used >= b.limit }

// ResetsAt returns the start of the next period (unix millis).
func (b Budget) ResetsAt() int64 { return b.resetsAt }
