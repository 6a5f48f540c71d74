package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultTopK    = 10
	MaxTopK        = 1000
	DefaultAlpha   = 0.5
)

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	topK       int
	alpha      float64
	provider   string
	model      string
	dimensions int
}

// New validates and normalizes search parameters.
// Defaults: mode=hybrid, topK=10, alpha=0.5 (nil). model and dimensions are optional
// overrides checked against the collection binding at query time.
func New(query string, m mode.Mode, topK int, alpha *float64, model string, dimensions int) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrInvalidRequest)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidRequest)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("invalid search method %q: %w", m, domain.ErrInvalidRequest)
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 1 || topK > MaxTopK {
		return Request{}, fmt.Errorf("top_k must be between 1 and %d: %w", MaxTopK, domain.ErrInvalidRequest)
	}
	a := DefaultAlpha
	if alpha != nil {
		a = *alpha
	}
	if a < 0 || a > 1 {
		return Request{}, fmt.Errorf("alpha must be between 0 and 1: %w", domain.ErrInvalidRequest)
	}
	if dimensions < 0 {
		return Request{}, fmt.Errorf("dimensions must not be negative: %w", domain.ErrInvalidRequest)
	}

	return Request{
		query:      query,
		searchMode: m,
		topK:       topK,
		alpha:      a,
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Query returns the search query text.
func (r Request) Query() string { return r.query }

// Mode returns the search strategy.
func (r Request) Mode() mode.Mode { return r.searchMode }

// TopK returns the number of hits to return.
func (r Request) TopK() int { return r.topK }

// Alpha returns the embedding weight used by hybrid fusion.
func (r Request) Alpha() float64 { return r.alpha }

// WithProvider returns a copy that embeds the query with provider. An empty
// provider defers to the collection binding.
func (r Request) WithProvider(provider string) Request {
	r.provider = provider
	return r
}

// Provider returns the requested provider override ("" when none).
func (r Request) Provider() string { return r.provider }

// Model returns the requested model override ("" when none).
func (r Request) Model() string { return r.model }

// Dimensions returns the requested dimension override (0 when none).
func (r Request) Dimensions() int { return r.dimensions }

// CandidateK is the per-side over-fetch used to feed hybrid fusion.
func (r Request) CandidateK() int {
	if r.searchMode == mode.Hybrid {
		return 2 * r.topK
	}
	return r.topK
}
