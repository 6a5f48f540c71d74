package chi

import (
	"time"

	domcol "github.com/kailas-cloud/ragstore/internal/domain/collection"
	domdoc "github.com/kailas-cloud/ragstore/internal/domain/document"
	"github.com/kailas-cloud/ragstore/internal/domain/search/result"
	domusage "github.com/kailas-cloud/ragstore/internal/domain/usage"
	pipelineuc "github.com/kailas-cloud/ragstore/internal/usecase/pipeline"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error response codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeNotFound               ErrorCode = "not_found"
	CodeVectorDimMismatch      ErrorCode = "vector_dim_mismatch"
	CodeModelConflict          ErrorCode = "model_conflict"
	CodeCollectionUnbound      ErrorCode = "collection_unbound"
	CodeIndexOutOfSync         ErrorCode = "index_out_of_sync"
	CodeRateLimited            ErrorCode = "rate_limited"
	CodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeConfiguration          ErrorCode = "configuration_error"
	CodeTimeout                ErrorCode = "timeout"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DocumentInput is one document row supplied by a client.
type DocumentInput struct {
	Key      string         `json:"key"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Hash     string         `json:"hash,omitempty"`
}

// BuildRequest is the body of POST /collections/{collection}/build.
type BuildRequest struct {
	Description string          `json:"description,omitempty"`
	Documents   []DocumentInput `json:"documents"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	Overwrite   bool            `json:"overwrite,omitempty"`
}

// BuildResponse reports a finished build.
type BuildResponse struct {
	Collection      string `json:"collection"`
	Inserted        int    `json:"inserted"`
	Skipped         int    `json:"skipped"`
	Embedded        int    `json:"embedded"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	Dimensions      int    `json:"dimensions"`
	EmbeddingTokens int    `json:"embedding_tokens"`
}

// RegisterRequest is the body of POST /collections/{collection}/documents.
type RegisterRequest struct {
	Description string          `json:"description,omitempty"`
	Documents   []DocumentInput `json:"documents"`
}

// RegisterResponse reports rows stored without embedding.
type RegisterResponse struct {
	Collection string `json:"collection"`
	Inserted   int    `json:"inserted"`
	Skipped    int    `json:"skipped"`
}

// VectorInput is one precomputed vector, optionally with its document row.
type VectorInput struct {
	Key      string         `json:"key"`
	Text     string         `json:"text,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Hash     string         `json:"hash,omitempty"`
	Vector   []float32      `json:"vector"`
}

// VectorsRequest is the body of POST /collections/{collection}/vectors.
type VectorsRequest struct {
	Description string        `json:"description,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Items       []VectorInput `json:"items"`
}

// VectorsResponse reports ingested precomputed vectors.
type VectorsResponse struct {
	Collection string `json:"collection"`
	Inserted   int    `json:"inserted"`
	Added      int    `json:"added"`
	Skipped    int    `json:"skipped"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// SearchRequest is the body of POST /collections/{collection}/search.
type SearchRequest struct {
	Query      string   `json:"query"`
	Method     string   `json:"method,omitempty"`
	TopK       int      `json:"top_k,omitempty"`
	Alpha      *float64 `json:"alpha,omitempty"`
	Provider   string   `json:"provider,omitempty"`
	Model      string   `json:"model,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	DocID          int64          `json:"doc_id"`
	Key            string         `json:"doc_key"`
	Text           string         `json:"text"`
	Metadata       map[string]any `json:"metadata"`
	Score          float64        `json:"score"`
	KeywordScore   *float64       `json:"keyword_score,omitempty"`
	EmbeddingScore *float64       `json:"embedding_score,omitempty"`
}

// SearchResponse carries ranked hits.
type SearchResponse struct {
	Collection string      `json:"collection"`
	Method     string      `json:"method"`
	Results    []SearchHit `json:"results"`
}

// Collection is the wire form of a collection.
type Collection struct {
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	EmbeddingProvider   string    `json:"embedding_provider,omitempty"`
	EmbeddingModel      string    `json:"embedding_model,omitempty"`
	EmbeddingDimensions int       `json:"embedding_dimensions,omitempty"`
	Bound               bool      `json:"bound"`
	IndexType           string    `json:"index_type"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CollectionList is the body of GET /collections.
type CollectionList struct {
	Items []Collection `json:"items"`
}

// Document is the wire form of a stored row.
type Document struct {
	ID             int64          `json:"id"`
	Key            string         `json:"doc_key"`
	Text           string         `json:"text"`
	NormalizedText string         `json:"normalized_text"`
	Metadata       map[string]any `json:"metadata"`
	ContentHash    string         `json:"content_hash,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DocumentList is the body of GET /collections/{collection}/documents.
type DocumentList struct {
	Items []Document `json:"items"`
}

// Paths is the body of GET /collections/{collection}/paths.
type Paths struct {
	DB    string `json:"db"`
	Index string `json:"index"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

// Budget is the wire form of a token budget snapshot.
type Budget struct {
	TokensLimit     int64     `json:"tokens_limit"`
	TokensRemaining int64     `json:"tokens_remaining"`
	IsExhausted     bool      `json:"is_exhausted"`
	ResetsAt        time.Time `json:"resets_at"`
}

// UsageReport is one provider's usage for a period.
type UsageReport struct {
	Provider    string    `json:"provider"`
	Period      string    `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	TokensUsed  int64     `json:"tokens_used"`
	Budget      Budget    `json:"budget"`
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	Items []UsageReport `json:"items"`
}

func rowsFromInput(in []DocumentInput) []domdoc.Row {
	rows := make([]domdoc.Row, len(in))
	for i, d := range in {
		rows[i] = domdoc.Row{Key: d.Key, Text: d.Text, Metadata: d.Metadata, Hash: d.Hash}
	}
	return rows
}

func vectorItemsFromInput(in []VectorInput) []pipelineuc.VectorItem {
	items := make([]pipelineuc.VectorItem, len(in))
	for i, v := range in {
		items[i] = pipelineuc.VectorItem{Key: v.Key, Text: v.Text, Metadata: v.Metadata, Hash: v.Hash, Vector: v.Vector}
	}
	return items
}

func collectionToWire(c domcol.Collection) Collection {
	out := Collection{
		Name:              c.Name(),
		Description:       c.Description(),
		EmbeddingProvider: c.Binding().Provider(),
		Bound:             c.Binding().IsBound(),
		IndexType:         string(c.IndexType()),
		CreatedAt:         time.UnixMilli(c.CreatedAt()).UTC(),
		UpdatedAt:         time.UnixMilli(c.UpdatedAt()).UTC(),
	}
	out.EmbeddingModel, _ = c.Binding().Model()
	out.EmbeddingDimensions, _ = c.Binding().Dimensions()
	return out
}

func documentToWire(d domdoc.Document) Document {
	meta := d.Metadata()
	if meta == nil {
		meta = map[string]any{}
	}
	return Document{
		ID:             d.ID(),
		Key:            d.Key(),
		Text:           d.Text(),
		NormalizedText: d.Normalized(),
		Metadata:       meta,
		ContentHash:    d.Hash(),
		CreatedAt:      time.UnixMilli(d.CreatedAt()).UTC(),
	}
}

func searchHitToWire(r result.Result) SearchHit {
	meta := r.Metadata()
	if meta == nil {
		meta = map[string]any{}
	}
	return SearchHit{
		DocID:          r.DocID(),
		Key:            r.Key(),
		Text:           r.Text(),
		Metadata:       meta,
		Score:          r.Score(),
		KeywordScore:   r.KeywordScore(),
		EmbeddingScore: r.EmbeddingScore(),
	}
}

func usageToWire(r domusage.Report) UsageReport {
	b := r.Budget()
	return UsageReport{
		Provider:    r.Provider(),
		Period:      string(r.Period()),
		PeriodStart: time.UnixMilli(r.PeriodStart()).UTC(),
		PeriodEnd:   time.UnixMilli(r.PeriodEnd()).UTC(),
		TokensUsed:  r.TokensUsed(),
		Budget: Budget{
			TokensLimit:     b.TokensLimit(),
			TokensRemaining: b.TokensRemaining(),
			IsExhausted:     b.IsExhausted(),
			ResetsAt:        time.UnixMilli(b.ResetsAt()).UTC(),
		},
	}
}
