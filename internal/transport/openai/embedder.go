package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Provider names served by this package.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

// Embedder is an embedding backend on the OpenAI or Azure OpenAI API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
}

// Config holds the embedding backend settings.
type Config struct {
	Provider   string // ProviderOpenAI (default) or ProviderAzure
	APIKey     string
	BaseURL    string // OpenAI-compatible base URL, or the Azure resource endpoint
	Model      string
	Dimensions int
	User       string
	APIVersion string // Azure only
	Deployment string // Azure only; defaults to Model
	Timeout    time.Duration
}

// NewEmbedder creates a backend. A missing API key, or a missing endpoint
// for Azure, is a configuration error.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	if cfg.APIKey == "" {
		return nil, domain.NewConfigurationError("embedding.api_key", "is required for provider "+provider)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	var clientCfg openai.ClientConfig
	switch provider {
	case ProviderOpenAI:
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	case ProviderAzure:
		if cfg.BaseURL == "" {
			return nil, domain.NewConfigurationError("embedding.base_url", "azure endpoint is required")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Deployment
		if deployment == "" {
			deployment = model
		}
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	default:
		return nil, domain.NewConfigurationError("embedding.provider", fmt.Sprintf("unknown provider %q", provider))
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   provider,
	}, nil
}

// Provider returns the provider name.
func (e *Embedder) Provider() string { return e.provider }

// Model returns the model name.
func (e *Embedder) Model() string { return string(e.model) }

// Remote reports true: every call crosses the network.
func (e *Embedder) Remote() bool { return true }

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder with one API request.
// Vectors are placed by the response index, not the response order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return domain.BatchEmbeddingResult{}, classify(ctx, err)
	}
	if len(resp.Data) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(texts), domain.ErrEmbeddingProviderError)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding response index %d invalid: %w",
				d.Index, domain.ErrEmbeddingProviderError)
		}
		out[d.Index] = d.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// classify maps an API failure onto the domain taxonomy: 429 is rate
// limiting, 5xx and network failures are retryable, anything else is final.
// All of them wrap domain.ErrEmbeddingProviderError for 502 mapping.
func classify(ctx context.Context, err error) error {
	wrap := domain.ErrEmbeddingProviderError

	status, detail := 0, ""
	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		status, detail = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status, detail = reqErr.HTTPStatusCode, extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("embedding API error %d: %s: %w: %w", status, detail, domain.ErrRateLimited, wrap)
	case status >= 500:
		return domain.Retryable(fmt.Errorf("embedding API error %d: %s: %w", status, detail, wrap))
	case status > 0:
		return fmt.Errorf("embedding API error %d: %s: %w", status, detail, wrap)
	case ctx.Err() != nil:
		return fmt.Errorf("embedding request: %w", ctx.Err())
	default:
		return domain.Retryable(fmt.Errorf("embedding request failed: %w: %w", err, wrap))
	}
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
