// Package ollama is an embedding backend on a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Provider is the provider name of this backend.
const Provider = "ollama"

// Defaults for a stock local install.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 120 * time.Second
)

// Config holds the backend settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Embedder calls the Ollama /api/embed endpoint, many inputs per request.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedder creates a backend with defaults filled in.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Embedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Provider returns the provider name.
func (e *Embedder) Provider() string { return Provider }

// Model returns the model name.
func (e *Embedder) Model() string { return e.model }

// Remote reports true: the server is reached over HTTP and may be restarting.
func (e *Embedder) Remote() bool { return true }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings      [][]float32 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

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

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed: %w", ctx.Err())
		}
		return domain.BatchEmbeddingResult{}, domain.Retryable(
			fmt.Errorf("ollama embed: %w: %w", err, domain.ErrEmbeddingProviderError))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.BatchEmbeddingResult{}, statusError(resp)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed decode: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(out.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama returned %d vectors for %d inputs: %w",
			len(out.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out.Embeddings,
		PromptTokens: out.PromptEvalCount,
		TotalTokens:  out.PromptEvalCount,
	}, nil
}

// HealthCheck lists the local models.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama tags request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama tags: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	err := fmt.Errorf("ollama embed status %d: %s: %w", resp.StatusCode, msg, domain.ErrEmbeddingProviderError)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	case resp.StatusCode >= 500:
		return domain.Retryable(err)
	default:
		return err
	}
}
