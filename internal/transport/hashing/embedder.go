// Package hashing is an offline embedding backend: a signed feature-hashing
// bag of words over accent-folded, stopword-filtered tokens. It needs no
// network or model files and is deterministic across runs.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
)

// Provider is the provider name of this backend.
const Provider = "hashing"

// DefaultDimensions is the output size when none is configured.
const DefaultDimensions = 384

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// Embedder hashes tokens into a fixed-size vector.
type Embedder struct {
	dim       int
	stopwords map[string]struct{}
}

// NewEmbedder creates a backend. dim <= 0 means DefaultDimensions.
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Embedder{dim: dim, stopwords: defaultStopwords()}
}

// Provider returns the provider name.
func (e *Embedder) Provider() string { return Provider }

// Model encodes the dimension so collections built at different sizes never share a binding.
func (e *Embedder) Model() string { return fmt.Sprintf("hashing-%d", e.dim) }

// Remote reports false: failures are never transient.
func (e *Embedder) Remote() bool { return false }

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: e.vector(text)}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// vector weights each term by 1+ln(tf). Text without terms yields a zero vector.
func (e *Embedder) vector(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range e.tokenize(text) {
		counts[tok]++
	}
	v := make([]float32, e.dim)
	for tok, tf := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		w := float32(1 + math.Log(float64(tf)))
		if sum>>63 == 1 {
			w = -w
		}
		v[sum%uint64(e.dim)] += w
	}
	return v
}

func (e *Embedder) tokenize(text string) []string {
	toks := tokenPattern.FindAllString(document.NormalizeText(text), -1)
	out := toks[:0]
	for _, t := range toks {
		if _, stop := e.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so",
		"such", "into", "about", "between", "through", "during", "before", "after", "above", "below",
		"out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
