package result

import "github.com/kailas-cloud/ragstore/internal/domain/document"

// Result is a single search hit. Sub-scores are nil when the side did not run.
type Result struct {
	docID          int64
	key            string
	text           string
	metadata       map[string]any
	score          float64
	keywordScore   *float64
	embeddingScore *float64
}

// New creates a search result from a hydrated document.
func New(d document.Document, score float64) Result {
	return Result{
		docID:    d.ID(),
		key:      d.Key(),
		text:     d.Text(),
		metadata: d.Metadata(),
		score:    score,
	}
}

// WithSubScores returns a copy carrying the keyword and embedding sub-scores.
func (r Result) WithSubScores(keyword, embedding *float64) Result {
	r.keywordScore = keyword
	r.embeddingScore = embedding
	return r
}

// WithScore returns a copy with the given fused score.
func (r Result) WithScore(score float64) Result {
	r.score = score
	return r
}

// DocID returns the internal document id.
func (r Result) DocID() int64 { return r.docID }

// Key returns the doc_key.
func (r Result) Key() string { return r.key }

// Text returns the document text.
func (r Result) Text() string { return r.text }

// Metadata returns the document metadata.
func (r Result) Metadata() map[string]any { return r.metadata }

// Score returns the relevance score.
func (r Result) Score() float64 { return r.score }

// KeywordScore returns the keyword sub-score, if any.
func (r Result) KeywordScore() *float64 { return r.keywordScore }

// EmbeddingScore returns the embedding sub-score, if any.
func (r Result) EmbeddingScore() *float64 { return r.embeddingScore }
