package ragstore

import (
	"time"

	domcol "github.com/kailas-cloud/ragstore/internal/domain/collection"
	domdoc "github.com/kailas-cloud/ragstore/internal/domain/document"
	"github.com/kailas-cloud/ragstore/internal/domain/search/mode"
	"github.com/kailas-cloud/ragstore/internal/domain/search/result"
	pipelineuc "github.com/kailas-cloud/ragstore/internal/usecase/pipeline"
)

// SearchMethod selects how a query is scored.
type SearchMethod string

// Search methods.
const (
	Hybrid    SearchMethod = SearchMethod(mode.Hybrid)
	Embedding SearchMethod = SearchMethod(mode.Embedding)
	Keyword   SearchMethod = SearchMethod(mode.Keyword)
)

// Document is one row to ingest. Hash, when set, deduplicates rows whose
// keys differ but whose content is the same.
type Document struct {
	Key      string
	Text     string
	Metadata map[string]any
	Hash     string
}

// VectorItem is a precomputed vector. With Text set the row is inserted
// first; otherwise Key must name a stored document.
type VectorItem struct {
	Key      string
	Text     string
	Metadata map[string]any
	Hash     string
	Vector   []float32
}

// BuildResult reports what a build changed.
type BuildResult struct {
	Collection string
	Inserted   int
	Skipped    int
	Embedded   int
	Provider   string
	Model      string
	Dimensions int
	Tokens     int
}

// RegisterResult reports rows stored without embedding.
type RegisterResult struct {
	Collection string
	Inserted   int
	Skipped    int
}

// AddVectorsResult reports ingested precomputed vectors.
type AddVectorsResult struct {
	Collection string
	Inserted   int
	Added      int
	Skipped    int
	Model      string
	Dimensions int
}

// Hit is one ranked search result. KeywordScore and EmbeddingScore are set
// by the methods that computed them.
type Hit struct {
	DocID          int64
	Key            string
	Text           string
	Metadata       map[string]any
	Score          float64
	KeywordScore   *float64
	EmbeddingScore *float64
}

// CollectionInfo describes a stored collection. Model is empty while the
// collection is unbound; Provider is also empty for precomputed vectors
// ingested without one.
type CollectionInfo struct {
	Name        string
	Description string
	Provider    string
	Model       string
	Dimensions  int
	IndexType   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StoredDocument is a persisted row.
type StoredDocument struct {
	ID             int64
	Key            string
	Text           string
	NormalizedText string
	Metadata       map[string]any
	Hash           string
	CreatedAt      time.Time
}

// Paths are the on-disk artifacts of a collection.
type Paths struct {
	DB    string
	Index string
}

func toRows(docs []Document) []domdoc.Row {
	rows := make([]domdoc.Row, len(docs))
	for i, d := range docs {
		rows[i] = domdoc.Row{Key: d.Key, Text: d.Text, Metadata: d.Metadata, Hash: d.Hash}
	}
	return rows
}

func toVectorItems(items []VectorItem) []pipelineuc.VectorItem {
	out := make([]pipelineuc.VectorItem, len(items))
	for i, v := range items {
		out[i] = pipelineuc.VectorItem{Key: v.Key, Text: v.Text, Metadata: v.Metadata, Hash: v.Hash, Vector: v.Vector}
	}
	return out
}

func fromResults(results []result.Result) []Hit {
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			DocID:          r.DocID(),
			Key:            r.Key(),
			Text:           r.Text(),
			Metadata:       r.Metadata(),
			Score:          r.Score(),
			KeywordScore:   r.KeywordScore(),
			EmbeddingScore: r.EmbeddingScore(),
		}
	}
	return hits
}

func fromCollection(c domcol.Collection) CollectionInfo {
	info := CollectionInfo{
		Name:        c.Name(),
		Description: c.Description(),
		IndexType:   string(c.IndexType()),
		CreatedAt:   time.UnixMilli(c.CreatedAt()),
		UpdatedAt:   time.UnixMilli(c.UpdatedAt()),
	}
	info.Provider = c.Binding().Provider()
	info.Model, _ = c.Binding().Model()
	info.Dimensions, _ = c.Binding().Dimensions()
	return info
}

func fromDocuments(docs []domdoc.Document) []StoredDocument {
	out := make([]StoredDocument, len(docs))
	for i, d := range docs {
		out[i] = StoredDocument{
			ID:             d.ID(),
			Key:            d.Key(),
			Text:           d.Text(),
			NormalizedText: d.Normalized(),
			Metadata:       d.Metadata(),
			Hash:           d.Hash(),
			CreatedAt:      time.UnixMilli(d.CreatedAt()),
		}
	}
	return out
}
