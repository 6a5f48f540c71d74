package pipeline

import "github.com/kailas-cloud/ragstore/internal/domain/document"

// BuildRequest describes one build of a collection.
type BuildRequest struct {
	Collection  string
	Description string
	Docs        []document.Row
	// Provider and Model select the embedder. Both empty reuse the provider
	// and model a bound collection already carries, else the configured
	// default. A Model equal to the bound one keeps the bound provider.
	Provider string
	Model    string
	// Overwrite re-embeds every document into a fresh index and may rebind
	// the collection to a different model.
	Overwrite bool
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
}

// RegisterResult reports rows stored without embedding.
type RegisterResult struct {
	Collection string
	Inserted   int
	Skipped    int
}

// VectorItem is a precomputed vector for one document. A non-empty Text
// inserts the row first; otherwise Key must name a stored document.
type VectorItem struct {
	Key      string
	Text     string
	Metadata map[string]any
	Hash     string
	Vector   []float32
}

// AddVectorsRequest ingests precomputed vectors produced by Model. Provider
// is optional; when set, query embeddings are computed with it.
type AddVectorsRequest struct {
	Collection  string
	Description string
	Provider    string
	Model       string
	Items       []VectorItem
}

// AddVectorsResult reports what an AddVectors call changed.
type AddVectorsResult struct {
	Collection string
	Inserted   int
	Added      int
	Skipped    int
	Provider   string
	Model      string
	Dimensions int
}
