package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Hybrid fuses keyword and embedding scores with a weight alpha.
	Hybrid    Mode = "hybrid"
	Embedding Mode = "embedding"
	Keyword   Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Embedding || m == Keyword
}

// NeedsEmbedding reports whether the mode embeds the query.
func (m Mode) NeedsEmbedding() bool {
	return m == Hybrid || m == Embedding
}
