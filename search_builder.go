package ragstore

import "context"

// SearchBuilder is a fluent builder for search queries.
type SearchBuilder struct {
	client     *Client
	collection string
	query      string
	opts       SearchOptions
}

// Query starts a search of collection for q.
func (c *Client) Query(collection, q string) *SearchBuilder {
	return &SearchBuilder{client: c, collection: collection, query: q}
}

// Method sets the search method (hybrid, embedding, keyword).
func (b *SearchBuilder) Method(m SearchMethod) *SearchBuilder {
	b.opts.Method = m
	return b
}

// TopK sets the maximum number of results.
func (b *SearchBuilder) TopK(n int) *SearchBuilder {
	b.opts.TopK = n
	return b
}

// Alpha sets the embedding weight of hybrid search.
func (b *SearchBuilder) Alpha(a float64) *SearchBuilder {
	b.opts.Alpha = &a
	return b
}

// Model asserts the model, and optionally the dimension, the collection is bound to.
func (b *SearchBuilder) Model(model string, dimensions int) *SearchBuilder {
	b.opts.Model = model
	b.opts.Dimensions = dimensions
	return b
}

// Do executes the search.
func (b *SearchBuilder) Do(ctx context.Context) ([]Hit, error) {
	opts := b.opts
	return b.client.Search(ctx, b.collection, b.query, &opts)
}
