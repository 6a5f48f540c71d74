package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/binding"
	"github.com/kailas-cloud/ragstore/internal/domain/collection"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
	"github.com/kailas-cloud/ragstore/internal/logger"
	"github.com/kailas-cloud/ragstore/internal/metrics"
	"github.com/kailas-cloud/ragstore/internal/vecindex"
)

// Service builds collections: it stores documents, embeds the ones without
// a vector and appends them to the collection's index.
type Service struct {
	stores    Stores
	index     VectorIndex
	embedders EmbedderResolver
}

// New creates a pipeline service.
func New(stores Stores, index VectorIndex, embedders EmbedderResolver) *Service {
	return &Service{stores: stores, index: index, embedders: embedders}
}

// Build inserts req.Docs, embeds every document that has no vector yet and
// appends the vectors to the index. Content rows, vector records and the
// index file change together or not at all. Running the same build twice
// inserts and embeds nothing the second time.
func (s *Service) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	name := req.Collection
	if err := collection.ValidateName(name); err != nil {
		return BuildResult{}, err
	}
	if len(req.Docs) == 0 && !req.Overwrite {
		return BuildResult{}, fmt.Errorf("at least one document is required: %w", domain.ErrInvalidRequest)
	}
	for _, r := range req.Docs {
		if err := r.Validate(); err != nil {
			return BuildResult{}, err
		}
	}
	ctx = logger.With(ctx, zap.String("collection", name))
	log := logger.FromContext(ctx)

	stored, existing, err := s.stored(ctx, name)
	if err != nil {
		return BuildResult{}, err
	}

	provider, model := req.Provider, req.Model
	if existing && provider == "" {
		storedModel, bound := stored.Binding().Model()
		if bound && (model == "" || model == storedModel) {
			provider, model = stored.Binding().Provider(), storedModel
		}
	}
	embedder, err := s.embedders.Embedder(ctx, provider, model)
	if err != nil {
		return BuildResult{}, fmt.Errorf("resolve embedder: %w", err)
	}

	probeText, err := s.probeText(ctx, name, req, existing)
	if err != nil {
		return BuildResult{}, err
	}
	dim, err := probe(ctx, embedder, probeText)
	if err != nil {
		return BuildResult{}, err
	}
	bound, err := binding.Bound(embedder.Provider(), embedder.Model(), dim)
	if err != nil {
		return BuildResult{}, err
	}
	if existing && !req.Overwrite && stored.Binding().IsBound() {
		if _, err := stored.Binding().ResolveProvider(embedder.Provider()); err != nil {
			return BuildResult{}, fmt.Errorf("collection %q: %w", name, err)
		}
		if _, _, err := stored.Binding().Resolve(embedder.Model(), dim); err != nil {
			return BuildResult{}, fmt.Errorf("collection %q: %w", name, err)
		}
	}

	store, err := s.stores.Open(ctx, name)
	if err != nil {
		return BuildResult{}, fmt.Errorf("open collection: %w", err)
	}

	res := BuildResult{
		Collection: name, Provider: embedder.Provider(), Model: embedder.Model(), Dimensions: dim,
	}
	var receipt *vecindex.Receipt
	err = store.WithTx(ctx, func(tx db.ContentStore) error {
		col, err := newOrStored(stored, existing, name, req.Description, bound)
		if err != nil {
			return err
		}
		if _, err := tx.UpsertCollection(ctx, col); err != nil {
			return fmt.Errorf("upsert collection: %w", err)
		}
		if res.Inserted, err = tx.InsertDocuments(ctx, name, req.Docs); err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
		if req.Overwrite {
			if err := tx.ClearVectors(ctx, name); err != nil {
				return fmt.Errorf("clear vectors: %w", err)
			}
		}
		idx, err := s.loadIndex(ctx, tx, name, dim, req.Overwrite)
		if err != nil {
			return err
		}

		pending, err := tx.FetchUnembedded(ctx, name)
		if err != nil {
			return fmt.Errorf("fetch unembedded: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}
		ids := make([]int64, len(pending))
		texts := make([]string, len(pending))
		for i, d := range pending {
			ids[i] = d.ID()
			texts[i] = d.Text()
		}
		vecs, err := embedder.Embed(ctx, texts...)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
		if len(vecs) != len(pending) {
			return fmt.Errorf("embed documents: got %d vectors for %d texts: %w",
				len(vecs), len(pending), domain.ErrEmbeddingProviderError)
		}
		if err := domain.CheckDimensions(dim, vecs...); err != nil {
			return err
		}
		if receipt, err = s.index.Append(ctx, idx, name, ids, domain.NormalizeAll(vecs), tx); err != nil {
			return fmt.Errorf("append vectors: %w", err)
		}
		res.Embedded = len(pending)
		return nil
	})
	if err != nil {
		s.undoIndex(ctx, name, receipt)
		return BuildResult{}, fmt.Errorf("build collection %q: %w", name, err)
	}
	if err := receipt.Commit(); err != nil {
		log.Warn("Index backup cleanup failed", zap.Error(err))
	}

	res.Skipped = len(req.Docs) - res.Inserted
	metrics.BuildDocumentsTotal.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.BuildDocumentsTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	metrics.BuildDocumentsTotal.WithLabelValues("embedded").Add(float64(res.Embedded))
	log.Info("Collection built",
		zap.String("provider", res.Provider),
		zap.String("model", res.Model),
		zap.Int("dimensions", dim),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("embedded", res.Embedded),
		zap.Bool("overwrite", req.Overwrite),
	)
	return res, nil
}

// Register stores documents without embedding them. A new collection starts
// unbound; an existing one keeps its binding.
func (s *Service) Register(
	ctx context.Context, name, description string, docs []document.Row,
) (RegisterResult, error) {
	if err := collection.ValidateName(name); err != nil {
		return RegisterResult{}, err
	}
	if len(docs) == 0 {
		return RegisterResult{}, fmt.Errorf("at least one document is required: %w", domain.ErrInvalidRequest)
	}
	for _, r := range docs {
		if err := r.Validate(); err != nil {
			return RegisterResult{}, err
		}
	}
	ctx = logger.With(ctx, zap.String("collection", name))

	store, err := s.stores.Open(ctx, name)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("open collection: %w", err)
	}
	res := RegisterResult{Collection: name}
	err = store.WithTx(ctx, func(tx db.ContentStore) error {
		col, err := tx.GetCollection(ctx, name)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if col, err = collection.New(name, description, binding.Unbound(), ""); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("get collection: %w", err)
		default:
			col = col.WithDescription(description)
		}
		if _, err := tx.UpsertCollection(ctx, col); err != nil {
			return fmt.Errorf("upsert collection: %w", err)
		}
		if res.Inserted, err = tx.InsertDocuments(ctx, name, docs); err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("register documents in %q: %w", name, err)
	}
	res.Skipped = len(docs) - res.Inserted
	metrics.BuildDocumentsTotal.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.BuildDocumentsTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	logger.FromContext(ctx).Info("Documents registered",
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// AddVectors ingests vectors computed outside the engine. The first call
// binds an unbound collection to req.Model and the vector length; later
// calls must agree with that binding. Every vector is checked before
// anything is written. Documents that already have a vector are skipped.
func (s *Service) AddVectors(ctx context.Context, req AddVectorsRequest) (AddVectorsResult, error) {
	name := req.Collection
	if err := collection.ValidateName(name); err != nil {
		return AddVectorsResult{}, err
	}
	rows, dim, err := validateItems(req.Items)
	if err != nil {
		return AddVectorsResult{}, err
	}
	ctx = logger.With(ctx, zap.String("collection", name))
	log := logger.FromContext(ctx)

	var store db.ContentStore
	if len(rows) == 0 {
		store, err = s.stores.Existing(ctx, name)
	} else {
		store, err = s.stores.Open(ctx, name)
	}
	if err != nil {
		return AddVectorsResult{}, fmt.Errorf("open collection: %w", err)
	}

	res := AddVectorsResult{Collection: name, Dimensions: dim}
	var receipt *vecindex.Receipt
	err = store.WithTx(ctx, func(tx db.ContentStore) error {
		col, err := tx.GetCollection(ctx, name)
		switch {
		case errors.Is(err, domain.ErrNotFound) && len(rows) > 0:
			if col, err = collection.New(name, req.Description, binding.Unbound(), ""); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("get collection: %w", err)
		}

		model, _, err := col.Binding().Resolve(req.Model, dim)
		if err != nil {
			return err
		}
		provider, err := col.Binding().ResolveProvider(req.Provider)
		if err != nil {
			return err
		}
		bound, err := binding.Bound(provider, model, dim)
		if err != nil {
			return err
		}
		res.Provider, res.Model = provider, model
		if _, err := tx.UpsertCollection(ctx, col.WithBinding(bound).WithDescription(req.Description)); err != nil {
			return fmt.Errorf("upsert collection: %w", err)
		}
		if res.Inserted, err = tx.InsertDocuments(ctx, name, rows); err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}

		ids, vecs, err := pendingVectors(ctx, tx, name, req.Items)
		if err != nil {
			return err
		}
		res.Skipped = len(req.Items) - len(ids)
		if len(ids) == 0 {
			return nil
		}
		idx, err := s.loadIndex(ctx, tx, name, dim, false)
		if err != nil {
			return err
		}
		if receipt, err = s.index.Append(ctx, idx, name, ids, domain.NormalizeAll(vecs), tx); err != nil {
			return fmt.Errorf("append vectors: %w", err)
		}
		res.Added = len(ids)
		return nil
	})
	if err != nil {
		s.undoIndex(ctx, name, receipt)
		return AddVectorsResult{}, fmt.Errorf("add vectors to %q: %w", name, err)
	}
	if err := receipt.Commit(); err != nil {
		log.Warn("Index backup cleanup failed", zap.Error(err))
	}

	metrics.BuildDocumentsTotal.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.BuildDocumentsTotal.WithLabelValues("embedded").Add(float64(res.Added))
	log.Info("Precomputed vectors added",
		zap.String("provider", res.Provider),
		zap.String("model", res.Model),
		zap.Int("dimensions", dim),
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Collection returns the stored collection.
func (s *Service) Collection(ctx context.Context, name string) (collection.Collection, error) {
	store, err := s.stores.Existing(ctx, name)
	if err != nil {
		return collection.Collection{}, err
	}
	c, err := store.GetCollection(ctx, name)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

// Collections lists every collection in the data directory.
func (s *Service) Collections(ctx context.Context) ([]collection.Collection, error) {
	cols, err := s.stores.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// Documents returns stored rows, optionally restricted to keys. limit <= 0
// returns every match.
func (s *Service) Documents(
	ctx context.Context, name string, keys []string, limit int,
) ([]document.Document, error) {
	store, err := s.stores.Existing(ctx, name)
	if err != nil {
		return nil, err
	}
	docs, err := store.FetchDocuments(ctx, name, keys, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	return docs, nil
}

// Paths returns the two on-disk artifacts of a collection.
func (s *Service) Paths(name string) (collection.Paths, error) {
	dbPath, err := s.stores.Path(name)
	if err != nil {
		return collection.Paths{}, err
	}
	return collection.Paths{DB: dbPath, Index: s.index.Path(name)}, nil
}

// stored returns the persisted collection and whether it exists.
func (s *Service) stored(ctx context.Context, name string) (collection.Collection, bool, error) {
	store, err := s.stores.Existing(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return collection.Collection{}, false, nil
	}
	if err != nil {
		return collection.Collection{}, false, fmt.Errorf("open collection: %w", err)
	}
	c, err := store.GetCollection(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return collection.Collection{}, false, nil
	}
	if err != nil {
		return collection.Collection{}, false, fmt.Errorf("get collection: %w", err)
	}
	return c, true, nil
}

// probeText picks the text embedded to learn the model dimension: the first
// new document, or the first stored one for a document-less rebuild.
func (s *Service) probeText(ctx context.Context, name string, req BuildRequest, existing bool) (string, error) {
	if len(req.Docs) > 0 {
		return req.Docs[0].Text, nil
	}
	if !existing {
		return "", fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	store, err := s.stores.Existing(ctx, name)
	if err != nil {
		return "", err
	}
	docs, err := store.FetchDocuments(ctx, name, nil, 1)
	if err != nil {
		return "", fmt.Errorf("fetch documents: %w", err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("collection %q has no documents to embed: %w", name, domain.ErrInvalidRequest)
	}
	return docs[0].Text(), nil
}

// probe embeds one text and returns the vector length.
func probe(ctx context.Context, e domain.TextEmbedder, text string) (int, error) {
	vecs, err := e.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("probe embedding dimension: empty result: %w", domain.ErrEmbeddingProviderError)
	}
	return len(vecs[0]), nil
}

// loadIndex returns the index the transaction appends to. Outside a reset
// its length must equal the recorded vector count.
func (s *Service) loadIndex(
	ctx context.Context, tx db.ContentStore, name string, dim int, reset bool,
) (*vecindex.Flat, error) {
	f, err := s.index.Load(ctx, name, dim, reset)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if reset {
		return f, nil
	}
	count, err := tx.VectorCount(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	if f.Len() != count {
		return nil, fmt.Errorf("index holds %d vectors, store records %d: %w",
			f.Len(), count, domain.ErrIndexOutOfSync)
	}
	return f, nil
}

// undoIndex restores the index file after a failed transaction. Without a
// receipt only the resident copy is dropped, so a reset is not left behind.
func (s *Service) undoIndex(ctx context.Context, name string, receipt *vecindex.Receipt) {
	if receipt == nil {
		s.index.Evict(name)
		return
	}
	if err := receipt.Revert(); err != nil {
		logger.FromContext(ctx).Error("Index revert failed", zap.Error(err))
	}
}

func newOrStored(
	stored collection.Collection, existing bool, name, description string, b binding.Binding,
) (collection.Collection, error) {
	if existing {
		return stored.WithBinding(b).WithDescription(description), nil
	}
	return collection.New(name, description, b, "")
}

// validateItems checks keys and vector lengths, and returns the rows to insert
// and the shared dimension.
func validateItems(items []VectorItem) ([]document.Row, int, error) {
	if len(items) == 0 {
		return nil, 0, fmt.Errorf("at least one vector is required: %w", domain.ErrInvalidRequest)
	}
	dim := len(items[0].Vector)
	if dim == 0 {
		return nil, 0, fmt.Errorf("vectors must not be empty: %w", domain.ErrInvalidRequest)
	}
	var rows []document.Row
	for _, it := range items {
		if it.Key == "" {
			return nil, 0, fmt.Errorf("document key is required: %w", domain.ErrInvalidRequest)
		}
		if len(it.Vector) != dim {
			return nil, 0, domain.NewDimensionError(dim, len(it.Vector))
		}
		if it.Text == "" {
			continue
		}
		r := document.Row{Key: it.Key, Text: it.Text, Metadata: it.Metadata, Hash: it.Hash}
		if err := r.Validate(); err != nil {
			return nil, 0, err
		}
		rows = append(rows, r)
	}
	return rows, dim, nil
}

// pendingVectors matches items to stored documents and keeps the ones without
// a vector, in item order. Items whose row was deduplicated away are skipped;
// a key-only item must name a stored document.
func pendingVectors(
	ctx context.Context, tx db.ContentStore, name string, items []VectorItem,
) ([]int64, [][]float32, error) {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	docs, err := tx.FetchDocuments(ctx, name, keys, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch documents: %w", err)
	}
	byKey := make(map[string]int64, len(docs))
	all := make([]int64, 0, len(docs))
	for _, d := range docs {
		byKey[d.Key()] = d.ID()
		all = append(all, d.ID())
	}
	embedded, err := tx.FetchByIDs(ctx, name, all)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch embedded: %w", err)
	}
	done := make(map[int64]bool, len(embedded))
	for _, d := range embedded {
		done[d.ID()] = true
	}

	var ids []int64
	var vecs [][]float32
	for _, it := range items {
		id, ok := byKey[it.Key]
		if !ok {
			if it.Text == "" {
				return nil, nil, fmt.Errorf("document %q is not stored: %w", it.Key, domain.ErrInvalidRequest)
			}
			continue
		}
		if done[id] {
			continue
		}
		done[id] = true
		ids = append(ids, id)
		vecs = append(vecs, it.Vector)
	}
	return ids, vecs, nil
}
