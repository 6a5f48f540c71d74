package search

import (
	"context"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/db/sqlite"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/binding"
	"github.com/kailas-cloud/ragstore/internal/domain/collection"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
	"github.com/kailas-cloud/ragstore/internal/vecindex"
)

const conceptDim = 4

// conceptEmbedder maps each known word to one of four concept axes and sums
// them. Texts in fixed bypass the lexicon.
type conceptEmbedder struct {
	fixed map[string][]float32
	dim   int
	err   error
	calls int
}

var lexicon = map[string]int{
	"insulin": 0, "glucose": 0, "blood": 0, "sugar": 0, "control": 0, "regulates": 0,
	"metformin": 1, "biguanide": 1, "drug": 1,
	"piano": 2, "violin": 2, "music": 2,
}

func (e *conceptEmbedder) Provider() string { return "concept" }
func (e *conceptEmbedder) Model() string    { return "concept-4" }

func (e *conceptEmbedder) Embed(_ context.Context, texts ...string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	dim := e.dim
	if dim == 0 {
		dim = conceptDim
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.fixed[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float32, dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			axis, ok := lexicon[w]
			if !ok {
				axis = 3
			}
			v[axis%dim]++
		}
		out[i] = v
	}
	return out, nil
}

type fakeResolver struct {
	emb          *conceptEmbedder
	err          error
	lastProvider string
	lastModel    string
}

func (r *fakeResolver) Embedder(_ context.Context, provider, model string) (domain.TextEmbedder, error) {
	r.lastProvider, r.lastModel = provider, model
	if r.err != nil {
		return nil, r.err
	}
	return r.emb, nil
}

// recordingSearcher wraps the real index manager and remembers the requested topK.
type recordingSearcher struct {
	inner *vecindex.Manager
	topK  int
}

func (s *recordingSearcher) Search(
	ctx context.Context, name string, query []float32, topK int, res vecindex.PositionResolver,
) ([]vecindex.Match, error) {
	s.topK = topK
	return s.inner.Search(ctx, name, query, topK, res)
}

type testEnv struct {
	stores   *sqlite.Registry
	index    *vecindex.Manager
	searcher *recordingSearcher
	embedder *conceptEmbedder
	resolver *fakeResolver
	svc      *Service
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	reg, err := sqlite.NewRegistry(dir, 0, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	idx := vecindex.NewManager(dir, nil)
	rs := &recordingSearcher{inner: idx}
	emb := &conceptEmbedder{fixed: map[string][]float32{}}
	res := &fakeResolver{emb: emb}
	return &testEnv{
		stores: reg, index: idx, searcher: rs, embedder: emb, resolver: res,
		svc: New(reg, rs, res),
	}
}

// seed creates a collection bound to the concept model and embeds every row.
func (e *testEnv) seed(t *testing.T, name string, rows []document.Row) {
	t.Helper()
	ctx := context.Background()
	store, err := e.stores.Open(ctx, name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := binding.Bound("concept", "concept-4", conceptDim)
	c, _ := collection.New(name, "", b, "")
	if _, err := store.UpsertCollection(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.InsertDocuments(ctx, name, rows); err != nil {
		t.Fatalf("insert: %v", err)
	}
	docs, err := store.FetchUnembedded(ctx, name)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	ids := make([]int64, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID()
		texts[i] = d.Text()
	}
	vecs, _ := e.embedder.Embed(ctx, texts...)
	idx, err := e.index.Load(ctx, name, conceptDim, false)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	rec, err := e.index.Append(ctx, idx, name, ids, domain.NormalizeAll(vecs), store)
	if err != nil {
		t.Fatalf("add vectors: %v", err)
	}
	if err := rec.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	e.embedder.calls = 0
}

// seedUnbound registers rows without vectors.
func (e *testEnv) seedUnbound(t *testing.T, name string, rows []document.Row) {
	t.Helper()
	ctx := context.Background()
	store, _ := e.stores.Open(ctx, name)
	c, _ := collection.New(name, "", binding.Unbound(), "")
	if _, err := store.UpsertCollection(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.InsertDocuments(ctx, name, rows); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func demoRows() []document.Row {
	return []document.Row{
		{Key: "k1", Text: "insulin regulates glucose", Metadata: map[string]any{}},
		{Key: "k2", Text: "metformin is a biguanide", Metadata: map[string]any{}},
	}
}

func ptr(f float64) *float64 { return &f }
