package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/db/sqlite"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
	"github.com/kailas-cloud/ragstore/internal/transport/hashing"
	embeddinguc "github.com/kailas-cloud/ragstore/internal/usecase/embedding"
	"github.com/kailas-cloud/ragstore/internal/vecindex"
)

var errInjected = errors.New("injected failure")

// countingEmbedder wraps a real embedder, counts calls and fails the
// failOn-th call when set. A non-empty provider overrides the reported one.
type countingEmbedder struct {
	domain.TextEmbedder
	provider string
	calls    int
	failOn   int
}

func (e *countingEmbedder) Provider() string {
	if e.provider != "" {
		return e.provider
	}
	return e.TextEmbedder.Provider()
}

func (e *countingEmbedder) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	e.calls++
	if e.failOn > 0 && e.calls == e.failOn {
		return nil, errInjected
	}
	return e.TextEmbedder.Embed(ctx, texts...)
}

// hashingResolver serves "hashing-<dim>" models under any provider name and
// records every (provider, model) it was asked for. The empty model is
// hashing-16.
type hashingResolver struct {
	last      *countingEmbedder
	next      *countingEmbedder
	requested [][2]string
}

func (r *hashingResolver) Embedder(_ context.Context, provider, model string) (domain.TextEmbedder, error) {
	r.requested = append(r.requested, [2]string{provider, model})
	if r.next != nil {
		e := r.next
		r.next = nil
		r.last = e
		return e, nil
	}
	dim := 16
	if model != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(model, "hashing-"))
		if err != nil {
			return nil, domain.NewConfigurationError("embedding.model", fmt.Sprintf("unknown model %q", model))
		}
		dim = n
	}
	svc := embeddinguc.NewService(nil, hashing.NewEmbedder(dim), embeddinguc.Config{})
	r.last = &countingEmbedder{TextEmbedder: svc, provider: provider}
	return r.last, nil
}

// renamedEmbedder reports a fixed model name over any vectors.
type renamedEmbedder struct {
	domain.TextEmbedder
	model string
}

func (e renamedEmbedder) Model() string { return e.model }

// failingIndex appends through the real manager, then reports an error.
type failingIndex struct {
	*vecindex.Manager
}

func (f failingIndex) Append(
	ctx context.Context, idx *vecindex.Flat, name string, ids []int64, vectors [][]float32,
	rec vecindex.PositionRecorder,
) (*vecindex.Receipt, error) {
	r, err := f.Manager.Append(ctx, idx, name, ids, vectors, rec)
	if err != nil {
		return nil, err
	}
	return r, errInjected
}

type testEnv struct {
	stores   *sqlite.Registry
	index    *vecindex.Manager
	resolver *hashingResolver
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
	res := &hashingResolver{}
	return &testEnv{stores: reg, index: idx, resolver: res, svc: New(reg, idx, res)}
}

func demoRows() []document.Row {
	return []document.Row{
		{Key: "k1", Text: "insulin regulates glucose", Metadata: map[string]any{}},
		{Key: "k2", Text: "metformin is a biguanide", Metadata: map[string]any{"source": "pharma"}},
	}
}

func (e *testEnv) build(t *testing.T, req BuildRequest) BuildResult {
	t.Helper()
	res, err := e.svc.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return res
}

// indexLen reads the index back from disk.
func (e *testEnv) indexLen(t *testing.T, name string, dim int) int {
	t.Helper()
	e.index.Evict(name)
	f, err := e.index.Load(context.Background(), name, dim, false)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	return f.Len()
}

func (e *testEnv) vectorCount(t *testing.T, name string) int {
	t.Helper()
	store, err := e.stores.Existing(context.Background(), name)
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	n, err := store.VectorCount(context.Background(), name)
	if err != nil {
		t.Fatalf("vector count: %v", err)
	}
	return n
}
