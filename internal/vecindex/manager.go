package vecindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/logger"
)

// FileExt is the index file extension of a collection.
const FileExt = ".vec"

// PositionRecorder persists the id-to-position mapping of appended vectors.
type PositionRecorder interface {
	RecordPositions(ctx context.Context, coll string, ids []int64, start int) error
}

// PositionResolver maps index positions back to document ids.
type PositionResolver interface {
	ResolvePositions(ctx context.Context, coll string, positions []int) (map[int]int64, error)
}

// Match is a search hit resolved to a document id.
type Match struct {
	DocID int64
	Score float64
}

// Manager owns the per-collection index files under one directory.
type Manager struct {
	dir   string
	cache *Cache
	loads singleflight.Group
}

// NewManager creates a manager. A nil cache means a never-evicting cache.
func NewManager(dir string, cache *Cache) *Manager {
	if cache == nil {
		cache = NewCache(nil)
	}
	return &Manager{dir: dir, cache: cache}
}

// Path returns the index file of a collection.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name+FileExt)
}

// Load returns the resident index, reading it from disk or creating it empty.
// reset=true always starts fresh; the file is replaced at the next Append. An
// on-disk dimension different from dim fails with ErrVectorDimMismatch.
func (m *Manager) Load(ctx context.Context, name string, dim int, reset bool) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive: %w", domain.ErrInvalidRequest)
	}
	if reset {
		f := NewFlat(dim)
		m.cache.Put(name, f)
		logger.FromContext(ctx).Debug("vector index reset",
			zap.String("collection", name), zap.Int("dim", dim))
		return f, nil
	}

	f, err := m.resident(ctx, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = NewFlat(dim)
		m.cache.Put(name, f)
		return f, nil
	}
	if f.Dim() != dim {
		return nil, domain.NewDimensionError(f.Dim(), dim)
	}
	return f, nil
}

// resident returns the cached index or reads it from disk. It returns nil
// without error when the collection has no index yet.
func (m *Manager) resident(ctx context.Context, name string) (*Flat, error) {
	if f, ok := m.cache.Get(name); ok {
		return f, nil
	}
	v, err, _ := m.loads.Do(name, func() (any, error) {
		if f, ok := m.cache.Get(name); ok {
			return f, nil
		}
		f, ok, err := readFile(m.Path(name))
		if err != nil || !ok {
			return (*Flat)(nil), err
		}
		m.cache.Put(name, f)
		logger.FromContext(ctx).Debug("vector index loaded",
			zap.String("collection", name), zap.Int("dim", f.Dim()), zap.Int("count", f.Len()))
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Flat), nil
}

// Receipt finalizes or undoes one Append.
type Receipt struct {
	manager *Manager
	name    string
	path    string
	backup  string
	start   int
	count   int
	done    bool
}

// Start returns the first position assigned by the Append.
func (r *Receipt) Start() int { return r.start }

// Count returns how many vectors were appended.
func (r *Receipt) Count() int { return r.count }

// Commit drops the previous file kept for Revert.
func (r *Receipt) Commit() error {
	if r == nil || r.done {
		return nil
	}
	r.done = true
	if r.backup == "" {
		return nil
	}
	if err := os.Remove(r.backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove index backup: %w", err)
	}
	return nil
}

// Revert restores the previous file and evicts the resident index so the
// next Load reads the restored state.
func (r *Receipt) Revert() error {
	if r == nil || r.done {
		return nil
	}
	r.done = true
	r.manager.cache.Evict(r.name)
	if r.backup == "" {
		if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove index: %w", err)
		}
		return nil
	}
	if err := os.Rename(r.backup, r.path); err != nil {
		return fmt.Errorf("restore index backup: %w", err)
	}
	return nil
}

// Append appends vectors for ids to f, the index returned by Load, at the
// next sequential positions. Every vector is checked against the index
// dimension before anything is written. Positions are recorded through rec
// before the file is replaced; memory is updated last and f becomes the
// resident index of name again, even if the cache dropped it meanwhile.
func (m *Manager) Append(
	ctx context.Context, f *Flat, name string, ids []int64, vectors [][]float32, rec PositionRecorder,
) (*Receipt, error) {
	if f == nil {
		return nil, fmt.Errorf("index %q is not loaded: %w", name, domain.ErrInvalidRequest)
	}
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("ids and vectors length mismatch: %d != %d: %w",
			len(ids), len(vectors), domain.ErrInvalidRequest)
	}
	if err := domain.CheckDimensions(f.Dim(), vectors...); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := f.n
	if rec != nil && len(ids) > 0 {
		if err := rec.RecordPositions(ctx, name, ids, start); err != nil {
			return nil, fmt.Errorf("record positions: %w", err)
		}
	}
	data := f.withAppended(vectors)
	backup, err := writeFile(m.Path(name), f.dim, start+len(vectors), data)
	if err != nil {
		return nil, err
	}
	f.data = data
	f.n = start + len(vectors)
	m.cache.Put(name, f)

	logger.FromContext(ctx).Debug("vectors appended",
		zap.String("collection", name), zap.Int("start", start), zap.Int("count", len(vectors)))
	return &Receipt{
		manager: m, name: name, path: m.Path(name), backup: backup,
		start: start, count: len(vectors),
	}, nil
}

// Search returns up to topK matches in descending score, auto-loading the
// on-disk index. Positions without a recorded id are dropped.
func (m *Manager) Search(
	ctx context.Context, name string, query []float32, topK int, res PositionResolver,
) ([]Match, error) {
	f, err := m.resident(ctx, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}
	neighbors, err := f.Search(query, topK)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}
	positions := make([]int, len(neighbors))
	for i, n := range neighbors {
		positions[i] = n.Position
	}
	ids, err := res.ResolvePositions(ctx, name, positions)
	if err != nil {
		return nil, fmt.Errorf("resolve positions: %w", err)
	}

	out := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		id, ok := ids[n.Position]
		if !ok {
			continue
		}
		out = append(out, Match{DocID: id, Score: n.Score})
	}
	return out, nil
}

// Evict drops the resident index of a collection.
func (m *Manager) Evict(name string) { m.cache.Evict(name) }
