package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/collection"
)

// FileExt is the database file extension of a collection.
const FileExt = ".sqlite"

// Registry opens and caches one Store per collection under a data directory.
type Registry struct {
	dir         string
	busyTimeout time.Duration
	log         *zap.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates the data directory if needed.
func NewRegistry(dir string, busyTimeout time.Duration, log *zap.Logger) (*Registry, error) {
	if dir == "" {
		return nil, domain.NewConfigurationError("storage.data_dir", "is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{dir: dir, busyTimeout: busyTimeout, log: log, stores: make(map[string]*Store)}, nil
}

// Dir returns the data directory.
func (r *Registry) Dir() string { return r.dir }

// Path returns the database file of a collection.
func (r *Registry) Path(name string) (string, error) {
	if err := collection.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(r.dir, name+FileExt), nil
}

// Open returns the collection's store, creating the database file if absent.
func (r *Registry) Open(ctx context.Context, name string) (db.ContentStore, error) {
	s, err := r.open(ctx, name, true)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Existing returns the collection's store or domain.ErrNotFound when no
// database file exists yet.
func (r *Registry) Existing(ctx context.Context, name string) (db.ContentStore, error) {
	s, err := r.open(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) open(ctx context.Context, name string, create bool) (*Store, error) {
	path, err := r.Path(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	if !create {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
		}
	}
	s, err := Open(ctx, path, r.busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", name, err)
	}
	r.stores[name] = s
	r.log.Debug("collection store opened", zap.String("collection", name), zap.String("path", path))
	return s, nil
}

// List returns the collections of every database file in the data directory, by name.
func (r *Registry) List(ctx context.Context) ([]collection.Collection, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), FileExt)
		if collection.ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []collection.Collection
	for _, name := range names {
		s, err := r.open(ctx, name, false)
		if err != nil {
			return nil, err
		}
		c, err := s.GetCollection(ctx, name)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Ping checks every opened store.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.stores {
		if err := s.Ping(ctx); err != nil {
			return fmt.Errorf("collection %q: %w", name, err)
		}
	}
	return nil
}

// Close closes every opened store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close collection %q: %w", name, err))
		}
		delete(r.stores, name)
	}
	return errors.Join(errs...)
}
