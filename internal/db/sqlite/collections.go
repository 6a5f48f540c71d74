package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/binding"
	"github.com/kailas-cloud/ragstore/internal/domain/collection"
)

const collectionColumns = `name, description, created_at, updated_at,
	embedding_provider, embedding_model, embedding_dimensions, index_type`

// UpsertCollection creates the collection row or updates it in place.
// created_at is preserved; updated_at is always refreshed. An empty
// description keeps the stored one.
func (s *Store) UpsertCollection(ctx context.Context, c collection.Collection) (collection.Collection, error) {
	provider, model, dim := c.Binding().Encode()
	now := time.Now().UnixMilli()
	createdAt := c.CreatedAt()
	if createdAt == 0 {
		createdAt = now
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO collections (`+collectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			description = CASE WHEN excluded.description <> '' THEN excluded.description
			                   ELSE collections.description END,
			updated_at = excluded.updated_at,
			embedding_provider = excluded.embedding_provider,
			embedding_model = excluded.embedding_model,
			embedding_dimensions = excluded.embedding_dimensions,
			index_type = excluded.index_type`,
		c.Name(), c.Description(), createdAt, now, provider, model, dim, string(c.IndexType()),
	)
	if err != nil {
		return collection.Collection{}, &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("collection %q: %w", c.Name(), err)}
	}
	return s.GetCollection(ctx, c.Name())
}

// GetCollection returns the collection row or a wrapped domain.ErrNotFound.
func (s *Store) GetCollection(ctx context.Context, name string) (collection.Collection, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE name = ?`, name)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.Collection{}, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return collection.Collection{}, &db.Error{Op: db.OpQuery, Err: err}
	}
	return c, nil
}

// ListCollections returns every collection row in the database, by name.
func (s *Store) ListCollections(ctx context.Context) ([]collection.Collection, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY name`)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []collection.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(r scanner) (collection.Collection, error) {
	var (
		name, description, provider, model, indexType string
		createdAt, updatedAt                          int64
		dim                                           int
	)
	if err := r.Scan(&name, &description, &createdAt, &updatedAt, &provider, &model, &dim, &indexType); err != nil {
		return collection.Collection{}, err
	}
	return collection.Reconstruct(
		name, description, binding.Decode(provider, model, dim),
		collection.IndexType(indexType), createdAt, updatedAt,
	), nil
}
