package collection

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/binding"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IndexType names the vector index layout of a collection.
type IndexType string

const (
	// IndexFlatIP is an exact flat inner-product index over normalized vectors.
	IndexFlatIP IndexType = "flat_ip"
)

// IsValid checks if the index type is supported.
func (t IndexType) IsValid() bool {
	return t == IndexFlatIP
}

// Collection is the document collection aggregate (immutable value object).
type Collection struct {
	name        string
	description string
	binding     binding.Binding
	indexType   IndexType
	createdAt   int64
	updatedAt   int64
}

// ValidateName checks the collection name. Names become file names, so the
// character set is restricted.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required: %w", domain.ErrInvalidRequest)
	}
	if len(name) > 64 {
		return fmt.Errorf("collection name too long (max 64): %w", domain.ErrInvalidRequest)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("collection name must be alphanumeric with underscores and hyphens: %w",
			domain.ErrInvalidRequest)
	}
	return nil
}

// New validates and creates a Collection stamped with the current time.
func New(name, description string, b binding.Binding, indexType IndexType) (Collection, error) {
	if indexType == "" {
		indexType = IndexFlatIP
	}
	if !indexType.IsValid() {
		return Collection{}, fmt.Errorf("invalid index type %q: %w", indexType, domain.ErrInvalidRequest)
	}
	if err := ValidateName(name); err != nil {
		return Collection{}, err
	}
	now := time.Now().UnixMilli()
	return Collection{
		name:        name,
		description: description,
		binding:     b,
		indexType:   indexType,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct creates a Collection without validation (storage hydration).
func Reconstruct(
	name, description string, b binding.Binding,
	indexType IndexType, createdAt, updatedAt int64,
) Collection {
	if indexType == "" {
		indexType = IndexFlatIP
	}
	return Collection{
		name:        name,
		description: description,
		binding:     b,
		indexType:   indexType,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Description returns the free-form description.
func (c Collection) Description() string { return c.description }

// Binding returns the embedding model binding.
func (c Collection) Binding() binding.Binding { return c.binding }

// IndexType returns the vector index layout.
func (c Collection) IndexType() IndexType { return c.indexType }

// CreatedAt returns the creation timestamp (unix millis).
func (c Collection) CreatedAt() int64 { return c.createdAt }

// UpdatedAt returns the last upsert timestamp (unix millis).
func (c Collection) UpdatedAt() int64 { return c.updatedAt }

// WithBinding returns a copy bound to b.
func (c Collection) WithBinding(b binding.Binding) Collection {
	c.binding = b
	return c
}

// WithDescription returns a copy with the given description. An empty
// description keeps the current one.
func (c Collection) WithDescription(description string) Collection {
	if description != "" {
		c.description = description
	}
	return c
}

// Paths are the two on-disk artifacts of a collection.
type Paths struct {
	DB    string
	Index string
}
