package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// MaxTextSize is the maximum document text size in bytes.
const MaxTextSize = 163840 // 160KB

// MaxKeySize is the maximum doc_key length in bytes.
const MaxKeySize = 1024

// Row is the ingestion shape supplied by packaging: (doc_key, text, metadata, content_hash?).
type Row struct {
	Key      string
	Text     string
	Metadata map[string]any
	Hash     string
}

// Validate checks the required fields of a row.
func (r Row) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("document key is required: %w", domain.ErrInvalidRequest)
	}
	if len(r.Key) > MaxKeySize {
		return fmt.Errorf("document key too long (max %d): %w", MaxKeySize, domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("document %q: text is required: %w", r.Key, domain.ErrInvalidRequest)
	}
	if len(r.Text) > MaxTextSize {
		return fmt.Errorf("document %q: text too large (max %d bytes): %w", r.Key, MaxTextSize, domain.ErrInvalidRequest)
	}
	return nil
}

// Document is the stored document aggregate (immutable value object).
type Document struct {
	id         int64
	collection string
	key        string
	text       string
	normalized string
	metadata   map[string]any
	hash       string
	createdAt  int64
}

// New builds an unsaved Document from a row, filling normalized text and the
// content hash when the row does not carry one.
func New(collection string, r Row) (Document, error) {
	if err := r.Validate(); err != nil {
		return Document{}, err
	}
	hash := r.Hash
	if hash == "" {
		hash = ContentHash(r.Text)
	}
	return Document{
		collection: collection,
		key:        r.Key,
		text:       r.Text,
		normalized: NormalizeText(r.Text),
		metadata:   maps.Clone(r.Metadata),
		hash:       hash,
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id int64, collection, key, text, normalized string,
	metadata map[string]any, hash string, createdAt int64,
) Document {
	return Document{
		id: id, collection: collection, key: key, text: text, normalized: normalized,
		metadata: metadata, hash: hash, createdAt: createdAt,
	}
}

// ID returns the internal row id (0 before insert).
func (d Document) ID() int64 { return d.id }

// Collection returns the owning collection name.
func (d Document) Collection() string { return d.collection }

// Key returns the doc_key.
func (d Document) Key() string { return d.key }

// Text returns the raw text.
func (d Document) Text() string { return d.text }

// Normalized returns the normalized text mirrored into the keyword index.
func (d Document) Normalized() string { return d.normalized }

// Metadata returns the metadata map.
func (d Document) Metadata() map[string]any { return d.metadata }

// Hash returns the content hash.
func (d Document) Hash() string { return d.hash }

// CreatedAt returns the insert timestamp (unix millis).
func (d Document) CreatedAt() int64 { return d.createdAt }

// ContentHash returns the SHA-256 hex digest of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NormalizeText lowercases, strips accents and collapses whitespace.
func NormalizeText(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}
