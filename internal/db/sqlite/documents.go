package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
)

const documentColumns = `d.id, d.collection, d.doc_key, d.text, d.normalized_text,
	d.metadata, d.content_hash, d.created_at`

// InsertDocuments inserts rows, silently skipping duplicates by doc_key or
// content hash. It returns how many rows were stored. The FTS mirror is
// updated by triggers in the same transaction.
func (s *Store) InsertDocuments(ctx context.Context, coll string, rows []document.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	docs := make([]document.Document, 0, len(rows))
	for _, r := range rows {
		d, err := document.New(coll, r)
		if err != nil {
			return 0, err
		}
		docs = append(docs, d)
	}

	inserted := 0
	err := s.inTx(ctx, func(tx *Store) error {
		stmt, err := tx.q.PrepareContext(ctx, `
			INSERT INTO documents (collection, doc_key, text, normalized_text, metadata, content_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`)
		if err != nil {
			return &db.Error{Op: db.OpInsert, Err: err}
		}
		defer stmt.Close()

		now := time.Now().UnixMilli()
		for _, d := range docs {
			meta, err := encodeMetadata(d.Metadata())
			if err != nil {
				return fmt.Errorf("document %q: %w", d.Key(), err)
			}
			res, err := stmt.ExecContext(ctx, coll, d.Key(), d.Text(), d.Normalized(), meta, d.Hash(), now)
			if err != nil {
				return &db.Error{Op: db.OpInsert, Err: fmt.Errorf("document %q: %w", d.Key(), err)}
			}
			n, err := res.RowsAffected()
			if err != nil {
				return &db.Error{Op: db.OpInsert, Err: err}
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// FetchDocuments returns raw rows in unspecified order. Empty keys selects
// every row; limit <= 0 means no limit.
func (s *Store) FetchDocuments(ctx context.Context, coll string, keys []string, limit int) ([]document.Document, error) {
	if len(keys) == 0 {
		q := `SELECT ` + documentColumns + ` FROM documents d WHERE d.collection = ?`
		args := []any{coll}
		if limit > 0 {
			q += ` LIMIT ?`
			args = append(args, limit)
		}
		return s.queryDocuments(ctx, q, args...)
	}

	var out []document.Document
	for _, chunk := range chunks(keys, maxVars) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, coll)
		for _, k := range chunk {
			args = append(args, k)
		}
		docs, err := s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents d
			WHERE d.collection = ? AND d.doc_key IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

// FetchUnembedded returns documents without a recorded vector, in insert order.
func (s *Store) FetchUnembedded(ctx context.Context, coll string) ([]document.Document, error) {
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents d
		LEFT JOIN vectors v ON v.doc_id = d.id
		WHERE d.collection = ? AND v.doc_id IS NULL
		ORDER BY d.id`, coll)
}

// FetchByIDs returns only documents that already have a recorded vector.
// Order is unspecified.
func (s *Store) FetchByIDs(ctx context.Context, coll string, ids []int64) ([]document.Document, error) {
	var out []document.Document
	for _, chunk := range chunks(ids, maxVars) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, coll)
		for _, id := range chunk {
			args = append(args, id)
		}
		docs, err := s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents d
			JOIN vectors v ON v.doc_id = d.id AND v.collection = d.collection
			WHERE d.collection = ? AND d.id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]document.Document, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return out, nil
}

func scanDocument(r scanner) (document.Document, error) {
	var (
		id, createdAt                            int64
		coll, key, text, normalized, metadataRaw string
		hash                                     sql.NullString
	)
	if err := r.Scan(&id, &coll, &key, &text, &normalized, &metadataRaw, &hash, &createdAt); err != nil {
		return document.Document{}, err
	}
	meta, err := decodeMetadata(metadataRaw)
	if err != nil {
		return document.Document{}, fmt.Errorf("document %q: %w", key, err)
	}
	return document.Reconstruct(id, coll, key, text, normalized, meta, hash.String, createdAt), nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}
