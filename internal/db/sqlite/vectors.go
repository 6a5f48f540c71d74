package sqlite

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragstore/internal/db"
)

// RecordPositions stores ids[i] at index position start+i.
func (s *Store) RecordPositions(ctx context.Context, coll string, ids []int64, start int) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *Store) error {
		stmt, err := tx.q.PrepareContext(ctx,
			`INSERT INTO vectors (doc_id, collection, index_position) VALUES (?, ?, ?)`)
		if err != nil {
			return &db.Error{Op: db.OpInsert, Err: err}
		}
		defer stmt.Close()

		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, coll, start+i); err != nil {
				return &db.Error{Op: db.OpInsert, Err: fmt.Errorf("vector for doc %d: %w", id, err)}
			}
		}
		return nil
	})
}

// ResolvePositions maps index positions to document ids. Positions without a
// recorded id are absent from the result.
func (s *Store) ResolvePositions(ctx context.Context, coll string, positions []int) (map[int]int64, error) {
	out := make(map[int]int64, len(positions))
	for _, chunk := range chunks(positions, maxVars) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, coll)
		for _, p := range chunk {
			args = append(args, p)
		}
		rows, err := s.q.QueryContext(ctx, `SELECT index_position, doc_id FROM vectors
			WHERE collection = ? AND index_position IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		for rows.Next() {
			var pos int
			var id int64
			if err := rows.Scan(&pos, &id); err != nil {
				rows.Close()
				return nil, &db.Error{Op: db.OpScan, Err: err}
			}
			out[pos] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
	}
	return out, nil
}

// ClearVectors drops every vector record of the collection (full rebuild).
func (s *Store) ClearVectors(ctx context.Context, coll string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM vectors WHERE collection = ?`, coll); err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	return nil
}

// VectorCount returns how many documents have a recorded vector.
func (s *Store) VectorCount(ctx context.Context, coll string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE collection = ?`, coll).Scan(&n)
	if err != nil {
		return 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	return n, nil
}
