package sqlite

import (
	"context"
	"regexp"
	"strings"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain/document"
)

// termRegex keeps letter and digit runs; everything else (quotes, operators,
// column filters, prefix stars) is FTS5 syntax and is dropped.
var termRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// SanitizeQuery turns free text into an FTS5 expression of quoted terms,
// implicitly ANDed. The normalized form is used when matching normalized text.
// An empty result means nothing to search for.
func SanitizeQuery(query string, useNormalized bool) string {
	if useNormalized {
		query = document.NormalizeText(query)
	}
	terms := termRegex.FindAllString(query, -1)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " ")
}

// SearchKeyword matches the sanitized query against normalized text (default)
// or raw text. Every hit scores db.KeywordScore.
func (s *Store) SearchKeyword(
	ctx context.Context, coll, query string, limit int, useNormalized bool,
) ([]db.KeywordHit, error) {
	expr := SanitizeQuery(query, useNormalized)
	if expr == "" || limit <= 0 {
		return nil, nil
	}
	column := "text"
	if useNormalized {
		column = "normalized_text"
	}

	docs, err := s.queryDocuments(ctx, `SELECT `+documentColumns+`
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts.`+column+` MATCH ? AND d.collection = ?
		ORDER BY documents_fts.rank
		LIMIT ?`, expr, coll, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]db.KeywordHit, len(docs))
	for i, d := range docs {
		hits[i] = db.KeywordHit{Document: d, Score: db.KeywordScore}
	}
	return hits, nil
}
