package search

import (
	"math"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/domain/document"
	"github.com/kailas-cloud/ragstore/internal/domain/search/result"
)

func hit(id int64, key string, score float64) result.Result {
	return result.New(document.Reconstruct(id, "demo", key, key, key, nil, "", 0), score)
}

func TestFuse_EqualScoresFromOneSideEach(t *testing.T) {
	keyword := []result.Result{hit(1, "a", 1.0)}
	embedding := []result.Result{hit(2, "b", 1.0)}

	both := fuse(keyword, embedding, 0.5, 2)
	if len(both) != 2 {
		t.Fatalf("expected 2 results, got %d", len(both))
	}
	if both[0].Score() != 0.5 || both[1].Score() != 0.5 {
		t.Errorf("scores = %v, %v; want 0.5 each", both[0].Score(), both[1].Score())
	}

	top := fuse(keyword, embedding, 0.5, 1)
	if len(top) != 1 || top[0].Score() != 0.5 {
		t.Fatalf("top-1 = %v", top)
	}
}

func TestFuse_MissingSideContributesZero(t *testing.T) {
	keyword := []result.Result{hit(1, "a", 1.0), hit(2, "b", 1.0)}
	embedding := []result.Result{hit(2, "b", 0.8)}

	out := fuse(keyword, embedding, 0.3, 10)
	if len(out) != 2 {
		t.Fatalf("expected union of 2, got %d", len(out))
	}
	if out[0].Key() != "b" {
		t.Errorf("expected b first, got %s", out[0].Key())
	}
	if want := 0.3*0.8 + 0.7; math.Abs(out[0].Score()-want) > 1e-9 {
		t.Errorf("b score = %v, want %v", out[0].Score(), want)
	}
	if math.Abs(out[1].Score()-0.7) > 1e-9 {
		t.Errorf("a score = %v, want 0.7", out[1].Score())
	}
	if out[1].EmbeddingScore() != nil || out[1].KeywordScore() == nil {
		t.Error("a must keep only its keyword sub-score")
	}
	if *out[0].EmbeddingScore() != 0.8 || *out[0].KeywordScore() != 1.0 {
		t.Error("b must carry both sub-scores")
	}
}

func TestFuse_AlphaBounds(t *testing.T) {
	keyword := []result.Result{hit(1, "a", 1.0)}
	embedding := []result.Result{hit(2, "b", 0.9), hit(1, "a", 0.2)}

	pure := fuse(keyword, embedding, 1, 10)
	for _, r := range pure {
		if r.Score() != *r.EmbeddingScore() {
			t.Errorf("alpha=1: %s score %v != embedding %v", r.Key(), r.Score(), *r.EmbeddingScore())
		}
	}

	lexical := fuse(keyword, embedding, 0, 10)
	if lexical[0].Key() != "a" || lexical[0].Score() != 1.0 {
		t.Errorf("alpha=0: expected a with 1.0 first, got %s %v", lexical[0].Key(), lexical[0].Score())
	}
	if lexical[1].Score() != 0 {
		t.Errorf("alpha=0: embedding-only hit must score 0, got %v", lexical[1].Score())
	}
}

func TestFuse_Empty(t *testing.T) {
	if out := fuse(nil, nil, 0.5, 5); len(out) != 0 {
		t.Fatalf("expected no results, got %v", out)
	}
}
