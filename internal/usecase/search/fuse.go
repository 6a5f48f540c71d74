package search

import (
	"sort"

	"github.com/kailas-cloud/ragstore/internal/domain/search/result"
)

type fused struct {
	res       result.Result
	keyword   *float64
	embedding *float64
}

// fuse unions both hit lists by document id and scores every document as
// alpha*embedding + (1-alpha)*keyword. A side that did not return the
// document contributes 0. Ties keep first-seen order, embedding hits first.
func fuse(keyword, embedding []result.Result, alpha float64, topK int) []result.Result {
	merged := make(map[int64]*fused, len(keyword)+len(embedding))
	order := make([]int64, 0, len(keyword)+len(embedding))

	entry := func(r result.Result) *fused {
		f, ok := merged[r.DocID()]
		if !ok {
			f = &fused{res: r}
			merged[r.DocID()] = f
			order = append(order, r.DocID())
		}
		return f
	}
	for _, r := range embedding {
		s := r.Score()
		entry(r).embedding = &s
	}
	for _, r := range keyword {
		s := r.Score()
		entry(r).keyword = &s
	}

	out := make([]result.Result, 0, len(order))
	for _, id := range order {
		f := merged[id]
		var kw, emb float64
		if f.keyword != nil {
			kw = *f.keyword
		}
		if f.embedding != nil {
			emb = *f.embedding
		}
		out = append(out, f.res.
			WithSubScores(f.keyword, f.embedding).
			WithScore(alpha*emb+(1-alpha)*kw))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
