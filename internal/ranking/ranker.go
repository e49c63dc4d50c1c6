// Package ranking scores queries against a posting store. Two models are
// provided, cosine TF-IDF (VSM) and BM25. Both are immutable after
// construction and safe for concurrent Rank calls.
package ranking

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
)

// ScoredDoc is one ranked document.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// QueryResult is the ranked list for one query.
type QueryResult struct {
	QueryID string      `json:"query_id"`
	Docs    []ScoredDoc `json:"docs"`
}

// Ranker scores a token sequence and returns at most topK documents ordered
// by score descending, ties broken by ascending document id. topK <= 0
// means no limit. Params names the model together with every setting that
// changes its scores; two rankers over the same store with equal Params
// rank identically.
type Ranker interface {
	Name() string
	Params() string
	Rank(tokens []string, topK int) []ScoredDoc
}

// Search ranks every query in order.
func Search(r Ranker, queries []index.Query, topK int) []QueryResult {
	results := make([]QueryResult, 0, len(queries))
	for _, q := range queries {
		results = append(results, QueryResult{
			QueryID: q.ID,
			Docs:    r.Rank(q.Tokens, topK),
		})
	}
	return results
}

// ranksBefore is the output order: higher score first, then lower doc id.
func ranksBefore(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

func sortDocs(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		return ranksBefore(docs[i], docs[j])
	})
}

// distinctTerms counts tokens and returns the distinct terms in order of
// first occurrence, which fixes the floating point summation order.
func distinctTerms(tokens []string) ([]string, map[string]int) {
	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, seen := counts[tok]; !seen {
			order = append(order, tok)
		}
		counts[tok]++
	}
	return order, counts
}
