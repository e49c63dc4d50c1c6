package ranking

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// VSM ranks by cosine similarity of log-scaled TF-IDF vectors. Document
// norms and term IDFs are computed once at construction.
type VSM struct {
	store *index.Store
	idf   map[string]float64
	norms map[string]float64
}

// NewVSM precomputes idf(t) = ln((N+1)/(df+1)) + 1 for every term and the
// Euclidean norm of every document vector.
func NewVSM(store *index.Store) (*VSM, error) {
	n := store.N()
	if n == 0 {
		return nil, fmt.Errorf("building vsm ranker: %w", apperrors.ErrEmptyCorpus)
	}
	v := &VSM{
		store: store,
		idf:   make(map[string]float64, len(store.Terms())),
		norms: make(map[string]float64, n),
	}
	for _, term := range store.Terms() {
		df := store.DocumentFrequency(term)
		idf := math.Log(float64(n+1)/float64(df+1)) + 1
		v.idf[term] = idf
		for _, p := range store.Postings(term) {
			w := tfWeight(p.Frequency) * idf
			v.norms[p.DocID] += w * w
		}
	}
	for docID, sq := range v.norms {
		v.norms[docID] = math.Sqrt(sq)
	}
	return v, nil
}

func (v *VSM) Name() string { return "vsm" }

// Params is the model name; VSM has no free parameters.
func (v *VSM) Params() string { return "vsm" }

// IDF returns the precomputed idf of term and whether term is in the
// vocabulary.
func (v *VSM) IDF(term string) (float64, bool) {
	idf, ok := v.idf[term]
	return idf, ok
}

// Rank scores tokens against every document sharing a term with them, then
// pads the list with zero-score documents in ascending id order up to topK.
// Out-of-vocabulary terms carry no weight; a query made only of them
// returns nothing.
func (v *VSM) Rank(tokens []string, topK int) []ScoredDoc {
	if len(tokens) == 0 {
		return []ScoredDoc{}
	}
	terms, counts := distinctTerms(tokens)

	weights := make([]float64, len(terms))
	var qnormSq float64
	for i, term := range terms {
		idf, ok := v.idf[term]
		if !ok {
			continue
		}
		weights[i] = tfWeight(counts[term]) * idf
		qnormSq += weights[i] * weights[i]
	}
	if qnormSq == 0 {
		return []ScoredDoc{}
	}
	qnorm := math.Sqrt(qnormSq)

	scores := make(map[string]float64)
	for i, term := range terms {
		if weights[i] == 0 {
			continue
		}
		idf := v.idf[term]
		for _, p := range v.store.Postings(term) {
			scores[p.DocID] += weights[i] * tfWeight(p.Frequency) * idf
		}
	}
	touched := make(map[string]struct{}, len(scores))
	for docID, dot := range scores {
		touched[docID] = struct{}{}
		norm := v.norms[docID]
		if norm == 0 {
			delete(scores, docID)
			continue
		}
		scores[docID] = dot / (norm * qnorm)
	}

	ranked := selectTopK(scores, topK)
	if topK <= 0 || len(ranked) >= topK {
		return ranked
	}
	for _, docID := range v.store.DocIDs() {
		if len(ranked) >= topK {
			break
		}
		if _, ok := touched[docID]; ok {
			continue
		}
		ranked = append(ranked, ScoredDoc{DocID: docID, Score: 0})
	}
	return ranked
}

// Search ranks each query in order.
func (v *VSM) Search(queries []index.Query, topK int) []QueryResult {
	return Search(v, queries, topK)
}

// tfWeight is the sublinear term frequency 1 + ln(tf), 0 for tf <= 0.
func tfWeight(tf int) float64 {
	if tf <= 0 {
		return 0
	}
	return 1 + math.Log(float64(tf))
}
