package ranking

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// IDFVariant selects the BM25 inverse document frequency formula.
type IDFVariant int

const (
	// IDFPlusOne is ln((N-df+0.5)/(df+0.5) + 1). It is always positive.
	IDFPlusOne IDFVariant = iota
	// IDFClassic is the Robertson-Spärck Jones ln((N-df+0.5)/(df+0.5)).
	// It goes negative once a term is in more than half the corpus and is
	// never clamped.
	IDFClassic
)

func (v IDFVariant) String() string {
	if v == IDFClassic {
		return "classic"
	}
	return "plus-one"
}

// ParseIDFVariant maps "plus-one" (or "") and "classic" to a variant.
func ParseIDFVariant(s string) (IDFVariant, error) {
	switch s {
	case "", "plus-one":
		return IDFPlusOne, nil
	case "classic":
		return IDFClassic, nil
	default:
		return 0, fmt.Errorf("%w: unknown bm25 idf %q", apperrors.ErrInvalidInput, s)
	}
}

// BM25 is the Okapi BM25 ranker.
type BM25 struct {
	store   *index.Store
	k1      float64
	b       float64
	avgdl   float64
	avgSet  bool
	variant IDFVariant
	idf     map[string]float64
}

type Option func(*BM25)

func WithK1(k1 float64) Option {
	return func(m *BM25) { m.k1 = k1 }
}

func WithB(b float64) Option {
	return func(m *BM25) { m.b = b }
}

// WithAverageDocumentLength overrides the corpus mean document length.
func WithAverageDocumentLength(avgdl float64) Option {
	return func(m *BM25) {
		m.avgdl = avgdl
		m.avgSet = true
	}
}

func WithIDF(v IDFVariant) Option {
	return func(m *BM25) { m.variant = v }
}

// NewBM25 returns a BM25 ranker over store. Defaults are k1 = 1.5,
// b = 0.75, the corpus mean document length and the plus-one IDF.
func NewBM25(store *index.Store, opts ...Option) (*BM25, error) {
	n := store.N()
	if n == 0 {
		return nil, fmt.Errorf("building bm25 ranker: %w", apperrors.ErrEmptyCorpus)
	}
	m := &BM25{
		store:   store,
		k1:      DefaultK1,
		b:       DefaultB,
		variant: IDFPlusOne,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.k1 < 0 || m.b < 0 {
		return nil, fmt.Errorf("%w: bm25 k1=%g b=%g must not be negative", apperrors.ErrInvalidInput, m.k1, m.b)
	}
	if m.avgSet && !(m.avgdl > 0) {
		return nil, fmt.Errorf("%w: bm25 average document length %g must be positive", apperrors.ErrInvalidInput, m.avgdl)
	}
	if !m.avgSet {
		m.avgdl = store.AverageDocumentLength()
	}

	m.idf = make(map[string]float64, len(store.Terms()))
	for _, term := range store.Terms() {
		m.idf[term] = m.computeIDF(store.DocumentFrequency(term))
	}
	return m, nil
}

func (m *BM25) Name() string { return "bm25" }

func (m *BM25) Params() string {
	return fmt.Sprintf("bm25 k1=%g b=%g avgdl=%g idf=%s", m.k1, m.b, m.avgdl, m.variant)
}

// IDF returns the inverse document frequency of term under the configured
// variant. Unknown terms have df = 0.
func (m *BM25) IDF(term string) float64 {
	if idf, ok := m.idf[term]; ok {
		return idf
	}
	return m.computeIDF(0)
}

func (m *BM25) computeIDF(df int) float64 {
	n := float64(m.store.N())
	ratio := (n - float64(df) + 0.5) / (float64(df) + 0.5)
	if m.variant == IDFClassic {
		return math.Log(ratio)
	}
	return math.Log(ratio + 1)
}

// Rank scores every document containing at least one query term. Repeated
// query terms count once. Documents without a matching term are not
// returned.
func (m *BM25) Rank(tokens []string, topK int) []ScoredDoc {
	if len(tokens) == 0 {
		return []ScoredDoc{}
	}
	terms, _ := distinctTerms(tokens)

	scores := make(map[string]float64)
	for _, term := range terms {
		postings := m.store.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := m.idf[term]
		for _, p := range postings {
			dl, _ := m.store.DocumentLength(p.DocID)
			scores[p.DocID] += idf * m.tfNorm(float64(p.Frequency), float64(dl))
		}
	}
	return selectTopK(scores, topK)
}

// Search ranks each query in order.
func (m *BM25) Search(queries []index.Query, topK int) []QueryResult {
	return Search(m, queries, topK)
}

func (m *BM25) tfNorm(tf, dl float64) float64 {
	lengthRatio := 0.0
	if m.avgdl > 0 {
		lengthRatio = dl / m.avgdl
	}
	return tf * (m.k1 + 1) / (tf + m.k1*(1-m.b+m.b*lengthRatio))
}
