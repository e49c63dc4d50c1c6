// Package index holds the in-memory posting store and the builders that
// produce it from preprocessed documents. A Store is immutable once built and
// may be read from any number of goroutines without locking.
package index

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Store is the posting store: term postings, document lengths and the
// derived corpus statistics.
type Store struct {
	postings    map[string]PostingList
	docLengths  map[string]int
	docIDs      []string
	terms       []string
	totalTokens int64
}

// NewStore builds a Store from nested term → document → frequency maps,
// rejecting data that would break the store's invariants. It is the entry
// point for decoded persisted indexes.
func NewStore(inverted map[string]map[string]int, docLengths map[string]int) (*Store, error) {
	for docID, length := range docLengths {
		if length < 0 {
			return nil, fmt.Errorf("%w: document %q has negative length %d",
				apperrors.ErrInvalidInput, docID, length)
		}
	}
	postings := make(map[string]PostingList, len(inverted))
	for term, docs := range inverted {
		if len(docs) == 0 {
			continue
		}
		pl := make(PostingList, 0, len(docs))
		for docID, tf := range docs {
			if tf < 1 {
				return nil, fmt.Errorf("%w: term %q in document %q has frequency %d",
					apperrors.ErrInvalidInput, term, docID, tf)
			}
			if _, ok := docLengths[docID]; !ok {
				return nil, fmt.Errorf("%w: term %q posts to unknown document %q",
					apperrors.ErrInvalidInput, term, docID)
			}
			pl = append(pl, Posting{DocID: docID, Frequency: tf})
		}
		postings[term] = pl
	}
	lengths := make(map[string]int, len(docLengths))
	for docID, length := range docLengths {
		lengths[docID] = length
	}
	return newStore(postings, lengths), nil
}

// newStore takes ownership of both maps, sorts every posting list and
// derives the ordered id and term lists.
func newStore(postings map[string]PostingList, docLengths map[string]int) *Store {
	s := &Store{
		postings:   postings,
		docLengths: docLengths,
		docIDs:     make([]string, 0, len(docLengths)),
		terms:      make([]string, 0, len(postings)),
	}
	for term, pl := range postings {
		sort.Slice(pl, func(i, j int) bool {
			return pl[i].DocID < pl[j].DocID
		})
		s.terms = append(s.terms, term)
	}
	for docID, length := range docLengths {
		s.docIDs = append(s.docIDs, docID)
		s.totalTokens += int64(length)
	}
	sort.Strings(s.terms)
	sort.Strings(s.docIDs)
	return s
}

// Postings returns the term's posting list, or nil for an unknown term.
// The returned slice is shared and must not be modified.
func (s *Store) Postings(term string) PostingList {
	return s.postings[term]
}

// DocumentFrequency returns the number of documents containing term.
func (s *Store) DocumentFrequency(term string) int {
	return len(s.postings[term])
}

// DocumentLength returns the token count of docID.
func (s *Store) DocumentLength(docID string) (int, bool) {
	length, ok := s.docLengths[docID]
	return length, ok
}

// N returns the number of indexed documents.
func (s *Store) N() int {
	return len(s.docLengths)
}

// AverageDocumentLength returns the mean token count, 0 for an empty corpus.
func (s *Store) AverageDocumentLength() float64 {
	if len(s.docLengths) == 0 {
		return 0
	}
	return float64(s.totalTokens) / float64(len(s.docLengths))
}

// DocIDs returns every indexed document id in ascending order. The slice is
// shared and must not be modified.
func (s *Store) DocIDs() []string {
	return s.docIDs
}

// Terms returns the vocabulary in ascending order. The slice is shared and
// must not be modified.
func (s *Store) Terms() []string {
	return s.terms
}

func (s *Store) TotalTokens() int64 {
	return s.totalTokens
}

// InvertedIndex returns a fresh term → document → frequency copy.
func (s *Store) InvertedIndex() map[string]map[string]int {
	out := make(map[string]map[string]int, len(s.postings))
	for term, pl := range s.postings {
		docs := make(map[string]int, len(pl))
		for _, p := range pl {
			docs[p.DocID] = p.Frequency
		}
		out[term] = docs
	}
	return out
}

// DocumentFrequencies returns a fresh term → df copy.
func (s *Store) DocumentFrequencies() map[string]int {
	out := make(map[string]int, len(s.postings))
	for term, pl := range s.postings {
		out[term] = len(pl)
	}
	return out
}

// DocumentLengths returns a fresh document → length copy.
func (s *Store) DocumentLengths() map[string]int {
	out := make(map[string]int, len(s.docLengths))
	for docID, length := range s.docLengths {
		out[docID] = length
	}
	return out
}

func (s *Store) String() string {
	return fmt.Sprintf("index.Store{docs=%d terms=%d tokens=%d}", len(s.docLengths), len(s.terms), s.totalTokens)
}
