package index

// Posting records how often a term occurs in one document. Frequency is
// always at least 1; absent terms are never stored as explicit zeros.
type Posting struct {
	DocID     string `json:"doc_id"`
	Frequency int    `json:"tf"`
}

// PostingList is a term's postings sorted by ascending DocID.
type PostingList []Posting

// Document is a preprocessed corpus document. Tokens are already
// stopword-filtered and optionally stemmed.
type Document struct {
	ID     string   `json:"id"`
	Tokens []string `json:"tokens"`
}

// Query has the same shape as a Document and is supplied per ranking call.
type Query struct {
	ID     string   `json:"id"`
	Tokens []string `json:"tokens"`
}
