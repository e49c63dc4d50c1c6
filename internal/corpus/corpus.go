// Package corpus reads document and query files into index.Document and
// index.Query values. A file is either a JSON array or JSON Lines of records
// shaped like {"id": ..., "tokens": [...]}. The id may also be spelled _id or
// num and may be a string or a number. Records without a tokens field are
// analysed from their title and text when an analyzer is supplied.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Filter selects queries by the parity of their numeric id.
type Filter string

const (
	FilterAll  Filter = "all"
	FilterOdd  Filter = "odd"
	FilterEven Filter = "even"
)

// ParseFilter accepts "", "all", "odd" and "even".
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(s)) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterOdd:
		return FilterOdd, nil
	case FilterEven:
		return FilterEven, nil
	default:
		return "", fmt.Errorf("%w: query filter %q", apperrors.ErrInvalidInput, s)
	}
}

// Keep reports whether a query with the given id passes the filter. Ids that
// are not integers only pass FilterAll.
func (f Filter) Keep(id string) bool {
	if f == FilterAll || f == "" {
		return true
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false
	}
	if f == FilterOdd {
		return n%2 != 0
	}
	return n%2 == 0
}

type record struct {
	ID     json.RawMessage `json:"id"`
	AltID  json.RawMessage `json:"_id"`
	Num    json.RawMessage `json:"num"`
	Tokens []string        `json:"tokens"`
	Title  string          `json:"title"`
	Text   string          `json:"text"`
}

type options struct {
	analyzer *analysis.Analyzer
}

// Option configures a loader call.
type Option func(*options)

// WithAnalyzer tokenizes title and text for records that carry no tokens.
func WithAnalyzer(a *analysis.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// LoadDocuments reads every document record in path.
func LoadDocuments(path string, opts ...Option) ([]index.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening documents: %w", err)
	}
	defer f.Close()
	return ReadDocuments(f, opts...)
}

// ReadDocuments is LoadDocuments over an already open reader.
func ReadDocuments(r io.Reader, opts ...Option) ([]index.Document, error) {
	o := applyOptions(opts)
	recs, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	docs := make([]index.Document, 0, len(recs))
	for i, rec := range recs {
		id, tokens, err := rec.resolve(i, o)
		if err != nil {
			return nil, err
		}
		docs = append(docs, index.Document{ID: id, Tokens: tokens})
	}
	return docs, nil
}

// LoadQueries reads the query records in path that pass filter.
func LoadQueries(path string, filter Filter, opts ...Option) ([]index.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queries: %w", err)
	}
	defer f.Close()
	return ReadQueries(f, filter, opts...)
}

// ReadQueries is LoadQueries over an already open reader.
func ReadQueries(r io.Reader, filter Filter, opts ...Option) ([]index.Query, error) {
	o := applyOptions(opts)
	recs, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	queries := make([]index.Query, 0, len(recs))
	for i, rec := range recs {
		id, tokens, err := rec.resolve(i, o)
		if err != nil {
			return nil, err
		}
		if !filter.Keep(id) {
			continue
		}
		queries = append(queries, index.Query{ID: id, Tokens: tokens})
	}
	return queries, nil
}

// SortQueries orders queries by id: integers ascending first, then the rest
// lexically.
func SortQueries(queries []index.Query) {
	sort.SliceStable(queries, func(i, j int) bool {
		return index.LessQueryID(queries[i].ID, queries[j].ID)
	})
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func readRecords(r io.Reader) ([]record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var recs []record
		if err := dec.Decode(&recs); err != nil {
			return nil, fmt.Errorf("%w: decoding record array: %v", apperrors.ErrInvalidInput, err)
		}
		return recs, nil
	}

	var recs []record
	for {
		var rec record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decoding record %d: %v", apperrors.ErrInvalidInput, len(recs), err)
		}
		recs = append(recs, rec)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func (rec *record) resolve(pos int, o *options) (string, []string, error) {
	id, err := rec.id()
	if err != nil {
		return "", nil, fmt.Errorf("%w: record %d: %v", apperrors.ErrInvalidInput, pos, err)
	}
	if rec.Tokens != nil {
		return id, rec.Tokens, nil
	}
	if o.analyzer == nil {
		return "", nil, fmt.Errorf("%w: record %d (%s) has no tokens", apperrors.ErrInvalidInput, pos, id)
	}
	text := strings.TrimSpace(rec.Title + " " + rec.Text)
	return id, o.analyzer.Tokenize(text), nil
}

func (rec *record) id() (string, error) {
	for _, raw := range []json.RawMessage{rec.ID, rec.AltID, rec.Num} {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return "", err
			}
			if s == "" {
				return "", errors.New("empty id")
			}
			return s, nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("id %s is neither string nor number", raw)
		}
		return n.String(), nil
	}
	return "", errors.New("missing id")
}
