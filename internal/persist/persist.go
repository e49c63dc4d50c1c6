// Package persist saves a posting store to disk and loads it back. The file
// holds one record with three fields: inverted_index (term → document →
// frequency), document_frequencies (term → df) and document_lengths
// (document → token count). Load distinguishes a missing file from a file
// that exists but cannot be trusted.
package persist

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

type record struct {
	InvertedIndex       map[string]map[string]int `json:"inverted_index" cbor:"inverted_index"`
	DocumentFrequencies map[string]int            `json:"document_frequencies" cbor:"document_frequencies"`
	DocumentLengths     map[string]int            `json:"document_lengths" cbor:"document_lengths"`
}

// Status is the outcome of Load.
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusCorrupt
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the discriminated outcome of Load. Store is set only for
// StatusFound; Err is set for the other two and wraps ErrIndexNotFound or
// ErrIndexCorrupt.
type Result struct {
	Status Status
	Store  *index.Store
	Err    error
}

// Save writes store to path. The record is written to a temp file in the
// same directory, synced and renamed over path, so readers never observe a
// partial file.
func Save(store *index.Store, path string, opts Options) error {
	rec := &record{
		InvertedIndex:       store.InvertedIndex(),
		DocumentFrequencies: store.DocumentFrequencies(),
		DocumentLengths:     store.DocumentLengths(),
	}
	data, err := encode(rec, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

// Load reads the index at path. A missing or unreadable file is
// StatusNotFound. Anything that decodes badly or violates the store
// invariants is StatusCorrupt.
func Load(path string, opts Options) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{
			Status: StatusNotFound,
			Err:    fmt.Errorf("%w: %s: %v", apperrors.ErrIndexNotFound, path, err),
		}
	}
	store, err := parse(data, opts)
	if err != nil {
		return Result{
			Status: StatusCorrupt,
			Err:    fmt.Errorf("%w: %s: %v", apperrors.ErrIndexCorrupt, path, err),
		}
	}
	return Result{Status: StatusFound, Store: store}
}

func parse(data []byte, opts Options) (*index.Store, error) {
	rec, err := decode(data, opts)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.InvertedIndex == nil:
		return nil, fmt.Errorf("missing field inverted_index")
	case rec.DocumentFrequencies == nil:
		return nil, fmt.Errorf("missing field document_frequencies")
	case rec.DocumentLengths == nil:
		return nil, fmt.Errorf("missing field document_lengths")
	}

	for term, docs := range rec.InvertedIndex {
		if df := rec.DocumentFrequencies[term]; df != len(docs) {
			return nil, fmt.Errorf("term %q: document frequency %d, postings %d", term, df, len(docs))
		}
	}
	for term, df := range rec.DocumentFrequencies {
		if df != len(rec.InvertedIndex[term]) {
			return nil, fmt.Errorf("term %q: document frequency %d without matching postings", term, df)
		}
	}

	return index.NewStore(rec.InvertedIndex, rec.DocumentLengths)
}

// Digest returns the hex BLAKE3 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
